package session

import (
	"fmt"

	"github.com/cognitodev/launchpad/pkg/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tuvistavie/securerandom"
	"go.uber.org/zap"
)

const DefaultMaxSessions = 64

// Manager holds the live orchestrators. When it is full the least recently used session is
// closed and dropped, releasing its sandbox.
type Manager struct {
	deps     Deps
	sessions *lru.Cache[string, *Orchestrator]
}

func NewManager(maxSessions int, deps Deps) (*Manager, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	sessions, err := lru.NewWithEvict(maxSessions, func(id string, o *Orchestrator) {
		if err := o.Close(); err != nil {
			logger.Warn("failed to close evicted session", zap.String("session", id), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	return &Manager{
		deps:     deps,
		sessions: sessions,
	}, nil
}

// Create registers a new idle session with a random id. observers receive this session's
// updates after the shared observer and are closed with the session.
func (m *Manager) Create(observers ...Observer) (*Orchestrator, error) {
	id, err := securerandom.Hex(12)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	return m.CreateWithID(id, observers...)
}

// CreateWithID registers a session under a caller-chosen id, such as one sent by a client.
// An existing session with the same id is closed and replaced.
func (m *Manager) CreateWithID(id string, observers ...Observer) (*Orchestrator, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}

	deps := m.deps
	if len(observers) > 0 {
		all := MultiObserver{}
		if deps.Observer != nil {
			all = append(all, deps.Observer)
		}
		deps.Observer = append(all, observers...)
	}

	o := NewOrchestrator(id, deps)
	o.owned = observers
	if previous, ok := m.sessions.Peek(id); ok {
		m.sessions.Remove(id)
		logger.Debug("replaced session", zap.String("session", previous.ID()))
	}
	m.sessions.Add(id, o)
	return o, nil
}

func (m *Manager) Get(id string) (*Orchestrator, error) {
	o, ok := m.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return o, nil
}

// Remove closes and forgets a session. It reports whether the session existed.
func (m *Manager) Remove(id string) bool {
	return m.sessions.Remove(id)
}

func (m *Manager) IDs() []string {
	return m.sessions.Keys()
}

func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Close closes every session.
func (m *Manager) Close() {
	m.sessions.Purge()
}
