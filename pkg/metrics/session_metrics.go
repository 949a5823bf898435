package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/cognitodev/launchpad/pkg/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("launchpad/session")

// SessionMetrics records build outcomes and time spent in each phase.
type SessionMetrics struct {
	buildsStartedCounter metric.Int64Counter
	buildsReadyCounter   metric.Int64Counter
	buildsFailedCounter  metric.Int64Counter
	patchesCounter       metric.Int64Counter
	phaseDuration        metric.Float64Histogram
	buildDuration        metric.Float64Histogram
	sessionsActive       metric.Int64UpDownCounter

	now func() time.Time

	mu sync.Mutex
	// phaseStarted and buildStarted are keyed by session id
	phaseStarted map[string]time.Time
	buildStarted map[string]time.Time
}

func NewSessionMetrics() (*SessionMetrics, error) {
	buildsStartedCounter, err := meter.Int64Counter(
		"launchpad.builds.started",
		metric.WithDescription("Total number of builds started"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		return nil, err
	}

	buildsReadyCounter, err := meter.Int64Counter(
		"launchpad.builds.ready",
		metric.WithDescription("Total number of builds that reached a running dev server"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		return nil, err
	}

	buildsFailedCounter, err := meter.Int64Counter(
		"launchpad.builds.failed",
		metric.WithDescription("Total number of sessions that failed"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		return nil, err
	}

	patchesCounter, err := meter.Int64Counter(
		"launchpad.patches",
		metric.WithDescription("Total number of follow-up patch turns"),
		metric.WithUnit("{patch}"),
	)
	if err != nil {
		return nil, err
	}

	phaseDuration, err := meter.Float64Histogram(
		"launchpad.phase.duration",
		metric.WithDescription("Time spent in a session phase in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	buildDuration, err := meter.Float64Histogram(
		"launchpad.build.duration",
		metric.WithDescription("Time from prompt to ready or failed in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	sessionsActive, err := meter.Int64UpDownCounter(
		"launchpad.sessions.active",
		metric.WithDescription("Number of builds in progress"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return &SessionMetrics{
		buildsStartedCounter: buildsStartedCounter,
		buildsReadyCounter:   buildsReadyCounter,
		buildsFailedCounter:  buildsFailedCounter,
		patchesCounter:       patchesCounter,
		phaseDuration:        phaseDuration,
		buildDuration:        buildDuration,
		sessionsActive:       sessionsActive,
		now:                  time.Now,
		phaseStarted:         map[string]time.Time{},
		buildStarted:         map[string]time.Time{},
	}, nil
}

// Observe records phase changes. It only updates in-memory timestamps and otel instruments.
func (m *SessionMetrics) Observe(u session.Update) {
	if !u.PhaseChanged() {
		return
	}

	ctx := context.Background()
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if started, ok := m.phaseStarted[u.SessionID]; ok {
		m.phaseDuration.Record(ctx, now.Sub(started).Seconds(),
			metric.WithAttributes(attribute.String("phase", string(u.PrevPhase))))
	}
	m.phaseStarted[u.SessionID] = now

	switch u.Phase {
	case session.PhaseClassifying:
		m.buildStarted[u.SessionID] = now
		m.buildsStartedCounter.Add(ctx, 1)
		m.sessionsActive.Add(ctx, 1)

	case session.PhasePatching:
		m.patchesCounter.Add(ctx, 1)

	case session.PhaseReady:
		if started, ok := m.buildStarted[u.SessionID]; ok {
			delete(m.buildStarted, u.SessionID)
			m.buildsReadyCounter.Add(ctx, 1)
			m.buildDuration.Record(ctx, now.Sub(started).Seconds(),
				metric.WithAttributes(attribute.String("status", "ready")))
			m.sessionsActive.Add(ctx, -1)
		}

	case session.PhaseFailed:
		attrs := metric.WithAttributes(attribute.String("reason", string(u.Failure)))
		m.buildsFailedCounter.Add(ctx, 1, attrs)
		if started, ok := m.buildStarted[u.SessionID]; ok {
			delete(m.buildStarted, u.SessionID)
			m.buildDuration.Record(ctx, now.Sub(started).Seconds(),
				metric.WithAttributes(attribute.String("status", "failed")))
			m.sessionsActive.Add(ctx, -1)
		}
		delete(m.phaseStarted, u.SessionID)
	}
}

// Forget drops timing state for a closed session.
func (m *SessionMetrics) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buildStarted[sessionID]; ok {
		m.sessionsActive.Add(context.Background(), -1)
	}
	delete(m.phaseStarted, sessionID)
	delete(m.buildStarted, sessionID)
}

func (m *SessionMetrics) tracked() (phases int, builds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.phaseStarted), len(m.buildStarted)
}
