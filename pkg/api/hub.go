package api

import (
	"sync"

	"github.com/cognitodev/launchpad/pkg/session"
)

const subscriberBuffer = 64

// Hub fans session updates out to websocket subscribers. A slow subscriber misses
// updates rather than blocking the session.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan session.Update]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: map[string]map[chan session.Update]struct{}{}}
}

func (h *Hub) Observe(u session.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers[u.SessionID] {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe registers for updates of one session. The returned function must be called once.
func (h *Hub) Subscribe(sessionID string) (<-chan session.Update, func()) {
	ch := make(chan session.Update, subscriberBuffer)

	h.mu.Lock()
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = map[chan session.Update]struct{}{}
	}
	h.subscribers[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[sessionID], ch)
			if len(h.subscribers[sessionID]) == 0 {
				delete(h.subscribers, sessionID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) subscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[sessionID])
}
