package chat

import (
	"sync"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
)

// History is the ordered message log sent to the model on every turn.
// It is append-only; consecutive turns from the same role are allowed.
type History struct {
	mu       sync.RWMutex
	messages []types.Message
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(role types.Role, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, types.Message{Role: role, Text: text})
}

// Snapshot copies the log so callers can hand it to a gateway while appends continue.
func (h *History) Snapshot() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
