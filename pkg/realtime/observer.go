package realtime

import (
	"context"
	"sync"

	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/realtime/types"
	"github.com/cognitodev/launchpad/pkg/session"
	"go.uber.org/zap"
)

const observerQueueSize = 256

// Observer publishes session updates to Centrifugo from its own goroutine, so a slow push
// never holds up the session.
type Observer struct {
	recipient types.Recipient

	mu     sync.Mutex
	closed bool
	queue  chan types.Event
	done   chan struct{}
}

func NewObserver(ctx context.Context, recipient types.Recipient) *Observer {
	o := &Observer{
		recipient: recipient,
		queue:     make(chan types.Event, observerQueueSize),
		done:      make(chan struct{}),
	}

	go func() {
		defer close(o.done)
		for e := range o.queue {
			if err := SendEvent(ctx, o.recipient, e); err != nil {
				logger.Warn("failed to publish session event", zap.Error(err))
			}
		}
	}()

	return o
}

func (o *Observer) Observe(u session.Update) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	for _, e := range EventsForUpdate(u) {
		select {
		case o.queue <- e:
		default:
			logger.Warn("realtime queue full, dropping event", zap.String("session", u.SessionID))
		}
	}
}

// Close stops accepting updates and waits for queued events to be sent.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	<-o.done
}

// EventsForUpdate converts an update to the events clients subscribe to: log lines first,
// then file changes, then the status.
func EventsForUpdate(u session.Update) []types.Event {
	events := []types.Event{}

	if len(u.LogLines) > 0 {
		events = append(events, types.SessionLogEvent{SessionID: u.SessionID, Lines: u.LogLines})
	}

	for _, f := range u.Files {
		events = append(events, types.SessionFileEvent{
			SessionID: u.SessionID,
			Path:      f.Path,
			Content:   f.Content,
			Created:   f.Created,
		})
	}

	events = append(events, types.SessionStatusEvent{
		SessionID: u.SessionID,
		Phase:     string(u.Phase),
		Status:    u.Status,
		Failure:   string(u.Failure),
		URL:       u.URL,
	})

	return events
}
