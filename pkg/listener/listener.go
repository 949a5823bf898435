package listener

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// NotificationHandler handles one work queue row delivered as a notification.
type NotificationHandler func(notification *pgconn.Notification) error

// LockKeyExtractor returns the key that serializes work for the same entity.
type LockKeyExtractor func(payload []byte) (string, error)

// Listener manages PostgreSQL LISTEN/NOTIFY subscriptions and drains the work queue.
type Listener struct {
	conn              *pgx.Conn
	pgURI             string
	reconnectInterval time.Duration
	maxReconnectRetry int
	processors        map[string]*queueProcessor
	queueLocks        map[string]map[string]chan struct{}
	mu                sync.Mutex
}

type queueProcessor struct {
	channel          string
	handler          NotificationHandler
	workerPool       chan struct{}
	processing       atomic.Bool
	maxWorkers       int
	maxDuration      time.Duration
	lockKeyExtractor LockKeyExtractor
}

func NewListener(pgURI string) *Listener {
	return &Listener{
		pgURI:             pgURI,
		reconnectInterval: 5 * time.Second,
		maxReconnectRetry: 0, // unlimited
		processors:        make(map[string]*queueProcessor),
		queueLocks:        make(map[string]map[string]chan struct{}),
	}
}

// AddHandler registers a handler for a channel. maxDuration is how long a claimed row may
// be processing before it is handed out again.
func (l *Listener) AddHandler(channel string, maxWorkers int, maxDuration time.Duration, handler NotificationHandler, lockKeyExtractor LockKeyExtractor) {
	l.processors[channel] = &queueProcessor{
		channel:          channel,
		handler:          handler,
		workerPool:       make(chan struct{}, maxWorkers),
		maxWorkers:       maxWorkers,
		maxDuration:      maxDuration,
		lockKeyExtractor: lockKeyExtractor,
	}
}

func (l *Listener) Start(ctx context.Context) error {
	logger.Info("Starting listener")

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var err error
	l.conn, err = pgx.Connect(connectCtx, l.pgURI)
	if err == nil {
		err = l.listenAll(connectCtx)
	}
	if err != nil {
		logger.Error(fmt.Errorf("failed to establish listener connection: %w", err))
		if reconnectErr := l.reconnect(ctx); reconnectErr != nil {
			return fmt.Errorf("failed to establish initial database connection: %w", reconnectErr)
		}
	}

	logger.Info("Subscribed to notification channels", zap.Int("channelCount", len(l.processors)))

	// pick up work enqueued while nobody was listening
	l.kickAll(ctx)

	go l.processNotifications(ctx)
	go l.pollQueues(ctx)

	logger.Info("Listener started successfully")
	return nil
}

func (l *Listener) Stop(ctx context.Context) {
	if l.conn != nil {
		if err := l.conn.Close(ctx); err != nil {
			logger.Warn("failed to close listener connection", zap.Error(err))
		}
		l.conn = nil
	}
}

func (l *Listener) listenAll(ctx context.Context) error {
	for channel := range l.processors {
		var listenErr error
		for attempt := 0; attempt < 3; attempt++ {
			_, listenErr = l.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
			if listenErr == nil {
				break
			}

			logger.Warn("LISTEN command failed, retrying",
				zap.String("channel", channel),
				zap.Int("attempt", attempt+1),
				zap.Error(listenErr))

			wait := 100 * time.Millisecond
			if strings.Contains(listenErr.Error(), "conn busy") {
				wait = 500 * time.Millisecond
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if listenErr != nil {
			return fmt.Errorf("failed to listen on channel %s: %w", channel, listenErr)
		}
	}
	return nil
}

func (l *Listener) kickAll(ctx context.Context) {
	for _, processor := range l.processors {
		l.kick(ctx, processor)
	}
}

func (l *Listener) kick(ctx context.Context, processor *queueProcessor) {
	if processor.processing.CompareAndSwap(false, true) {
		go l.processQueue(ctx, processor)
	}
}

// pollQueues catches rows whose claim timed out, which produce no notification.
func (l *Listener) pollQueues(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.kickAll(ctx)
		}
	}
}

func (l *Listener) processNotifications(ctx context.Context) {
	consecutiveErrors := 0
	maxConsecutiveErrors := 3

	for {
		if ctx.Err() != nil {
			logger.Info("Context canceled, exiting notification processor")
			return
		}

		if l.conn == nil {
			if err := l.reconnect(ctx); err != nil {
				logger.Error(fmt.Errorf("failed to reconnect: %w", err))
				return
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		notification, err := l.conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}

			if waitCtx.Err() != nil {
				logger.Debug("No notification received in 2m0s. This is normal during periods of inactivity.")
				continue
			}

			consecutiveErrors++
			logger.Error(fmt.Errorf("failed to wait for notification: %w", err),
				zap.Int("consecutiveErrors", consecutiveErrors))

			if consecutiveErrors >= maxConsecutiveErrors ||
				strings.Contains(err.Error(), "terminating connection") ||
				strings.Contains(err.Error(), "closed network connection") {
				if err := l.reconnect(ctx); err != nil {
					logger.Error(fmt.Errorf("failed to reconnect: %w", err))
					return
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0

		processor, exists := l.processors[notification.Channel]
		if !exists {
			logger.Warn("no processor registered for channel", zap.String("channel", notification.Channel))
			continue
		}

		l.kick(ctx, processor)
	}
}

// processQueue claims and runs work until the channel has no available rows.
func (l *Listener) processQueue(ctx context.Context, processor *queueProcessor) {
	defer processor.processing.Store(false)

	for {
		if ctx.Err() != nil {
			return
		}

		dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
		stats, err := persistence.GetQueueStats(dbCtx, processor.channel)
		if err != nil {
			dbCancel()
			logger.Error(err)
			return
		}
		if stats.Total > 0 {
			logger.Info("queue status",
				zap.String("channel", processor.channel),
				zap.Int("total", stats.Total),
				zap.Int("in_flight", stats.InFlight),
				zap.Int("available", stats.Available))
		}

		items, err := persistence.ClaimWork(dbCtx, processor.channel, processor.maxWorkers, processor.maxDuration)
		dbCancel()
		if err != nil {
			logger.Error(err)
			return
		}

		if len(items) == 0 {
			return
		}

		for _, item := range items {
			if item.AttemptCount > 0 {
				logger.Info("processing message retry",
					zap.String("id", item.ID),
					zap.Int("attempt", item.AttemptCount),
					zap.Duration("timeout", processor.maxDuration))
			}

			processor.workerPool <- struct{}{}
			go func(item persistence.WorkItem) {
				defer func() { <-processor.workerPool }()
				l.runItem(ctx, processor, item)
			}(item)
		}
	}
}

func (l *Listener) runItem(ctx context.Context, processor *queueProcessor, item persistence.WorkItem) {
	startTime := time.Now()

	if processor.lockKeyExtractor != nil {
		lockKey, err := processor.lockKeyExtractor(item.Payload)
		if err != nil {
			logger.Error(fmt.Errorf("failed to extract lock key: %w", err))
			l.finishItem(ctx, item, err)
			return
		}
		if lockKey != "" {
			lockChan := l.getQueueLock(processor.channel, lockKey)
			<-lockChan
			defer func() { lockChan <- struct{}{} }()
		}
	}

	handlerErr := processor.handler(&pgconn.Notification{
		Channel: processor.channel,
		Payload: string(item.Payload),
	})

	if l.finishItem(ctx, item, handlerErr) && handlerErr == nil {
		logger.Info("message processed",
			zap.String("id", item.ID),
			zap.String("channel", processor.channel),
			zap.Duration("duration", time.Since(startTime)))
	}
}

// finishItem marks the row completed, or releases it for retry when handlerErr is set.
func (l *Listener) finishItem(ctx context.Context, item persistence.WorkItem, handlerErr error) bool {
	updateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	if handlerErr != nil {
		err = persistence.FailWork(updateCtx, item.ID, handlerErr)
	} else {
		err = persistence.CompleteWork(updateCtx, item.ID)
	}
	if err != nil {
		logger.Error(err)
		return false
	}
	return true
}

func (l *Listener) getQueueLock(queueName, lockKey string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.queueLocks[queueName]; !exists {
		l.queueLocks[queueName] = make(map[string]chan struct{})
	}

	lockChan, exists := l.queueLocks[queueName][lockKey]
	if !exists {
		lockChan = make(chan struct{}, 1)
		lockChan <- struct{}{}
		l.queueLocks[queueName][lockKey] = lockChan
	}
	return lockChan
}

// reconnect reestablishes the LISTEN connection with capped exponential backoff and jitter.
func (l *Listener) reconnect(ctx context.Context) error {
	backoffInterval := l.reconnectInterval
	maxBackoff := 5 * time.Minute

	logger.Info("Database connection lost, attempting to reconnect...")

	for attempt := 1; l.maxReconnectRetry == 0 || attempt <= l.maxReconnectRetry; attempt++ {
		if l.conn != nil {
			_ = l.conn.Close(ctx)
			l.conn = nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("context canceled during reconnection: %w", ctx.Err())
		}

		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		conn, err := pgx.Connect(connectCtx, l.pgURI)
		if err == nil {
			l.conn = conn
			err = l.listenAll(connectCtx)
		}
		cancel()

		if err == nil {
			logger.Info("Successfully reconnected and resubscribed to all channels")
			l.kickAll(ctx)
			return nil
		}

		logger.Error(fmt.Errorf("reconnect attempt %d failed: %w", attempt, err))

		backoffInterval *= 2
		if backoffInterval > maxBackoff {
			backoffInterval = maxBackoff
		}
		jitter := time.Duration(float64(backoffInterval) * (0.8 + 0.4*rand.Float64()))

		logger.Info("Will retry connection after backoff",
			zap.Duration("backoff", jitter),
			zap.Int("attempt", attempt))

		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return fmt.Errorf("context canceled during reconnection backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts", l.maxReconnectRetry)
}
