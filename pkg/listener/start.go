package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
)

// StartListeners drains the session work queues until ctx is done.
func StartListeners(ctx context.Context, pgURI string, h *Handlers) error {
	l := NewListener(pgURI)

	l.AddHandler(ChannelNewBuild, 5, time.Minute*15, func(notification *pgconn.Notification) error {
		if err := h.handleNewBuild(ctx, notification.Payload); err != nil {
			logger.Error(fmt.Errorf("failed to handle new build notification: %w", err))
			return fmt.Errorf("failed to handle new build notification: %w", err)
		}
		return nil
	}, sessionLockKeyExtractor)

	l.AddHandler(ChannelNewChatMessage, 10, time.Minute*5, func(notification *pgconn.Notification) error {
		if err := h.handleNewChatMessage(ctx, notification.Payload); err != nil {
			logger.Error(fmt.Errorf("failed to handle new chat message notification: %w", err))
			return fmt.Errorf("failed to handle new chat message notification: %w", err)
		}
		return nil
	}, sessionLockKeyExtractor)

	l.AddHandler(ChannelEditFile, 10, time.Second*30, func(notification *pgconn.Notification) error {
		if err := h.handleEditFile(ctx, notification.Payload); err != nil {
			logger.Error(fmt.Errorf("failed to handle edit file notification: %w", err))
			return fmt.Errorf("failed to handle edit file notification: %w", err)
		}
		return nil
	}, sessionLockKeyExtractor)

	if err := l.Start(ctx); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	defer l.Stop(context.Background())

	StartHeartbeat(ctx)

	<-ctx.Done()

	return nil
}
