package slack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/cognitodev/launchpad/pkg/slack/types"
	"github.com/slack-go/slack"
	"github.com/tuvistavie/securerandom"
	"go.uber.org/zap"
)

// Notifier posts failed sessions to a Slack channel.
type Notifier struct {
	client  *slack.Client
	channel string

	wg sync.WaitGroup
}

func NewNotifier(token string, channel string, options ...slack.Option) *Notifier {
	return &Notifier{
		client:  slack.New(token, options...),
		channel: channel,
	}
}

func (n *Notifier) SendNotificationToSlack(ctx context.Context, e types.SlackNotification) error {
	if e == nil {
		return nil
	}

	headerSection := slack.NewSectionBlock(e.GetHeader(), nil, nil)
	fieldsSection := slack.NewSectionBlock(nil, e.GetTextBlockObjects(), nil)

	blocks := make([]slack.Block, 0)
	blocks = append(blocks, *headerSection)
	blocks = append(blocks, *fieldsSection)

	msg := slack.NewBlockMessage(blocks...)

	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionBlocks(msg.Msg.Blocks.BlockSet...))
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}

	return nil
}

// Observe sends one notification when a session enters the failed phase.
func (n *Notifier) Observe(u session.Update) {
	if u.Phase != session.PhaseFailed || !u.PhaseChanged() {
		return
	}

	id, err := securerandom.Hex(8)
	if err != nil {
		logger.Error(fmt.Errorf("failed to generate notification id: %w", err))
		return
	}

	notification := types.SessionFailed{
		ID:        id,
		CreatedAt: time.Now(),
		SessionID: u.SessionID,
		Reason:    string(u.Failure),
		Status:    u.Status,
	}
	if len(u.LogLines) > 0 {
		notification.LastLogLine = u.LogLines[len(u.LogLines)-1]
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := n.SendNotificationToSlack(ctx, notification); err != nil {
			logger.Warn("failed to notify slack", zap.String("session", u.SessionID), zap.Error(err))
		}
	}()
}

// Wait blocks until notifications already started have been sent.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
