package types

import (
	"fmt"
	"time"

	"github.com/slack-go/slack"
)

var _ SlackNotification = SessionFailed{}

type SessionFailed struct {
	ID        string
	CreatedAt time.Time
	SessionID string
	Reason    string
	Status    string
	// LastLogLine is the terminal line written when the session failed
	LastLogLine string
}

func (s SessionFailed) GetID() string {
	return s.ID
}

func (s SessionFailed) GetCreatedAt() time.Time {
	return s.CreatedAt
}

func (s SessionFailed) GetHeader() *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf(":rotating_light: Build session failed: *%s*", s.Reason), false, false)
}

func (s SessionFailed) GetTextBlockObjects() []*slack.TextBlockObject {
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Session:*\n%s", s.SessionID), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Status:*\n%s", s.Status), false, false),
	}
	if s.LastLogLine != "" {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Log:*\n`%s`", s.LastLogLine), false, false))
	}
	return fields
}
