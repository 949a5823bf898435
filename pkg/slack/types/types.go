package types

import (
	"time"

	"github.com/slack-go/slack"
)

type SlackNotification interface {
	GetID() string
	GetCreatedAt() time.Time

	GetHeader() *slack.TextBlockObject
	GetTextBlockObjects() []*slack.TextBlockObject
}
