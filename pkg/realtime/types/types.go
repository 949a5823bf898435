package types

import "fmt"

// Config locates the Centrifugo HTTP API.
type Config struct {
	Address string
	APIKey  string
}

// Recipient lists the users whose personal channels receive an event.
type Recipient struct {
	UserIDs []string
}

func ForUsers(userIDs ...string) Recipient {
	return Recipient{UserIDs: userIDs}
}

// Channels returns one personal channel per user for the event's session channel.
func (r Recipient) Channels(e Event) []string {
	channels := make([]string, 0, len(r.UserIDs))
	for _, userID := range r.UserIDs {
		channels = append(channels, UserChannel(e.GetChannelName(), userID))
	}
	return channels
}

// UserChannel is the channel a browser subscribes to for one session.
func UserChannel(sessionID string, userID string) string {
	return fmt.Sprintf("%s#%s", sessionID, userID)
}

type Event interface {
	GetMessageData() (map[string]interface{}, error)
	GetChannelName() string
}
