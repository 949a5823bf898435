package types

var _ Event = SessionStatusEvent{}
var _ Event = SessionLogEvent{}
var _ Event = SessionFileEvent{}

type SessionStatusEvent struct {
	SessionID string `json:"sessionId"`
	Phase     string `json:"phase"`
	Status    string `json:"status"`
	Failure   string `json:"failure,omitempty"`
	URL       string `json:"url,omitempty"`
}

func (e SessionStatusEvent) GetMessageData() (map[string]interface{}, error) {
	return map[string]interface{}{
		"eventType": "session-status",
		"sessionId": e.SessionID,
		"phase":     e.Phase,
		"status":    e.Status,
		"failure":   e.Failure,
		"url":       e.URL,
	}, nil
}

func (e SessionStatusEvent) GetChannelName() string {
	return e.SessionID
}

// SessionLogEvent carries terminal log lines in the order they were appended.
type SessionLogEvent struct {
	SessionID string   `json:"sessionId"`
	Lines     []string `json:"lines"`
}

func (e SessionLogEvent) GetMessageData() (map[string]interface{}, error) {
	return map[string]interface{}{
		"eventType": "session-log",
		"sessionId": e.SessionID,
		"lines":     e.Lines,
	}, nil
}

func (e SessionLogEvent) GetChannelName() string {
	return e.SessionID
}

type SessionFileEvent struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	Created   bool   `json:"created"`
}

func (e SessionFileEvent) GetMessageData() (map[string]interface{}, error) {
	return map[string]interface{}{
		"eventType": "session-file",
		"sessionId": e.SessionID,
		"path":      e.Path,
		"content":   e.Content,
		"created":   e.Created,
	}, nil
}

func (e SessionFileEvent) GetChannelName() string {
	return e.SessionID
}
