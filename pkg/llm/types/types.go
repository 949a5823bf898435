package types

// ActionKind is the decoded meaning of a boltAction's type attribute.
type ActionKind string

const (
	ActionKindWriteFile ActionKind = "write-file"
	ActionKindRunShell  ActionKind = "run-shell"
	ActionKindUnknown   ActionKind = "unknown"
)

// KindForType maps the raw type attribute onto an ActionKind.
func KindForType(actionType string) ActionKind {
	switch actionType {
	case "file":
		return ActionKindWriteFile
	case "shell":
		return ActionKindRunShell
	default:
		return ActionKindUnknown
	}
}

type Action struct {
	Kind ActionKind `json:"kind"`
	// Type is the raw attribute value, kept so unknown kinds can still be executed later
	Type    string `json:"type"`
	Path    string `json:"filePath,omitempty"`
	Content string `json:"content"`
}

type Artifact struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Actions []Action `json:"actions"`
}

// FileMap flattens the artifact's write-file actions. Later actions for the same path win.
func (a *Artifact) FileMap() map[string]string {
	files := map[string]string{}
	if a == nil {
		return files
	}
	for _, action := range a.Actions {
		if action.Kind != ActionKindWriteFile || action.Path == "" {
			continue
		}
		files[action.Path] = action.Content
	}
	return files
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type GenerateOptions struct {
	MaxOutputTokens int
	Temperature     float64
}

var (
	// ClassifyOptions is used for the short template classification call
	ClassifyOptions = GenerateOptions{MaxOutputTokens: 200, Temperature: 0.1}

	// GenerateFilesOptions is used for full generation and patch turns
	GenerateFilesOptions = GenerateOptions{MaxOutputTokens: 10000, Temperature: 0.1}
)
