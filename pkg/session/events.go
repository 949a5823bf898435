package session

// Event is something that happened to a session. The set is closed.
type Event interface {
	isEvent()
}

type PromptSubmitted struct {
	Prompt string
}

type TemplateSelected struct {
	Template string
	// Starter is the template's pre-baked file bundle
	Starter map[string]string
}

type ClassificationFailed struct {
	Reply string
}

// GatewayFailed reports an error from the model gateway in any phase that calls it.
type GatewayFailed struct {
	Err error
}

// GenerationCompleted carries the decoded files of the full generation reply, possibly none.
type GenerationCompleted struct {
	Files map[string]string
}

type SandboxBooted struct{}

type FileWriteFailed struct {
	Path string
	Err  error
}

type FilesMounted struct{}

// OutputLine is a chunk of install output.
type OutputLine struct {
	Line string
}

// OutputFailed reports that a subprocess's output could not be read to the end.
type OutputFailed struct {
	Command string
	Err     error
}

type InstallExited struct {
	Command string
	Code    int
}

type ServerStarted struct {
	Command string
}

// ServerOutput is a chunk of dev server output.
type ServerOutput struct {
	Chunk string
}

// ServerReady is the runtime's out-of-band notification that a port became reachable.
type ServerReady struct {
	Port int
	URL  string
}

type ServerExited struct {
	Code int
}

type ChatMessageSubmitted struct {
	Message string
}

// PatchGenerated carries the decoded files of a follow-up reply, possibly none.
type PatchGenerated struct {
	Files map[string]string
}

type PatchApplied struct{}

// PatchCancelled reports that the caller gave up on a patch turn before the reply arrived.
type PatchCancelled struct {
	Err error
}

// FileEdited is a direct edit from the user, bypassing the model.
type FileEdited struct {
	Path    string
	Content string
}

type RuntimeFailed struct {
	Reason FailureReason
	Err    error
}

func (PromptSubmitted) isEvent()      {}
func (TemplateSelected) isEvent()     {}
func (ClassificationFailed) isEvent() {}
func (GatewayFailed) isEvent()        {}
func (GenerationCompleted) isEvent()  {}
func (SandboxBooted) isEvent()        {}
func (FileWriteFailed) isEvent()      {}
func (FilesMounted) isEvent()         {}
func (OutputLine) isEvent()           {}
func (OutputFailed) isEvent()         {}
func (InstallExited) isEvent()        {}
func (ServerStarted) isEvent()        {}
func (ServerOutput) isEvent()         {}
func (ServerReady) isEvent()          {}
func (ServerExited) isEvent()         {}
func (ChatMessageSubmitted) isEvent() {}
func (PatchGenerated) isEvent()       {}
func (PatchApplied) isEvent()         {}
func (PatchCancelled) isEvent()       {}
func (FileEdited) isEvent()           {}
func (RuntimeFailed) isEvent()        {}

// Command is a side effect requested by Transition. The set is closed.
type Command interface {
	isCommand()
}

type CmdClassify struct {
	Prompt string
}

type CmdGenerate struct {
	Template string
	Prompt   string
}

// CmdBoot acquires the sandbox instance, reusing an existing one.
type CmdBoot struct{}

type CmdMount struct {
	Files map[string]string
}

type CmdInstall struct {
	Template string
}

type CmdStartServer struct {
	Template string
}

type CmdPatch struct {
	Message string
}

// CmdWriteFiles writes into a running sandbox. With Patch set, PatchApplied follows.
type CmdWriteFiles struct {
	Files map[string]string
	Patch bool
}

func (CmdClassify) isCommand()    {}
func (CmdGenerate) isCommand()    {}
func (CmdBoot) isCommand()        {}
func (CmdMount) isCommand()       {}
func (CmdInstall) isCommand()     {}
func (CmdStartServer) isCommand() {}
func (CmdPatch) isCommand()       {}
func (CmdWriteFiles) isCommand()  {}
