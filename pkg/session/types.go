package session

import (
	"errors"
)

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseClassifying    Phase = "classifying"
	PhaseGenerating     Phase = "generating"
	PhaseBooting        Phase = "booting"
	PhaseMountingFiles  Phase = "mounting-files"
	PhaseInstallingDeps Phase = "installing-deps"
	PhaseStartingServer Phase = "starting-server"
	PhaseReady          Phase = "ready"
	PhasePatching       Phase = "patching"
	PhaseFailed         Phase = "failed"
)

type FailureReason string

const (
	ReasonInvalidTemplate    FailureReason = "invalid-template"
	ReasonGatewayUnavailable FailureReason = "gateway-unavailable"
	ReasonNoFiles            FailureReason = "no-files"
	ReasonBootError          FailureReason = "boot-error"
	ReasonInstallError       FailureReason = "install-error"
	ReasonServerStartError   FailureReason = "server-start-error"
)

var (
	ErrSessionFailed   = errors.New("session failed")
	ErrNotReady        = errors.New("session is not ready")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrSessionNotFound = errors.New("session not found")
)

// Session is the whole observable state of one build. Transition takes ownership of the value
// it is given, including its map and slice; use Clone to keep an independent copy.
type Session struct {
	ID       string            `json:"id"`
	Phase    Phase             `json:"phase"`
	Failure  FailureReason     `json:"failure,omitempty"`
	Status   string            `json:"status"`
	Prompt   string            `json:"prompt"`
	Template string            `json:"template,omitempty"`
	Files    map[string]string `json:"files"`
	Log      []string          `json:"log"`
	URL      string            `json:"url,omitempty"`

	// Booted is set once a sandbox instance exists; it is never cleared
	Booted bool `json:"booted"`
	// ServerRunning tracks the dev server process between start and exit
	ServerRunning bool `json:"serverRunning"`
}

func NewSession(id string) Session {
	return Session{
		ID:     id,
		Phase:  PhaseIdle,
		Status: "Waiting for a prompt",
		Files:  map[string]string{},
		Log:    []string{},
	}
}

func (s Session) Clone() Session {
	out := s
	out.Files = make(map[string]string, len(s.Files))
	for k, v := range s.Files {
		out.Files[k] = v
	}
	out.Log = append([]string{}, s.Log...)
	return out
}

// Terminal reports whether no further build steps will run.
func (s Session) Terminal() bool {
	return s.Phase == PhaseFailed
}

// Error describes the failure of a failed session.
func (s Session) Error() error {
	if s.Phase != PhaseFailed {
		return nil
	}
	return &FailedError{Reason: s.Failure, Status: s.Status}
}

// FailedError is returned by orchestrator operations once the session has failed.
type FailedError struct {
	Reason FailureReason
	Status string
}

func (e *FailedError) Error() string {
	return "session failed (" + string(e.Reason) + "): " + e.Status
}

func (e *FailedError) Unwrap() error {
	return ErrSessionFailed
}

var statusForReason = map[FailureReason]string{
	ReasonInvalidTemplate:    "Invalid template type",
	ReasonGatewayUnavailable: "Model gateway unavailable",
	ReasonNoFiles:            "No files were generated",
	ReasonBootError:          "Error booting sandbox",
	ReasonInstallError:       "Error installing dependencies",
	ReasonServerStartError:   "Error starting dev server",
}
