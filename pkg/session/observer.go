package session

import "sync"

// FileChange is one file whose content changed in a transition.
type FileChange struct {
	Path     string `json:"path"`
	Previous string `json:"-"`
	Content  string `json:"content"`
	Created  bool   `json:"created"`
}

// Update describes what a single transition changed.
type Update struct {
	SessionID  string        `json:"sessionId"`
	Phase      Phase         `json:"phase"`
	PrevPhase  Phase         `json:"prevPhase"`
	Failure    FailureReason `json:"failure,omitempty"`
	Status     string        `json:"status"`
	LogLines   []string      `json:"logLines,omitempty"`
	URL        string        `json:"url,omitempty"`
	URLChanged bool          `json:"urlChanged,omitempty"`
	Files      []FileChange  `json:"files,omitempty"`
}

// PhaseChanged reports whether the update moved the session to a new phase.
func (u Update) PhaseChanged() bool {
	return u.Phase != u.PrevPhase
}

// Observer receives every update in order. Observe is called while the session is locked,
// so implementations must return quickly and must not call back into the orchestrator.
type Observer interface {
	Observe(u Update)
}

type ObserverFunc func(u Update)

func (f ObserverFunc) Observe(u Update) {
	f(u)
}

type NopObserver struct{}

func (NopObserver) Observe(Update) {}

// MultiObserver fans updates out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) Observe(u Update) {
	for _, o := range m {
		if o != nil {
			o.Observe(u)
		}
	}
}

// Recorder keeps every update. It is used in tests and by the console to replay history.
type Recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *Recorder) Observe(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *Recorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

// Phases lists the distinct phases entered, in order.
func (r *Recorder) Phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	phases := []Phase{}
	for _, u := range r.updates {
		if u.PhaseChanged() {
			phases = append(phases, u.Phase)
		}
	}
	return phases
}
