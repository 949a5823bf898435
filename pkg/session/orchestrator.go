package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/cognitodev/launchpad/pkg/chat"
	"github.com/cognitodev/launchpad/pkg/llm"
	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/sandbox"
	"github.com/cognitodev/launchpad/pkg/starter"
	"github.com/cognitodev/launchpad/pkg/stream"
	"go.uber.org/zap"
)

type Deps struct {
	Gateway llm.Gateway
	// Classifier answers the template classification call; Gateway is used when nil
	Classifier llm.Gateway
	Runtime    sandbox.Runtime
	Catalog    *starter.Catalog
	Observer   Observer
	// Now is used for the refresh parameter
	Now func() time.Time
}

// Orchestrator runs one session: it feeds events through Transition one at a time and
// executes the resulting commands against the gateway and sandbox runtime.
type Orchestrator struct {
	id      string
	deps    Deps
	history *chat.History
	log     *zap.Logger

	// turn is held by the running Start or SendMessage; later callers queue on it
	turn chan struct{}

	mu       sync.Mutex
	session  Session
	instance sandbox.Instance
	server   sandbox.Process
	changed  chan struct{}

	// lifetime bounds the dev server and runtime callbacks; Close cancels it
	lifetime context.Context
	cancel   context.CancelFunc

	// owned observers belong to this session alone and are closed with it
	owned []Observer
}

func NewOrchestrator(id string, deps Deps) *Orchestrator {
	if deps.Classifier == nil {
		deps.Classifier = deps.Gateway
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	lifetime, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		id:       id,
		deps:     deps,
		history:  chat.NewHistory(),
		log:      logger.With(zap.String("session", id)),
		session:  NewSession(id),
		changed:  make(chan struct{}),
		turn:     make(chan struct{}, 1),
		lifetime: lifetime,
		cancel:   cancel,
	}
}

func (o *Orchestrator) ID() string {
	return o.id
}

// Start runs the build pipeline for prompt and returns once the session is ready or failed.
func (o *Orchestrator) Start(ctx context.Context, prompt string) error {
	if err := o.acquireTurn(ctx); err != nil {
		return err
	}
	defer o.releaseTurn()

	current := o.Snapshot()
	if current.Phase == PhaseFailed {
		return current.Error()
	}
	if current.Phase != PhaseIdle {
		return ErrAlreadyStarted
	}

	o.log.Info("starting build", zap.Int("promptLength", len(prompt)))
	o.dispatch(ctx, PromptSubmitted{Prompt: prompt})

	s, err := o.WaitFor(ctx, PhaseReady, PhaseFailed)
	if err != nil {
		return err
	}
	return s.Error()
}

// SendMessage runs one patch turn. A message sent while another turn is patching waits for
// it; a session that has not finished building yet is rejected with ErrNotReady.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	if err := o.checkReady(PhaseReady, PhasePatching); err != nil {
		return err
	}

	if err := o.acquireTurn(ctx); err != nil {
		return err
	}
	defer o.releaseTurn()

	if err := o.checkReady(PhaseReady); err != nil {
		return err
	}

	o.dispatch(ctx, ChatMessageSubmitted{Message: text})

	if err := ctx.Err(); err != nil {
		return err
	}
	return o.Snapshot().Error()
}

func (o *Orchestrator) acquireTurn(ctx context.Context) error {
	select {
	case o.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) releaseTurn() {
	<-o.turn
}

func (o *Orchestrator) checkReady(accepted ...Phase) error {
	current := o.Snapshot()
	if current.Phase == PhaseFailed {
		return current.Error()
	}
	for _, p := range accepted {
		if current.Phase == p {
			return nil
		}
	}
	return fmt.Errorf("%w: phase is %s", ErrNotReady, current.Phase)
}

// EditFile replaces one file, writing it through to the sandbox when one exists.
func (o *Orchestrator) EditFile(ctx context.Context, p string, content string) error {
	if _, err := sandbox.CleanPath(p); err != nil {
		return fmt.Errorf("%q: %w", p, err)
	}
	o.dispatch(ctx, FileEdited{Path: p, Content: content})
	return nil
}

// RefreshURL returns the preview URL with a cache-busting parameter, if a URL is known.
func (o *Orchestrator) RefreshURL() (string, bool) {
	o.mu.Lock()
	current := o.session.URL
	o.mu.Unlock()

	if current == "" {
		return "", false
	}

	u, err := url.Parse(current)
	if err != nil {
		return current, true
	}
	q := u.Query()
	q.Set("refresh", strconv.FormatInt(o.deps.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), true
}

// Snapshot returns an independent copy of the session state.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Clone()
}

// History returns the chat turns sent to the model so far.
func (o *Orchestrator) History() []types.Message {
	return o.history.Snapshot()
}

// WaitFor blocks until the session is in one of phases.
func (o *Orchestrator) WaitFor(ctx context.Context, phases ...Phase) (Session, error) {
	for {
		o.mu.Lock()
		for _, p := range phases {
			if o.session.Phase == p {
				s := o.session.Clone()
				o.mu.Unlock()
				return s, nil
			}
		}
		changed := o.changed
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			return Session{}, ctx.Err()
		case <-changed:
		}
	}
}

// Close stops the dev server and releases the sandbox instance.
func (o *Orchestrator) Close() error {
	o.cancel()

	o.mu.Lock()
	instance := o.instance
	server := o.server
	o.mu.Unlock()

	if server != nil {
		if err := server.Kill(); err != nil {
			o.log.Warn("failed to stop dev server", zap.Error(err))
		}
	}

	o.mu.Lock()
	owned := o.owned
	o.owned = nil
	o.mu.Unlock()
	for _, obs := range owned {
		if c, ok := obs.(interface{ Close() }); ok {
			c.Close()
		}
	}

	if instance == nil {
		return nil
	}
	return instance.Close()
}

func (o *Orchestrator) dispatch(ctx context.Context, e Event) {
	for _, cmd := range o.apply(e) {
		o.execute(ctx, cmd)
	}
}

// apply runs one transition under the lock and notifies the observer of what changed.
func (o *Orchestrator) apply(e Event) []Command {
	o.mu.Lock()
	defer o.mu.Unlock()

	prevPhase := o.session.Phase
	prevStatus := o.session.Status
	prevURL := o.session.URL
	prevLogLen := len(o.session.Log)
	prevFiles := previousContents(o.session.Files, eventFiles(e))

	next, cmds := Transition(o.session, e)
	o.session = next

	update := Update{
		SessionID: next.ID,
		Phase:     next.Phase,
		PrevPhase: prevPhase,
		Failure:   next.Failure,
		Status:    next.Status,
		URL:       next.URL,
	}
	if len(next.Log) > prevLogLen {
		update.LogLines = append([]string{}, next.Log[prevLogLen:]...)
	}
	update.URLChanged = next.URL != prevURL
	update.Files = changedFiles(prevFiles, next.Files)

	if prevPhase != next.Phase {
		o.log.Info("phase changed",
			zap.String("from", string(prevPhase)),
			zap.String("to", string(next.Phase)),
			zap.String("status", next.Status))
	}

	if update.Phase != prevPhase || update.Status != prevStatus || update.URLChanged || len(update.LogLines) > 0 || len(update.Files) > 0 {
		o.deps.Observer.Observe(update)
	}

	close(o.changed)
	o.changed = make(chan struct{})

	return cmds
}

func (o *Orchestrator) execute(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case CmdClassify:
		o.classify(ctx, c)
	case CmdGenerate:
		o.generate(ctx, c)
	case CmdBoot:
		o.boot(ctx)
	case CmdMount:
		o.writeFiles(ctx, c.Files)
		o.dispatch(ctx, FilesMounted{})
	case CmdInstall:
		o.install(ctx, c)
	case CmdStartServer:
		o.startServer(c)
	case CmdPatch:
		o.patch(ctx, c)
	case CmdWriteFiles:
		o.writeFiles(ctx, c.Files)
		if c.Patch {
			o.dispatch(ctx, PatchApplied{})
		}
	default:
		o.log.Error("unknown command", zap.String("type", fmt.Sprintf("%T", cmd)))
	}
}

func (o *Orchestrator) classify(ctx context.Context, c CmdClassify) {
	id, reply, err := llm.ClassifyTemplate(ctx, o.deps.Classifier, c.Prompt, o.deps.Catalog.IDs())
	if errors.Is(err, llm.ErrNoTemplateMatch) {
		o.dispatch(ctx, ClassificationFailed{Reply: reply})
		return
	}
	if err != nil {
		o.dispatch(ctx, GatewayFailed{Err: err})
		return
	}

	tmpl, ok := o.deps.Catalog.Get(id)
	if !ok {
		o.dispatch(ctx, ClassificationFailed{Reply: reply})
		return
	}

	o.dispatch(ctx, TemplateSelected{
		Template: id,
		Starter:  llm.ParseFiles(tmpl.Starter),
	})
}

func (o *Orchestrator) generate(ctx context.Context, c CmdGenerate) {
	tmpl, _ := o.deps.Catalog.Get(c.Template)

	for _, p := range tmpl.Prompts() {
		o.history.Append(types.RoleUser, p)
	}
	o.history.Append(types.RoleUser, c.Prompt)

	reply, err := o.deps.Gateway.Generate(ctx, o.history.Snapshot(), types.GenerateFilesOptions)
	if err != nil {
		o.dispatch(ctx, GatewayFailed{Err: err})
		return
	}
	o.history.Append(types.RoleAssistant, reply)

	o.dispatch(ctx, GenerationCompleted{Files: llm.ParseFiles(reply)})
}

func (o *Orchestrator) boot(ctx context.Context) {
	o.mu.Lock()
	instance := o.instance
	o.mu.Unlock()

	if instance == nil {
		booted, err := o.deps.Runtime.Boot(ctx)
		if err != nil {
			o.dispatch(ctx, RuntimeFailed{Reason: ReasonBootError, Err: err})
			return
		}

		booted.OnServerReady(func(port int, url string) {
			if o.lifetime.Err() != nil {
				return
			}
			o.dispatch(o.lifetime, ServerReady{Port: port, URL: url})
		})

		o.mu.Lock()
		o.instance = booted
		o.mu.Unlock()
	}

	o.dispatch(ctx, SandboxBooted{})
}

// writeFiles writes every file concurrently. Each file's parent directory is created first;
// a failure is reported for that path only.
func (o *Orchestrator) writeFiles(ctx context.Context, files map[string]string) {
	o.mu.Lock()
	instance := o.instance
	o.mu.Unlock()

	if instance == nil {
		return
	}

	wg := sync.WaitGroup{}
	for p, content := range files {
		wg.Add(1)
		go func(p string, content string) {
			defer wg.Done()

			if dir := path.Dir(p); dir != "." {
				if err := instance.Mkdir(ctx, dir, true); err != nil && !errors.Is(err, fs.ErrExist) {
					o.dispatch(ctx, FileWriteFailed{Path: p, Err: err})
					return
				}
			}

			if err := instance.WriteFile(ctx, p, content); err != nil {
				o.dispatch(ctx, FileWriteFailed{Path: p, Err: err})
			}
		}(p, content)
	}
	wg.Wait()
}

func (o *Orchestrator) install(ctx context.Context, c CmdInstall) {
	tmpl, _ := o.deps.Catalog.Get(c.Template)
	commandLine := sandbox.CommandLine(tmpl.Install.Name, tmpl.Install.Args...)

	o.mu.Lock()
	instance := o.instance
	o.mu.Unlock()

	proc, err := instance.Spawn(ctx, tmpl.Install.Name, tmpl.Install.Args...)
	if err != nil {
		o.dispatch(ctx, RuntimeFailed{Reason: ReasonInstallError, Err: err})
		return
	}

	if err := stream.Drain(ctx, proc.Output(), func(chunk string) error {
		o.dispatch(ctx, OutputLine{Line: chunk})
		return nil
	}); err != nil {
		o.log.Warn("install output ended early", zap.Error(err))
		if ctx.Err() == nil {
			o.dispatch(ctx, OutputFailed{Command: commandLine, Err: err})
		}
	}

	code, err := proc.Exit(ctx)
	if err != nil {
		o.dispatch(ctx, RuntimeFailed{Reason: ReasonInstallError, Err: err})
		return
	}

	o.dispatch(ctx, InstallExited{Command: commandLine, Code: code})
}

// startServer spawns the dev server and drains it in the background for the session's lifetime.
func (o *Orchestrator) startServer(c CmdStartServer) {
	tmpl, _ := o.deps.Catalog.Get(c.Template)
	ctx := o.lifetime

	o.mu.Lock()
	instance := o.instance
	o.mu.Unlock()

	proc, err := instance.Spawn(ctx, tmpl.Dev.Name, tmpl.Dev.Args...)
	if err != nil {
		o.dispatch(ctx, RuntimeFailed{Reason: ReasonServerStartError, Err: err})
		return
	}

	o.mu.Lock()
	o.server = proc
	o.mu.Unlock()

	commandLine := sandbox.CommandLine(tmpl.Dev.Name, tmpl.Dev.Args...)
	o.dispatch(ctx, ServerStarted{Command: commandLine})

	go func() {
		if err := stream.Drain(ctx, proc.Output(), func(chunk string) error {
			o.dispatch(ctx, ServerOutput{Chunk: chunk})
			return nil
		}); err != nil && ctx.Err() == nil {
			o.log.Warn("dev server output ended", zap.Error(err))
			o.dispatch(ctx, OutputFailed{Command: commandLine, Err: err})
		}

		code, err := proc.Exit(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			o.log.Warn("failed to wait for dev server", zap.Error(err))
			code = -1
		}
		o.dispatch(ctx, ServerExited{Code: code})
	}()
}

func (o *Orchestrator) patch(ctx context.Context, c CmdPatch) {
	o.history.Append(types.RoleUser, c.Message)

	reply, err := o.deps.Gateway.Generate(ctx, o.history.Snapshot(), types.GenerateFilesOptions)
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			o.log.Info("patch turn cancelled", zap.Error(err))
			o.dispatch(o.lifetime, PatchCancelled{Err: err})
			return
		}
		o.dispatch(ctx, GatewayFailed{Err: err})
		return
	}
	o.history.Append(types.RoleAssistant, reply)

	o.dispatch(ctx, PatchGenerated{Files: llm.ParseFiles(reply)})
}

// eventFiles returns the raw files an event will merge.
func eventFiles(e Event) map[string]string {
	switch ev := e.(type) {
	case TemplateSelected:
		return ev.Starter
	case GenerationCompleted:
		return ev.Files
	case PatchGenerated:
		return ev.Files
	case FileEdited:
		return map[string]string{ev.Path: ev.Content}
	}
	return nil
}

type previousFile struct {
	content string
	existed bool
}

func previousContents(current map[string]string, incoming map[string]string) map[string]previousFile {
	if len(incoming) == 0 {
		return nil
	}
	prev := map[string]previousFile{}
	for p := range incoming {
		cleaned, err := sandbox.CleanPath(p)
		if err != nil {
			continue
		}
		content, ok := current[cleaned]
		prev[cleaned] = previousFile{content: content, existed: ok}
	}
	return prev
}

func changedFiles(prev map[string]previousFile, after map[string]string) []FileChange {
	changes := []FileChange{}
	for _, p := range sortedPrevPaths(prev) {
		content, ok := after[p]
		if !ok {
			continue
		}
		before := prev[p]
		if before.existed && before.content == content {
			continue
		}
		changes = append(changes, FileChange{
			Path:     p,
			Previous: before.content,
			Content:  content,
			Created:  !before.existed,
		})
	}
	return changes
}

func sortedPrevPaths(prev map[string]previousFile) []string {
	files := make(map[string]string, len(prev))
	for p := range prev {
		files[p] = ""
	}
	return sortedPaths(files)
}
