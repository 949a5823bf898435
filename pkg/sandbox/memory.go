package sandbox

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"sync"
)

// Script describes how a MemoryRuntime process behaves.
type Script struct {
	Output   []string
	ExitCode int
	// Hold keeps the process alive after its output until it is killed, like a dev server.
	Hold bool
	// ReadyPort, when set, fires a server-ready notification after the output is written.
	ReadyPort int
	ReadyURL  string
	SpawnErr  error
	// OutputErr breaks the output stream with this error after Output is written.
	OutputErr error
}

// MemoryRuntime is an in-process Runtime with a map file system and scripted processes.
// Commands without a script exit 0 with no output.
type MemoryRuntime struct {
	mu        sync.Mutex
	scripts   map[string]Script
	bootErr   error
	writeErrs map[string]error
	instances []*MemoryInstance
}

func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{
		scripts:   map[string]Script{},
		writeErrs: map[string]error{},
	}
}

// Script registers behaviour for a command line such as "npm install".
func (r *MemoryRuntime) Script(commandLine string, s Script) *MemoryRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[commandLine] = s
	return r
}

func (r *MemoryRuntime) FailBoot(err error) *MemoryRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bootErr = err
	return r
}

// FailWrite makes every write to p fail with err.
func (r *MemoryRuntime) FailWrite(p string, err error) *MemoryRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErrs[p] = err
	return r
}

func (r *MemoryRuntime) Boot(ctx context.Context) (Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bootErr != nil {
		return nil, r.bootErr
	}

	inst := &MemoryInstance{
		runtime: r,
		files:   map[string]string{},
		dirs:    map[string]bool{".": true},
	}
	r.instances = append(r.instances, inst)
	return inst, nil
}

// Instances returns every instance booted so far.
func (r *MemoryRuntime) Instances() []*MemoryInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*MemoryInstance(nil), r.instances...)
}

func (r *MemoryRuntime) script(commandLine string) Script {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scripts[commandLine]
}

func (r *MemoryRuntime) writeErr(p string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeErrs[p]
}

type MemoryInstance struct {
	runtime *MemoryRuntime

	mu        sync.Mutex
	closed    bool
	files     map[string]string
	dirs      map[string]bool
	writes    []string
	spawned   []string
	listeners []func(port int, url string)
	procs     []*memoryProcess
}

func (i *MemoryInstance) Mkdir(ctx context.Context, p string, recursive bool) error {
	cleaned, err := CleanPath(p)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}

	if !recursive {
		if i.dirs[cleaned] {
			return fs.ErrExist
		}
		if !i.dirs[path.Dir(cleaned)] {
			return fmt.Errorf("mkdir %s: %w", p, fs.ErrNotExist)
		}
		i.dirs[cleaned] = true
		return nil
	}

	for dir := cleaned; dir != "."; dir = path.Dir(dir) {
		i.dirs[dir] = true
	}
	return nil
}

func (i *MemoryInstance) WriteFile(ctx context.Context, p string, content string) error {
	cleaned, err := CleanPath(p)
	if err != nil {
		return err
	}

	if err := i.runtime.writeErr(cleaned); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	if !i.dirs[path.Dir(cleaned)] {
		return fmt.Errorf("write %s: parent directory: %w", p, fs.ErrNotExist)
	}

	i.files[cleaned] = content
	i.writes = append(i.writes, cleaned)
	return nil
}

func (i *MemoryInstance) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	commandLine := CommandLine(name, args...)
	script := i.runtime.script(commandLine)
	if script.SpawnErr != nil {
		return nil, script.SpawnErr
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil, ErrClosed
	}
	i.spawned = append(i.spawned, commandLine)
	i.mu.Unlock()

	pr, pw := io.Pipe()
	proc := &memoryProcess{
		output: pr,
		done:   make(chan struct{}),
		killed: make(chan struct{}),
		code:   script.ExitCode,
	}

	i.mu.Lock()
	i.procs = append(i.procs, proc)
	i.mu.Unlock()

	go func() {
		defer close(proc.done)
		defer pw.Close()

		for _, line := range script.Output {
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				return
			}
		}
		if script.OutputErr != nil {
			_ = pw.CloseWithError(script.OutputErr)
		}

		if script.ReadyPort != 0 {
			i.notifyReady(script.ReadyPort, script.ReadyURL)
		}

		if script.Hold {
			select {
			case <-proc.killed:
				proc.code = -1
			case <-ctx.Done():
				proc.code = -1
			}
		}
	}()

	return proc, nil
}

func (i *MemoryInstance) notifyReady(port int, url string) {
	i.mu.Lock()
	listeners := append([]func(int, string){}, i.listeners...)
	i.mu.Unlock()

	for _, fn := range listeners {
		fn(port, url)
	}
}

// EmitServerReady fires a server-ready notification as the runtime would.
func (i *MemoryInstance) EmitServerReady(port int, url string) {
	i.notifyReady(port, url)
}

func (i *MemoryInstance) OnServerReady(fn func(port int, url string)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, fn)
}

func (i *MemoryInstance) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	procs := i.procs
	i.mu.Unlock()

	for _, p := range procs {
		_ = p.Kill()
	}
	return nil
}

// Files returns a copy of the file system contents.
func (i *MemoryInstance) Files() map[string]string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[string]string, len(i.files))
	for k, v := range i.files {
		out[k] = v
	}
	return out
}

// Writes lists written paths in the order writes completed.
func (i *MemoryInstance) Writes() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.writes...)
}

func (i *MemoryInstance) Dirs() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	dirs := []string{}
	for d := range i.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Spawned lists command lines in spawn order.
func (i *MemoryInstance) Spawned() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.spawned...)
}

type memoryProcess struct {
	output   io.ReadCloser
	done     chan struct{}
	killed   chan struct{}
	killOnce sync.Once
	code     int
}

func (p *memoryProcess) Output() io.ReadCloser {
	return p.output
}

func (p *memoryProcess) Exit(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.done:
		return p.code, nil
	}
}

func (p *memoryProcess) Kill() error {
	p.killOnce.Do(func() {
		close(p.killed)
		// unblocks a writer nobody is reading
		_ = p.output.Close()
	})
	return nil
}
