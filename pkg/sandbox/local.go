package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cognitodev/launchpad/pkg/logger"
	perrors "github.com/pkg/errors"
	"github.com/tuvistavie/securerandom"
	"go.uber.org/zap"
)

type LocalRuntimeOpts struct {
	// Root is the parent directory for project directories. Defaults to os.TempDir().
	Root string
	// ProbePorts are polled on 127.0.0.1 while a spawned process is alive; the first one to
	// start accepting connections produces a server-ready notification.
	ProbePorts    []int
	ProbeInterval time.Duration
	// Env is appended to the current environment of spawned processes.
	Env []string
}

// LocalRuntime runs projects in directories on the host with os/exec.
type LocalRuntime struct {
	opts LocalRuntimeOpts
}

func NewLocalRuntime(opts LocalRuntimeOpts) *LocalRuntime {
	if opts.Root == "" {
		opts.Root = os.TempDir()
	}
	if opts.ProbeInterval == 0 {
		opts.ProbeInterval = 500 * time.Millisecond
	}
	return &LocalRuntime{opts: opts}
}

func (r *LocalRuntime) Boot(ctx context.Context) (Instance, error) {
	id, err := securerandom.Hex(6)
	if err != nil {
		return nil, perrors.Wrap(err, "failed to generate project id")
	}

	dir := filepath.Join(r.opts.Root, "launchpad-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, perrors.Wrapf(err, "failed to create project dir %q", dir)
	}

	logger.Debug("booted local sandbox", zap.String("dir", dir))

	return &localInstance{
		dir:  dir,
		opts: r.opts,
	}, nil
}

type localInstance struct {
	dir  string
	opts LocalRuntimeOpts

	mu        sync.Mutex
	closed    bool
	listeners []func(port int, url string)
	procs     []*localProcess
}

// Dir is the host directory backing the instance.
func (i *localInstance) Dir() string {
	return i.dir
}

func (i *localInstance) resolve(p string) (string, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return "", fmt.Errorf("%q: %w", p, err)
	}
	return filepath.Join(i.dir, filepath.FromSlash(cleaned)), nil
}

func (i *localInstance) Mkdir(ctx context.Context, p string, recursive bool) error {
	if err := i.checkOpen(); err != nil {
		return err
	}

	full, err := i.resolve(p)
	if err != nil {
		return err
	}

	if recursive {
		return perrors.Wrapf(os.MkdirAll(full, 0755), "failed to create dir %q", p)
	}

	if err := os.Mkdir(full, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fs.ErrExist
		}
		return perrors.Wrapf(err, "failed to create dir %q", p)
	}
	return nil
}

func (i *localInstance) WriteFile(ctx context.Context, p string, content string) error {
	if err := i.checkOpen(); err != nil {
		return err
	}

	full, err := i.resolve(p)
	if err != nil {
		return err
	}

	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return perrors.Wrapf(err, "failed to write file %q", p)
	}
	return nil
}

func (i *localInstance) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	if err := i.checkOpen(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = i.dir
	cmd.Env = append(os.Environ(), i.opts.Env...)

	outputReader, outputWriter := io.Pipe()
	cmd.Stdout = outputWriter
	cmd.Stderr = outputWriter

	busy := i.openPorts()

	if err := cmd.Start(); err != nil {
		outputWriter.Close()
		return nil, perrors.Wrapf(err, "failed to start %s", CommandLine(name, args...))
	}

	proc := &localProcess{
		cmd:    cmd,
		output: outputReader,
		done:   make(chan struct{}),
	}

	go func() {
		proc.waitErr = cmd.Wait()
		outputWriter.Close()
		close(proc.done)
	}()

	go i.probe(proc, busy)

	i.mu.Lock()
	i.procs = append(i.procs, proc)
	i.mu.Unlock()

	return proc, nil
}

func (i *localInstance) OnServerReady(fn func(port int, url string)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, fn)
}

func (i *localInstance) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	procs := i.procs
	i.mu.Unlock()

	for _, p := range procs {
		if err := p.Kill(); err != nil {
			logger.Warn("failed to kill sandbox process", zap.Error(err))
		}
	}
	return nil
}

func (i *localInstance) checkOpen() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	return nil
}

func (i *localInstance) openPorts() map[int]bool {
	busy := map[int]bool{}
	for _, port := range i.opts.ProbePorts {
		if portOpen(port) {
			busy[port] = true
		}
	}
	return busy
}

func (i *localInstance) probe(proc *localProcess, busy map[int]bool) {
	if len(i.opts.ProbePorts) == 0 {
		return
	}

	ticker := time.NewTicker(i.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-proc.done:
			return
		case <-ticker.C:
		}

		for _, port := range i.opts.ProbePorts {
			if busy[port] || !portOpen(port) {
				continue
			}

			url := "http://localhost:" + strconv.Itoa(port)
			i.mu.Lock()
			listeners := append([]func(int, string){}, i.listeners...)
			i.mu.Unlock()

			for _, fn := range listeners {
				fn(port, url)
			}
			return
		}
	}
}

func portOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

type localProcess struct {
	cmd     *exec.Cmd
	output  io.ReadCloser
	done    chan struct{}
	waitErr error
}

func (p *localProcess) Output() io.ReadCloser {
	return p.output
}

func (p *localProcess) Exit(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.done:
	}

	if p.waitErr == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, perrors.Wrap(p.waitErr, "failed to wait for process")
}

func (p *localProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return perrors.Wrap(err, "failed to kill process")
	}
	return nil
}
