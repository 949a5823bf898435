package sandbox

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "src/App.tsx", want: "src/App.tsx"},
		{in: "./index.html", want: "index.html"},
		{in: "src//components/./Button.tsx", want: "src/components/Button.tsx"},
		{in: "src\\main.ts", want: "src/main.ts"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: ".", wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "\\windows\\system32", wantErr: true},
		{in: "C:/Users/x", wantErr: true},
		{in: "../outside.txt", wantErr: true},
		{in: "src/../../outside.txt", wantErr: true},
		{in: "src/..", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanPath(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsafePath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, "npm install", CommandLine("npm", "install"))
	assert.Equal(t, "npx vite --host", CommandLine("npx", "vite", "--host"))
	assert.Equal(t, "ls", CommandLine("ls"))
}

func TestMemoryFileSystem(t *testing.T) {
	ctx := context.Background()
	inst, err := NewMemoryRuntime().Boot(ctx)
	require.NoError(t, err)
	mem := inst.(*MemoryInstance)

	err = inst.WriteFile(ctx, "src/App.tsx", "x")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	err = inst.Mkdir(ctx, "src/components", false)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, inst.Mkdir(ctx, "src/components", true))
	require.NoError(t, inst.Mkdir(ctx, "src/components", true))
	assert.ErrorIs(t, inst.Mkdir(ctx, "src", false), fs.ErrExist)

	require.NoError(t, inst.WriteFile(ctx, "src/App.tsx", "app"))
	require.NoError(t, inst.WriteFile(ctx, "README.md", "readme"))

	assert.Equal(t, map[string]string{"src/App.tsx": "app", "README.md": "readme"}, mem.Files())
	assert.Equal(t, []string{".", "src", "src/components"}, mem.Dirs())
	assert.ErrorIs(t, inst.WriteFile(ctx, "../x", "y"), ErrUnsafePath)
}

func TestMemoryScriptedProcess(t *testing.T) {
	ctx := context.Background()
	rt := NewMemoryRuntime().
		Script("npm install", Script{Output: []string{"added 1 package"}, ExitCode: 1}).
		Script("npx vite --host", Script{Output: []string{"  Local:   http://localhost:5173/"}, Hold: true, ReadyPort: 5173, ReadyURL: "http://localhost:5173"})

	inst, err := rt.Boot(ctx)
	require.NoError(t, err)

	proc, err := inst.Spawn(ctx, "npm", "install")
	require.NoError(t, err)
	out, err := io.ReadAll(proc.Output())
	require.NoError(t, err)
	assert.Equal(t, "added 1 package\n", string(out))
	code, err := proc.Exit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	ready := make(chan string, 1)
	inst.OnServerReady(func(port int, url string) {
		ready <- url
	})

	dev, err := inst.Spawn(ctx, "npx", "vite", "--host")
	require.NoError(t, err)
	go func() {
		_, _ = io.Copy(io.Discard, dev.Output())
	}()

	select {
	case url := <-ready:
		assert.Equal(t, "http://localhost:5173", url)
	case <-time.After(2 * time.Second):
		t.Fatal("no server-ready notification")
	}

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = dev.Exit(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, inst.Close())
	code, err = dev.Exit(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, code)

	assert.Equal(t, []string{"npm install", "npx vite --host"}, inst.(*MemoryInstance).Spawned())

	_, err = inst.Spawn(ctx, "ls")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	_, err := NewMemoryRuntime().FailBoot(boom).Boot(ctx)
	assert.ErrorIs(t, err, boom)

	inst, err := NewMemoryRuntime().FailWrite("a.txt", boom).Boot(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, inst.WriteFile(ctx, "a.txt", "x"), boom)
	assert.NoError(t, inst.WriteFile(ctx, "b.txt", "x"))
}

func TestLocalRuntime(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}

	ctx := context.Background()
	root := t.TempDir()
	rt := NewLocalRuntime(LocalRuntimeOpts{Root: root})

	inst, err := rt.Boot(ctx)
	require.NoError(t, err)
	defer inst.Close()

	dir := inst.(*localInstance).Dir()
	assert.True(t, strings.HasPrefix(dir, root))

	require.NoError(t, inst.Mkdir(ctx, "src/lib", true))
	require.NoError(t, inst.WriteFile(ctx, "src/lib/hello.txt", "hello"))
	b, err := os.ReadFile(filepath.Join(dir, "src", "lib", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	assert.ErrorIs(t, inst.Mkdir(ctx, "src", false), fs.ErrExist)
	assert.ErrorIs(t, inst.WriteFile(ctx, "/etc/hosts", "x"), ErrUnsafePath)

	proc, err := inst.Spawn(ctx, "sh", "-c", "cat src/lib/hello.txt; echo; echo oops 1>&2; exit 3")
	require.NoError(t, err)
	out, err := io.ReadAll(proc.Output())
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello\n")
	assert.Contains(t, string(out), "oops\n")

	code, err := proc.Exit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestLocalRuntimeServerReadyProbe(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	// free the port so it is not considered busy at spawn time
	require.NoError(t, l.Close())

	ctx := context.Background()
	rt := NewLocalRuntime(LocalRuntimeOpts{
		Root:          t.TempDir(),
		ProbePorts:    []int{port},
		ProbeInterval: 10 * time.Millisecond,
	})

	inst, err := rt.Boot(ctx)
	require.NoError(t, err)
	defer inst.Close()

	ready := make(chan int, 1)
	inst.OnServerReady(func(p int, url string) {
		ready <- p
	})

	proc, err := inst.Spawn(ctx, "sleep", "5")
	require.NoError(t, err)
	go func() {
		_, _ = io.Copy(io.Discard, proc.Output())
	}()

	server, err := net.Listen("tcp", l.Addr().String())
	require.NoError(t, err)
	defer server.Close()
	go func() {
		for {
			conn, err := server.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	select {
	case p := <-ready:
		assert.Equal(t, port, p)
	case <-time.After(3 * time.Second):
		t.Fatal("probe did not detect the listening port")
	}
}
