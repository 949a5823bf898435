package sandbox

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrUnsafePath = errors.New("path escapes the project root")
	ErrClosed     = errors.New("sandbox instance is closed")
)

// Runtime provides isolated project environments.
type Runtime interface {
	Boot(ctx context.Context) (Instance, error)
}

// Instance is one booted environment: a file system rooted at the project plus process execution.
type Instance interface {
	// Mkdir creates path. With recursive set, missing parents are created and an existing
	// directory is not an error.
	Mkdir(ctx context.Context, path string, recursive bool) error
	WriteFile(ctx context.Context, path string, content string) error
	// Spawn starts a command in the project root. Output is stdout and stderr merged.
	Spawn(ctx context.Context, name string, args ...string) (Process, error)
	// OnServerReady registers fn to be called whenever a server in the instance becomes reachable.
	OnServerReady(fn func(port int, url string))
	Close() error
}

type Process interface {
	Output() io.ReadCloser
	// Exit blocks until the process ends and returns its exit code.
	Exit(ctx context.Context) (int, error)
	Kill() error
}

// CleanPath normalises a model-supplied path to a slash separated path relative to the
// project root, rejecting anything that would leave it.
func CleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", ErrUnsafePath
	}

	slashed := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(slashed, "/") || (len(slashed) > 1 && slashed[1] == ':') {
		return "", ErrUnsafePath
	}

	for _, segment := range strings.Split(slashed, "/") {
		if segment == ".." {
			return "", ErrUnsafePath
		}
	}

	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return "", ErrUnsafePath
	}

	return cleaned, nil
}

// CommandLine renders a command for logs and status lines.
func CommandLine(name string, args ...string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
