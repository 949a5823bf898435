package session

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cognitodev/launchpad/pkg/sandbox"
	"github.com/cognitodev/launchpad/pkg/stream"
)

var localURLRegex = regexp.MustCompile(`Local:\s+(https?://[^\s]+)`)

// Transition applies e to s and returns the next state plus the side effects to run.
// It performs no I/O. s is consumed: its map and log are updated in place.
func Transition(s Session, e Event) (Session, []Command) {
	switch ev := e.(type) {
	case FileEdited:
		// edits are accepted in every phase and never change it
		accepted := merge(&s, map[string]string{ev.Path: ev.Content})
		if len(accepted) == 0 || !s.Booted {
			return s, nil
		}
		return s, []Command{CmdWriteFiles{Files: accepted}}

	case OutputLine:
		appendOutput(&s, ev.Line)
		return s, nil

	case FileWriteFailed:
		appendLog(&s, fmt.Sprintf("ERROR: failed to write %s: %v", ev.Path, ev.Err))
		return s, nil

	case OutputFailed:
		appendLog(&s, fmt.Sprintf("ERROR: output of %s ended early: %v", ev.Command, ev.Err))
		return s, nil

	case ServerStarted:
		s.ServerRunning = true
		return s, nil

	case ServerOutput:
		appendOutput(&s, ev.Chunk)
		if match := localURLRegex.FindStringSubmatch(stream.StripANSI(ev.Chunk)); match != nil {
			recordURL(&s, match[1])
		}
		return s, nil

	case ServerReady:
		recordURL(&s, ev.URL)
		return s, nil

	case ServerExited:
		s.ServerRunning = false
		if s.Phase == PhaseStartingServer {
			return fail(s, ReasonServerStartError, fmt.Sprintf("Dev server exited with code %d before it was ready", ev.Code)), nil
		}
		appendLog(&s, fmt.Sprintf("Dev server exited with code %d", ev.Code))
		return s, nil
	}

	if s.Phase == PhaseFailed {
		return s, nil
	}

	switch ev := e.(type) {
	case RuntimeFailed:
		return fail(s, ev.Reason, fmt.Sprintf("ERROR: %v", ev.Err)), nil

	case GatewayFailed:
		switch s.Phase {
		case PhaseClassifying, PhaseGenerating, PhasePatching:
			return fail(s, ReasonGatewayUnavailable, fmt.Sprintf("ERROR: %v", ev.Err)), nil
		}
		return s, nil
	}

	switch s.Phase {
	case PhaseIdle:
		if ev, ok := e.(PromptSubmitted); ok {
			s.Prompt = ev.Prompt
			s.Phase = PhaseClassifying
			s.Status = "Choosing a template..."
			return s, []Command{CmdClassify{Prompt: ev.Prompt}}
		}

	case PhaseClassifying:
		switch ev := e.(type) {
		case TemplateSelected:
			s.Template = ev.Template
			merge(&s, ev.Starter)
			appendLog(&s, fmt.Sprintf("Using %s template", ev.Template))
			s.Phase = PhaseGenerating
			s.Status = "Generating files..."
			return s, []Command{CmdGenerate{Template: ev.Template, Prompt: s.Prompt}}
		case ClassificationFailed:
			return fail(s, ReasonInvalidTemplate, fmt.Sprintf("ERROR: no template matched reply %q", strings.TrimSpace(ev.Reply))), nil
		}

	case PhaseGenerating:
		if ev, ok := e.(GenerationCompleted); ok {
			merge(&s, ev.Files)
			if len(s.Files) == 0 {
				return fail(s, ReasonNoFiles, "ERROR: the reply did not contain any files"), nil
			}
			s.Phase = PhaseBooting
			s.Status = "Booting sandbox..."
			return s, []Command{CmdBoot{}}
		}

	case PhaseBooting:
		if _, ok := e.(SandboxBooted); ok {
			s.Booted = true
			appendLog(&s, "Sandbox booted successfully")
			s.Phase = PhaseMountingFiles
			s.Status = "Creating file system..."
			return s, []Command{CmdMount{Files: copyFiles(s.Files)}}
		}

	case PhaseMountingFiles:
		if _, ok := e.(FilesMounted); ok {
			appendLog(&s, "File system created")
			s.Phase = PhaseInstallingDeps
			s.Status = "Installing dependencies..."
			return s, []Command{CmdInstall{Template: s.Template}}
		}

	case PhaseInstallingDeps:
		if ev, ok := e.(InstallExited); ok {
			appendLog(&s, fmt.Sprintf("%s completed with exit code %d", ev.Command, ev.Code))
			if ev.Code != 0 {
				return fail(s, ReasonInstallError, fmt.Sprintf("ERROR: dependency install failed with exit code %d", ev.Code)), nil
			}
			appendLog(&s, "Starting dev server...")
			s.Phase = PhaseStartingServer
			s.Status = "Starting dev server..."
			return s, []Command{CmdStartServer{Template: s.Template}}
		}

	case PhaseReady:
		if ev, ok := e.(ChatMessageSubmitted); ok {
			s.Phase = PhasePatching
			s.Status = "Making changes..."
			return s, []Command{CmdPatch{Message: ev.Message}}
		}

	case PhasePatching:
		switch ev := e.(type) {
		case PatchGenerated:
			accepted := merge(&s, ev.Files)
			if len(accepted) == 0 {
				appendLog(&s, "No file changes in reply")
				s.Phase = PhaseReady
				s.Status = "All changes are done"
				return s, nil
			}
			for _, p := range sortedPaths(accepted) {
				appendLog(&s, "Making changes in "+p)
			}
			s.Status = fmt.Sprintf("Making changes in %d file(s)", len(accepted))
			return s, []Command{CmdWriteFiles{Files: accepted, Patch: true}}
		case PatchApplied:
			s.Phase = PhaseReady
			s.Status = "All changes are done"
			return s, nil
		case PatchCancelled:
			appendLog(&s, fmt.Sprintf("Changes cancelled: %v", ev.Err))
			s.Phase = PhaseReady
			s.Status = "Changes cancelled"
			return s, nil
		}
	}

	return s, nil
}

// merge writes files into the session's file map, rejecting unsafe paths with a log line.
// It returns the accepted entries keyed by their cleaned path.
func merge(s *Session, files map[string]string) map[string]string {
	accepted := map[string]string{}
	for _, p := range sortedPaths(files) {
		cleaned, err := sandbox.CleanPath(p)
		if err != nil {
			appendLog(s, fmt.Sprintf("ERROR: rejected unsafe path %q", p))
			continue
		}
		s.Files[cleaned] = files[p]
		accepted[cleaned] = files[p]
	}
	return accepted
}

func recordURL(s *Session, url string) {
	if s.Phase == PhaseFailed || url == "" {
		return
	}

	url = strings.TrimRight(url, "/")
	if strings.HasSuffix(url, ":") {
		return
	}

	s.URL = url
	if s.Phase == PhaseStartingServer {
		appendLog(s, "Server ready on "+url)
		s.Phase = PhaseReady
		s.Status = "Running"
	}
}

func fail(s Session, reason FailureReason, line string) Session {
	appendLog(&s, line)
	s.Phase = PhaseFailed
	s.Failure = reason
	s.Status = statusForReason[reason]
	return s
}

func appendLog(s *Session, line string) {
	s.Log = append(s.Log, line)
}

// appendOutput logs subprocess output without colour codes or the trailing newline.
func appendOutput(s *Session, chunk string) {
	line := strings.TrimRight(stream.StripANSI(chunk), "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	appendLog(s, line)
}

func sortedPaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func copyFiles(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for k, v := range files {
		out[k] = v
	}
	return out
}
