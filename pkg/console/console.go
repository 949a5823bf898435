package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/cognitodev/launchpad/pkg/diff"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/pkg/errors"
)

var errExit = errors.New("exit")

// Options configures a console run.
type Options struct {
	// Prompt starts a build before the interactive loop when set
	Prompt string
	// NonInteractive exits once the build finishes instead of reading commands
	NonInteractive bool
	Out            io.Writer
}

// Console drives one session from the terminal.
type Console struct {
	ctx          context.Context
	orchestrator *session.Orchestrator
	readline     *readline.Instance
	out          io.Writer
	options      Options

	// lastInterrupt tracks double Ctrl+C
	lastInterrupt *time.Time
}

func New(ctx context.Context, o *session.Orchestrator, options Options) *Console {
	if options.Out == nil {
		options.Out = os.Stdout
	}
	return &Console{
		ctx:          ctx,
		orchestrator: o,
		out:          options.Out,
		options:      options,
	}
}

// Run builds the initial prompt, if any, then reads commands until exit.
func (c *Console) Run() error {
	if c.options.Prompt != "" {
		if err := c.build(c.options.Prompt); err != nil {
			if c.options.NonInteractive {
				return err
			}
			fmt.Fprintln(c.out, boldRed("Error:"), err)
		}
	}

	if c.options.NonInteractive {
		return nil
	}

	return c.run()
}

func (c *Console) run() error {
	fmt.Fprintln(c.out, boldBlue("Launchpad Console"))
	fmt.Fprintln(c.out, dimText("Type a message to change the app, '/help' for commands, 'exit' to quit"))
	fmt.Fprintln(c.out, dimText("Press Ctrl+C twice in quick succession to exit"))
	fmt.Fprintln(c.out)

	var historyFile string
	usr, err := user.Current()
	if err == nil {
		historyFile = filepath.Join(usr.HomeDir, ".launchpad_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            c.prompt(),
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		HistoryLimit:      1000,
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("/help"),
			readline.PcItem("/build"),
			readline.PcItem("/status"),
			readline.PcItem("/files"),
			readline.PcItem("/cat"),
			readline.PcItem("/edit"),
			readline.PcItem("/patch"),
			readline.PcItem("/refresh"),
			readline.PcItem("/log"),
			readline.PcItem("/history"),
			readline.PcItem("exit"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return errors.Wrap(err, "failed to initialize readline")
	}
	defer rl.Close()
	c.readline = rl

	for {
		rl.SetPrompt(c.prompt())

		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				fmt.Fprintln(c.out, "^C")
				if c.lastInterrupt != nil && time.Since(*c.lastInterrupt) < 2*time.Second {
					fmt.Fprintln(c.out, "Exiting...")
					return nil
				}
				now := time.Now()
				c.lastInterrupt = &now
				continue
			} else if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "failed to read input")
		}

		if err := c.Execute(input); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintln(c.out, boldRed("Error:"), err)
		}
	}
}

func (c *Console) prompt() string {
	s := c.orchestrator.Snapshot()
	switch s.Phase {
	case session.PhaseReady:
		return boldGreen(fmt.Sprintf("%s[%s]> ", s.Template, s.Phase))
	case session.PhaseFailed:
		return boldRed("[failed]> ")
	}
	return boldYellow(fmt.Sprintf("[%s]> ", s.Phase))
}

// Execute runs one line of input: a /command, or a chat message for the session.
func (c *Console) Execute(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	if input == "exit" || input == "quit" {
		return errExit
	}

	if !strings.HasPrefix(input, "/") {
		if c.orchestrator.Snapshot().Phase == session.PhaseIdle {
			return c.build(input)
		}
		return c.orchestrator.SendMessage(c.ctx, input)
	}

	parts := strings.Fields(input)
	cmd := parts[0][1:]
	args := parts[1:]

	switch cmd {
	case "help":
		c.showHelp()
	case "build":
		if len(args) == 0 {
			return errors.New("usage: /build <prompt>")
		}
		return c.build(strings.Join(args, " "))
	case "status":
		c.showStatus()
	case "files":
		c.listFiles()
	case "cat":
		if len(args) != 1 {
			return errors.New("usage: /cat <path>")
		}
		return c.showFile(args[0])
	case "edit":
		if len(args) != 2 {
			return errors.New("usage: /edit <path> <local-file>")
		}
		return c.editFile(args[0], args[1])
	case "patch":
		if len(args) != 2 {
			return errors.New("usage: /patch <path> <patch-file>")
		}
		return c.patchFile(args[0], args[1])
	case "refresh":
		url, ok := c.orchestrator.RefreshURL()
		if !ok {
			return errors.New("no preview URL yet")
		}
		fmt.Fprintln(c.out, boldGreen("Preview:"), url)
	case "log":
		return c.showLog(args)
	case "history":
		c.showHistory()
	default:
		return fmt.Errorf("unknown command: /%s", cmd)
	}
	return nil
}

func (c *Console) build(prompt string) error {
	fmt.Fprintf(c.out, "%s %s\n", boldBlue("Building:"), prompt)
	if err := c.orchestrator.Start(c.ctx, prompt); err != nil {
		return errors.Wrap(err, "build failed")
	}
	return nil
}

func (c *Console) showHelp() {
	fmt.Fprintln(c.out, boldBlue("Commands:"))
	fmt.Fprintln(c.out, "  <message>                   Build from a prompt, or change the running app")
	fmt.Fprintln(c.out, "  /build <prompt>             Build from a prompt")
	fmt.Fprintln(c.out, "  /status                     Show the session phase and preview URL")
	fmt.Fprintln(c.out, "  /files                      List files in the session")
	fmt.Fprintln(c.out, "  /cat <path>                 Print a file")
	fmt.Fprintln(c.out, "  /edit <path> <local-file>   Replace a file with a local file's content")
	fmt.Fprintln(c.out, "  /patch <path> <patch-file>  Apply a unified diff to a file")
	fmt.Fprintln(c.out, "  /refresh                    Print the preview URL with a cache-busting parameter")
	fmt.Fprintln(c.out, "  /log [n]                    Show the last n log lines (default 20)")
	fmt.Fprintln(c.out, "  /history                    Show the chat turns sent to the model")
	fmt.Fprintln(c.out, "  exit, quit                  Leave the console")
}

func (c *Console) showStatus() {
	s := c.orchestrator.Snapshot()
	fmt.Fprintf(c.out, "%s %s\n", boldBlue("Session:"), s.ID)
	fmt.Fprintf(c.out, "%s %s (%s)\n", boldBlue("Phase:"), s.Phase, s.Status)
	if s.Template != "" {
		fmt.Fprintf(c.out, "%s %s\n", boldBlue("Template:"), s.Template)
	}
	if s.Failure != "" {
		fmt.Fprintf(c.out, "%s %s\n", boldRed("Failure:"), s.Failure)
	}
	if s.URL != "" {
		fmt.Fprintf(c.out, "%s %s\n", boldGreen("Preview:"), s.URL)
	}
	fmt.Fprintf(c.out, "%s %d\n", boldBlue("Files:"), len(s.Files))
}

func (c *Console) listFiles() {
	s := c.orchestrator.Snapshot()
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		fmt.Fprintln(c.out, dimText("No files"))
		return
	}
	for _, p := range paths {
		fmt.Fprintf(c.out, "  %s %s\n", p, dimText(fmt.Sprintf("(%d bytes)", len(s.Files[p]))))
	}
}

func (c *Console) showFile(p string) error {
	content, ok := c.orchestrator.Snapshot().Files[p]
	if !ok {
		return fmt.Errorf("file not found: %s", p)
	}
	fmt.Fprintln(c.out, content)
	return nil
}

func (c *Console) editFile(p string, localFile string) error {
	content, err := os.ReadFile(localFile)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", localFile)
	}
	return c.orchestrator.EditFile(c.ctx, p, string(content))
}

func (c *Console) patchFile(p string, patchFile string) error {
	current, ok := c.orchestrator.Snapshot().Files[p]
	if !ok {
		return fmt.Errorf("file not found: %s", p)
	}

	patch, err := os.ReadFile(patchFile)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", patchFile)
	}

	updated, err := diff.Apply(current, string(patch))
	if err != nil {
		return errors.Wrapf(err, "failed to apply patch to %s", p)
	}
	return c.orchestrator.EditFile(c.ctx, p, updated)
}

func (c *Console) showLog(args []string) error {
	n := 20
	if len(args) == 1 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid line count: %s", args[0])
		}
		n = parsed
	}

	lines := c.orchestrator.Snapshot().Log
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, line := range lines {
		fmt.Fprintln(c.out, dimText(line))
	}
	return nil
}

func (c *Console) showHistory() {
	for i, m := range c.orchestrator.History() {
		text := m.Text
		if len(text) > 120 {
			text = text[:117] + "..."
		}
		text = strings.ReplaceAll(text, "\n", " ")
		fmt.Fprintf(c.out, "%s %s\n", boldBlue(fmt.Sprintf("%d. %s:", i+1, m.Role)), text)
	}
}
