package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/cognitodev/launchpad/pkg/diff"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/fatih/color"
)

var (
	boldBlue   = color.New(color.FgBlue, color.Bold).SprintFunc()
	boldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldRed    = color.New(color.FgRed, color.Bold).SprintFunc()
	boldYellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	dimText    = color.New(color.Faint).SprintFunc()
	green      = color.New(color.FgGreen).SprintFunc()
	red        = color.New(color.FgRed).SprintFunc()
)

// Printer writes session updates to a terminal as they happen.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) Observe(u session.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, line := range u.LogLines {
		fmt.Fprintln(p.out, dimText(line))
	}

	for _, f := range u.Files {
		p.printFileChange(f)
	}

	if u.PhaseChanged() {
		if u.Phase == session.PhaseFailed {
			fmt.Fprintf(p.out, "%s %s (%s)\n", boldRed("✗"), u.Status, u.Failure)
		} else {
			fmt.Fprintf(p.out, "%s %s\n", boldBlue("●"), u.Status)
		}
	}

	if u.URLChanged && u.URL != "" {
		fmt.Fprintf(p.out, "%s %s\n", boldGreen("Preview:"), u.URL)
	}
}

func (p *Printer) printFileChange(f session.FileChange) {
	if f.Created {
		fmt.Fprintf(p.out, "  %s %s\n", green("created"), f.Path)
		return
	}

	stats, err := diff.Stat(f.Previous, f.Content, f.Path)
	if err != nil {
		fmt.Fprintf(p.out, "  %s %s\n", boldYellow("changed"), f.Path)
		return
	}
	fmt.Fprintf(p.out, "  %s %s %s %s\n", boldYellow("changed"), f.Path,
		green(fmt.Sprintf("+%d", stats.Added)), red(fmt.Sprintf("-%d", stats.Deleted)))
}
