package panel

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Dialog is a modal surface: Confirm blocks until the user accepts or
// cancels, Show presents a result.
type Dialog interface {
	Confirm(ctx context.Context, title, body string) (bool, error)
	Show(ctx context.Context, title, body string) error
}

// TerminalDialog draws dialogs on a terminal and reads answers from a line
// channel shared with the command loop.
type TerminalDialog struct {
	lines <-chan string
	out   io.Writer

	mu     sync.Mutex
	active bool
}

func NewTerminalDialog(lines <-chan string, out io.Writer) *TerminalDialog {
	return &TerminalDialog{lines: lines, out: out}
}

// Active reports whether a confirmation is waiting for input.
func (d *TerminalDialog) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *TerminalDialog) Confirm(ctx context.Context, title, body string) (bool, error) {
	d.setActive(true)
	defer d.setActive(false)

	d.frame(title, body)
	fmt.Fprint(d.out, "[OK/Cancel] (y/N): ")

	select {
	case <-ctx.Done():
		fmt.Fprintln(d.out)
		return false, ctx.Err()
	case line, ok := <-d.lines:
		if !ok {
			return false, io.EOF
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "ok":
			return true, nil
		}
		return false, nil
	}
}

func (d *TerminalDialog) Show(ctx context.Context, title, body string) error {
	d.frame(title, body)
	fmt.Fprintln(d.out, "[OK]")
	return ctx.Err()
}

func (d *TerminalDialog) frame(title, body string) {
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, color.New(color.Bold).Sprint(title))
	if body != "" {
		fmt.Fprintln(d.out, "  "+body)
	}
}

func (d *TerminalDialog) setActive(active bool) {
	d.mu.Lock()
	d.active = active
	d.mu.Unlock()
}
