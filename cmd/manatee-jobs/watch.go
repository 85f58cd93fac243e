package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/filswan/go-swan-lib/logs"
	"github.com/manatee-project/manatee-jobs/internal/i18n"
	"github.com/manatee-project/manatee-jobs/internal/panel"
	"github.com/manatee-project/manatee-jobs/util"
	"github.com/urfave/cli/v2"
)

const containerTitle = "Jobs"

const helpText = `r             refresh
n / p         next / previous page
g <page>      go to page
s <size>      change page size
e <id>        expand or collapse a job
o <id>        download the output of a finished job
a <id>        get the attestation report of a finished job
h             help
q             quit`

var watchCmd = &cli.Command{
	Name:  "watch",
	Usage: "Show the job status panel",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "locale",
			Usage: "display locale, overrides [Panel].Locale",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		locale := cfg.Panel.Locale
		if cctx.IsSet("locale") {
			locale = cctx.String("locale")
		}

		ctx, cancel := util.ReqContext(cctx.Context)
		defer cancel()

		lines := readLines(os.Stdin)
		tr := i18n.NewTranslator(locale)
		dialog := panel.NewTerminalDialog(lines, os.Stdout)
		scr := newScreen(os.Stdout, panel.NewRenderer(os.Stdout, tr), dialog)

		jobs := panel.New(newClient(cfg), dialog, panel.Options{
			PollInterval:    cfg.Panel.PollInterval(),
			PageChangeDelay: cfg.Panel.PageChangeDelay(),
			PageSize:        cfg.Panel.PageSize,
			SizeCanChange:   cfg.Panel.SizeCanChange,
			Formatter:       i18n.NewTimestampFormatter(locale, nil),
			Logger:          logs.GetLogger(),
			OnChange:        scr.redraw,
		})
		scr.attach(jobs)

		container := panel.NewContainer(containerTitle, tr, jobs)
		scr.title = container.Title
		container.Mount(ctx)
		defer container.Unmount()

		return runLoop(ctx, lines, jobs, scr)
	},
}

// readLines feeds stdin lines to the command loop and to dialogs.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// screen redraws the panel on every state change. Redraws are skipped while a
// confirmation is waiting for input, and held after an action result until
// the next command.
type screen struct {
	out      io.Writer
	renderer *panel.Renderer
	dialog   *panel.TerminalDialog
	title    string

	mu       sync.Mutex
	panel    *panel.JobStatusPanel
	expanded int64
	flash    string
	held     bool
}

func newScreen(out io.Writer, renderer *panel.Renderer, dialog *panel.TerminalDialog) *screen {
	return &screen{out: out, renderer: renderer, dialog: dialog}
}

func (s *screen) attach(p *panel.JobStatusPanel) {
	s.mu.Lock()
	s.panel = p
	s.mu.Unlock()
}

func (s *screen) redraw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panel == nil || s.held || s.dialog.Active() {
		return
	}

	view := s.panel.Snapshot()
	fmt.Fprint(s.out, "\033[H\033[2J")
	s.renderer.RenderTitle(s.title)
	s.renderer.RenderTable(view)
	if s.expanded != 0 {
		for _, job := range view.Jobs {
			if job.ID == s.expanded {
				fmt.Fprintln(s.out)
				s.renderer.RenderDetail(job)
			}
		}
	}
	if s.flash != "" {
		fmt.Fprintln(s.out, color.YellowString(s.flash))
	}
	fmt.Fprint(s.out, "> ")
}

func (s *screen) setFlash(msg string) {
	s.mu.Lock()
	s.flash = msg
	s.mu.Unlock()
}

func (s *screen) toggle(id int64) {
	s.mu.Lock()
	if s.expanded == id {
		s.expanded = 0
	} else {
		s.expanded = id
	}
	s.mu.Unlock()
}

func (s *screen) hold(held bool) {
	s.mu.Lock()
	s.held = held
	s.mu.Unlock()
	if held {
		fmt.Fprint(s.out, "press enter to continue ")
	}
}

type command struct {
	name string
	arg  int64
}

var commandArgs = map[string]bool{
	"r": false, "n": false, "p": false, "h": false, "q": false,
	"g": true, "s": true, "e": true, "o": true, "a": true,
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{name: "r"}, nil
	}

	name := strings.ToLower(fields[0])
	needsArg, ok := commandArgs[name]
	if !ok {
		return command{}, fmt.Errorf("unknown command: %s, type h for help", fields[0])
	}
	if !needsArg {
		if len(fields) != 1 {
			return command{}, fmt.Errorf("%s takes no argument", name)
		}
		return command{name: name}, nil
	}
	if len(fields) != 2 {
		return command{}, fmt.Errorf("%s needs one number", name)
	}
	arg, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || arg < 1 {
		return command{}, fmt.Errorf("invalid number: %s", fields[1])
	}
	return command{name: name, arg: arg}, nil
}

func runLoop(ctx context.Context, lines <-chan string, p *panel.JobStatusPanel, scr *screen) error {
	scr.redraw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			scr.hold(false)
			scr.setFlash("")

			cmd, err := parseCommand(line)
			if err != nil {
				scr.setFlash(err.Error())
				scr.redraw()
				continue
			}
			if cmd.name == "q" {
				return nil
			}
			if err := execute(ctx, cmd, p, scr); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				scr.setFlash(err.Error())
			}
			scr.redraw()
		}
	}
}

func execute(ctx context.Context, cmd command, p *panel.JobStatusPanel, scr *screen) error {
	view := p.Snapshot()
	pg := view.Pagination

	switch cmd.name {
	case "r":
		p.Refresh(ctx)
	case "h":
		scr.setFlash(helpText)
	case "n":
		if pg.Current >= pg.PageCount() {
			return errors.New("already on the last page")
		}
		return p.ChangePage(ctx, pg.Current+1, pg.PageSize)
	case "p":
		if pg.Current <= 1 {
			return errors.New("already on the first page")
		}
		return p.ChangePage(ctx, pg.Current-1, pg.PageSize)
	case "g":
		return p.ChangePage(ctx, int(cmd.arg), pg.PageSize)
	case "s":
		if !pg.SizeCanChange {
			return errors.New("page size cannot be changed, set [Panel].SizeCanChange")
		}
		return p.ChangePage(ctx, pg.Current, int(cmd.arg))
	case "e":
		if _, ok := p.Find(cmd.arg); !ok {
			return fmt.Errorf("job %d is not on this page", cmd.arg)
		}
		scr.toggle(cmd.arg)
	case "o", "a":
		job, ok := p.Find(cmd.arg)
		if !ok {
			return fmt.Errorf("job %d is not on this page", cmd.arg)
		}
		var err error
		if cmd.name == "o" {
			err = p.DownloadOutput(ctx, job)
		} else {
			err = p.GetAttestation(ctx, job)
		}
		if errors.Is(err, panel.ErrJobNotFinished) {
			return fmt.Errorf("job %d is %s, actions need a finished job", job.ID, job.JobStatus)
		}
		if err != nil {
			return err
		}
		scr.hold(true)
	}
	return nil
}
