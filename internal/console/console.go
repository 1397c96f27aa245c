// Package console provides an interactive prompt that posts each entered
// chunk of Lua to the bridge as an evaluate event.
//
// Lines ending in a backslash continue on the next line. Lines starting
// with a colon are console commands:
//
//	:help    list commands
//	:stats   print bridge statistics
//	:quit    leave the console
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dshills/scriptbridge/internal/logging"
)

// Default prompts.
const (
	Prompt         = "lua> "
	ContinuePrompt = "...> "
)

// Evaluator receives script text. *bridge.Bridge implements it.
type Evaluator interface {
	Evaluate(script string) bool
}

// StatsFunc renders statistics for :stats.
type StatsFunc func() string

// Console is a line-editing prompt over a terminal.
type Console struct {
	term   *term.Terminal
	target Evaluator
	stats  StatsFunc
	log    *logging.Logger
}

// Option configures a Console.
type Option func(*Console)

// WithStats enables the :stats command.
func WithStats(fn StatsFunc) Option {
	return func(c *Console) {
		c.stats = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Console) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a console reading from and writing to rw.
func New(rw io.ReadWriter, target Evaluator, opts ...Option) *Console {
	c := &Console{
		term:   term.NewTerminal(rw, Prompt),
		target: target,
		log:    logging.NullLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("console")
	return c
}

type readResult struct {
	line string
	err  error
}

// Run reads lines until :quit, end of input or ctx ends. When ctx ends
// first, the goroutine blocked reading input is left to finish when the
// input is closed.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan readResult)
	go func() {
		for {
			line, err := c.term.ReadLine()
			select {
			case lines <- readResult{line, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var chunk []string
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-lines:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					return nil
				}
				return r.err
			}

			if len(chunk) == 0 && strings.HasPrefix(strings.TrimSpace(r.line), ":") {
				if quit := c.command(strings.TrimSpace(r.line)); quit {
					return nil
				}
				continue
			}

			if cont, ok := strings.CutSuffix(r.line, `\`); ok {
				chunk = append(chunk, cont)
				c.term.SetPrompt(ContinuePrompt)
				continue
			}

			chunk = append(chunk, r.line)
			c.submit(strings.Join(chunk, "\n"))
			chunk = chunk[:0]
			c.term.SetPrompt(Prompt)
		}
	}
}

func (c *Console) submit(script string) {
	if strings.TrimSpace(script) == "" {
		return
	}
	if !c.target.Evaluate(script) {
		c.printf("not accepted: script runtime is not running\n")
		return
	}
	c.log.Debug("submitted %d bytes", len(script))
}

// command runs a console command and reports whether to quit.
func (c *Console) command(line string) bool {
	switch line {
	case ":quit", ":q", ":exit":
		return true
	case ":stats":
		if c.stats == nil {
			c.printf("no statistics available\n")
		} else {
			c.printf("%s\n", c.stats())
		}
	case ":help":
		c.printf(":help   list commands\n:stats  bridge statistics\n:quit   leave the console\n")
	default:
		c.printf("unknown command %s, try :help\n", line)
	}
	return false
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.term, format, args...)
}

// Stdio returns a ReadWriter over the process's standard streams with the
// terminal in raw mode, and a function restoring the previous mode. It
// fails when stdin is not a terminal.
func Stdio() (io.ReadWriter, func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, nil, errors.New("console requires a terminal on stdin")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, fmt.Errorf("entering raw mode: %w", err)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	return rw, func() { _ = term.Restore(fd, state) }, nil
}
