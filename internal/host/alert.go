package host

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/dshills/scriptbridge/internal/logging"
)

// AlertStyle classifies an alert.
type AlertStyle int

const (
	AlertInformation AlertStyle = iota
	AlertQuestion
	AlertWarning
	AlertCritical
)

// String returns the alert style name.
func (s AlertStyle) String() string {
	switch s {
	case AlertInformation:
		return "information"
	case AlertQuestion:
		return "question"
	case AlertWarning:
		return "warning"
	case AlertCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Alerter is the host's alert channel.
type Alerter interface {
	// Alert shows msg. For yes/no alerts the return value is the answer;
	// otherwise it is true.
	Alert(style AlertStyle, yesNo bool, msg string) bool
}

// ConsoleAlerter writes alerts to a terminal and the log. It never blocks
// for an answer: yes/no alerts return Answer.
type ConsoleAlerter struct {
	mu     sync.Mutex
	out    io.Writer
	log    *logging.Logger
	Answer bool
}

// NewConsoleAlerter creates an alerter writing to out (os.Stderr if nil).
func NewConsoleAlerter(out io.Writer, log *logging.Logger) *ConsoleAlerter {
	if out == nil {
		out = os.Stderr
	}
	if log == nil {
		log = logging.NullLogger
	}
	return &ConsoleAlerter{out: out, log: log.WithComponent("alert"), Answer: true}
}

var alertColors = map[AlertStyle]*color.Color{
	AlertInformation: color.New(color.FgCyan),
	AlertQuestion:    color.New(color.FgBlue),
	AlertWarning:     color.New(color.FgYellow),
	AlertCritical:    color.New(color.FgRed, color.Bold),
}

// Alert implements Alerter.
func (a *ConsoleAlerter) Alert(style AlertStyle, yesNo bool, msg string) bool {
	level := logging.LogLevelInfo
	switch style {
	case AlertWarning:
		level = logging.LogLevelWarn
	case AlertCritical:
		level = logging.LogLevelError
	}
	a.log.WithField("style", style.String()).Log(level, "%s", msg)

	c, ok := alertColors[style]
	if !ok {
		c = alertColors[AlertInformation]
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = c.Fprintf(a.out, "[%s] %s\n", style, msg)
	if yesNo {
		_, _ = fmt.Fprintf(a.out, "  -> answering %v\n", a.Answer)
		return a.Answer
	}
	return true
}

// PanicAlert raises a critical alert. It matches bridge.AlertFunc.
func PanicAlert(a Alerter) func(msg string) {
	return func(msg string) {
		a.Alert(AlertCritical, false, msg)
	}
}
