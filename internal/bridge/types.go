package bridge

import (
	"time"

	"github.com/dshills/scriptbridge/internal/event"
)

// Infinite makes Wait block until an event arrives.
const Infinite time.Duration = -1

// Mode selects how a producer's post completes.
type Mode int

const (
	// ModeDefault uses the mode configured for the event's kind.
	ModeDefault Mode = iota

	// ModeAsync returns as soon as the event is queued.
	ModeAsync

	// ModeDrain returns once the consumer has retired the event, or has
	// exited. The post reports false when the consumer exited first.
	ModeDrain
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeAsync:
		return "async"
	case ModeDrain:
		return "drain"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a Bridge.
type State int32

const (
	// StateUninitialized means Init has never been called.
	StateUninitialized State = iota
	// StateRunning means a consumer goroutine has been started and not joined.
	StateRunning
	// StateStopped means the last session has been shut down.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runtime is the script runtime driven by the consumer goroutine.
//
// Run is called on the consumer goroutine with the rendezvous lock held. It
// should construct its state, then loop on c.Wait until it receives
// event.KindStop. An error returned before the first Wait is treated as a
// construction failure.
type Runtime interface {
	Run(c *Consumer) error
}

// RuntimeFunc adapts a function to Runtime.
type RuntimeFunc func(c *Consumer) error

// Run implements Runtime.
func (f RuntimeFunc) Run(c *Consumer) error {
	return f(c)
}

// AlertFunc raises a message on the host's alert channel.
type AlertFunc func(msg string)

// Stats contains bridge counters. Counters accumulate across sessions.
type Stats struct {
	// Sessions is the number of consumer goroutines started.
	Sessions uint64

	// Signaled is the number of events accepted into the queue.
	Signaled uint64

	// Rejected is the number of events refused by the mask.
	Rejected uint64

	// Dropped is the number of events posted while no consumer ran.
	Dropped uint64

	// Delivered is the number of events returned by Wait.
	Delivered uint64

	// Timeouts is the number of waits that returned event.KindNone.
	Timeouts uint64

	// Drains is the number of completed drain-mode posts.
	Drains uint64

	// Conflicts is the number of single-slot overwrites.
	Conflicts uint64

	// QueueDepth is the number of pending events.
	QueueDepth int

	// Running reports whether the consumer goroutine is active.
	Running bool

	// EnabledKinds is the current mask.
	EnabledKinds []event.Kind
}
