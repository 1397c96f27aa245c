package bridge

import (
	"github.com/dshills/scriptbridge/internal/event"
	"github.com/dshills/scriptbridge/internal/logging"
)

// Option configures a Bridge.
type Option func(*config)

type config struct {
	logger     *logging.Logger
	alert      AlertFunc
	singleSlot bool
	drain      map[event.Kind]bool
	threadName string
}

func defaultConfig() config {
	return config{
		logger:     logging.NullLogger,
		drain:      map[event.Kind]bool{event.KindStop: true},
		threadName: "Lua thread",
	}
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAlert sets the host alert channel.
func WithAlert(fn AlertFunc) Option {
	return func(c *config) {
		c.alert = fn
	}
}

// WithDrain makes ModeDefault posts of the given kinds wait for the
// consumer. KindStop always drains.
func WithDrain(kinds ...event.Kind) Option {
	return func(c *config) {
		for _, k := range kinds {
			if k.Valid() {
				c.drain[k] = true
			}
		}
	}
}

// WithSingleSlot replaces the queue with a depth-one slot. Every kind then
// drains by default, and a post that overwrites a pending event is reported
// as a signal conflict.
func WithSingleSlot() Option {
	return func(c *config) {
		c.singleSlot = true
	}
}

// WithThreadName sets the OS thread name of the consumer, where supported.
func WithThreadName(name string) Option {
	return func(c *config) {
		c.threadName = name
	}
}
