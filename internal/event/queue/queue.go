package queue

import (
	"errors"

	"github.com/dshills/scriptbridge/internal/event"
)

// ErrSignalConflict is reported when a single-slot queue receives an event
// while the previous one is still pending. The pending event is lost.
var ErrSignalConflict = errors.New("signal conflict: pending event overwritten")

// Queue is the contract the bridge needs from an event queue.
type Queue interface {
	// Push appends ev and returns the sequence number it was assigned.
	// Safe for concurrent producers. Never blocks.
	Push(ev event.Event) uint64

	// Pop removes and returns the front event. Single consumer only.
	Pop() (event.Event, bool)

	// Len returns the number of pending events.
	Len() int

	// Ready is signalled after pushes. It carries at most one token.
	Ready() <-chan struct{}

	// Clear discards all pending events. Not safe concurrently with
	// Push or Pop.
	Clear()
}

// ring delivers a wakeup token without blocking.
func ring(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// drain removes a stale token.
func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
