package queue

import (
	"sync"

	"github.com/dshills/scriptbridge/internal/event"
)

// ConflictFunc is called when Slot overwrites a pending event.
type ConflictFunc func(lost, replacement event.Event, err error)

// Slot is a queue of depth one.
//
// It exists for hosts that post every event with drain semantics, where a
// second pending event indicates a producer bug. The new event replaces the
// old one and the conflict hook is told about the loss.
type Slot struct {
	mu         sync.Mutex
	pending    event.Event
	full       bool
	seq        uint64
	ready      chan struct{}
	onConflict ConflictFunc
}

// NewSlot creates an empty slot. onConflict may be nil.
func NewSlot(onConflict ConflictFunc) *Slot {
	return &Slot{
		ready:      make(chan struct{}, 1),
		onConflict: onConflict,
	}
}

// Push stores ev, overwriting any pending event.
func (s *Slot) Push(ev event.Event) uint64 {
	s.mu.Lock()
	s.seq++
	ev.Seq = s.seq
	lost, conflict := s.pending, s.full
	s.pending = ev
	s.full = true
	hook := s.onConflict
	s.mu.Unlock()

	if conflict && hook != nil {
		hook(lost, ev, ErrSignalConflict)
	}

	ring(s.ready)
	return ev.Seq
}

// Pop takes the pending event.
func (s *Slot) Pop() (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.full {
		return event.None(), false
	}
	ev := s.pending
	s.pending = event.Event{}
	s.full = false
	return ev, true
}

// Len returns 1 if an event is pending.
func (s *Slot) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return 1
	}
	return 0
}

// Ready returns the doorbell channel.
func (s *Slot) Ready() <-chan struct{} {
	return s.ready
}

// Clear empties the slot.
func (s *Slot) Clear() {
	s.mu.Lock()
	s.pending = event.Event{}
	s.full = false
	s.mu.Unlock()

	drain(s.ready)
}
