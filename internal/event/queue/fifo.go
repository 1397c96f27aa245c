package queue

import (
	"sync"

	"github.com/dshills/scriptbridge/internal/event"
)

// shrinkCap is the backing array size kept across Clear.
const shrinkCap = 64

// FIFO is an unbounded, strictly ordered event queue.
//
// Order is global across producers: if one Push returns before another
// begins, the first event is popped first. Each push is stamped with a
// sequence number taken under the same lock, so Seq order is pop order.
type FIFO struct {
	mu    sync.Mutex
	items []event.Event
	head  int
	seq   uint64
	ready chan struct{}
}

// NewFIFO creates an empty queue.
func NewFIFO() *FIFO {
	return &FIFO{
		items: make([]event.Event, 0, shrinkCap),
		ready: make(chan struct{}, 1),
	}
}

// Push appends ev and wakes the consumer.
func (q *FIFO) Push(ev event.Event) uint64 {
	q.mu.Lock()
	q.seq++
	ev.Seq = q.seq
	q.items = append(q.items, ev)
	q.mu.Unlock()

	ring(q.ready)
	return ev.Seq
}

// Pop removes the front event.
func (q *FIFO) Pop() (event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return event.None(), false
	}

	ev := q.items[q.head]
	q.items[q.head] = event.Event{} // release the payload
	q.head++

	// Reclaim the consumed prefix once it dominates the slice.
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > shrinkCap && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	return ev, true
}

// Len returns the number of pending events.
func (q *FIFO) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Cap returns the capacity of the backing array.
func (q *FIFO) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cap(q.items)
}

// Ready returns the doorbell channel.
func (q *FIFO) Ready() <-chan struct{} {
	return q.ready
}

// Clear drops every pending event and any grown backing array.
// Sequence numbers keep increasing across Clear.
func (q *FIFO) Clear() {
	q.mu.Lock()
	if cap(q.items) > shrinkCap {
		q.items = make([]event.Event, 0, shrinkCap)
	} else {
		clear(q.items)
		q.items = q.items[:0]
	}
	q.head = 0
	q.mu.Unlock()

	drain(q.ready)
}
