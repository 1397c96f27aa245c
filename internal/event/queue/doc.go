// Package queue holds the event queues that sit between bridge producers and
// the single consumer.
//
// FIFO is the unbounded multi-producer/single-consumer queue used by
// default. Slot is the older depth-one design kept for hosts that want every
// post to hand off directly; posting into an occupied slot overwrites the
// pending event and reports ErrSignalConflict.
//
// Both queues ring a one-token doorbell on every push. A consumer that finds
// the queue empty parks on Ready and cannot miss a push that lands between
// its emptiness check and the park, because the token stays buffered.
package queue
