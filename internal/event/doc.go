// Package event defines the typed events that cross the script bridge.
//
// An event is a small sum type: a Kind tag plus the payload that kind needs.
// Producers on any goroutine construct events and post them to the bridge;
// the single script goroutine consumes them.
//
// # Kinds
//
// The kind universe is closed and small. Kinds are stable integers below
// KindNone, which doubles as the "no event" result of a timed-out wait and
// as the upper bound of the mask registry:
//
//	KindStop      0    terminate the script loop (no payload)
//	KindEvaluate  1    run the carried script text
//	KindFrame     2    periodic host tick (no payload)
//	KindNone      256  sentinel
//
// # Mask
//
// Mask records which kinds currently have an interested listener. Producers
// test it before building a payload so that ignored events cost nothing:
//
//	if mask.IsEnabled(event.KindFrame) {
//	    b.Signal(event.Frame())
//	}
//
// Stop and Evaluate are always enabled. The bridge must always be able to
// stop itself and to accept ad hoc evaluation requests.
package event
