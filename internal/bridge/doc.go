// Package bridge connects producer goroutines to a single script goroutine.
//
// A Bridge owns one consumer goroutine, an event queue and a mask registry.
// Producers post events with Signal from any goroutine. The consumer, which
// runs the script runtime, pulls them with Consumer.Wait:
//
//	b := bridge.New(runtime, bridge.WithLogger(log))
//	if err := b.Init(); err != nil {
//	    return err
//	}
//	defer b.Shutdown()
//
//	b.Evaluate("print('hello')")
//
// # Rendezvous lock
//
// The consumer goroutine takes the rendezvous lock when it starts and keeps
// it for its whole active period. Wait is the only place that releases it,
// and only while the consumer is parked with an empty queue. Producers that
// post with ModeDrain take the same lock and wait until their event has been
// retired, so they return only after the consumer has finished reacting to
// the event and come back to Wait. A drain waiter is tied to the session it
// posted into: if that consumer exits first the post reports false, and a
// later Init never picks the wait up. Fire-and-forget posts never touch the
// lock.
//
// # States
//
//	Uninitialized → Running   [Init]
//	Running → Stopped         [Shutdown, or the runtime returning]
//	Stopped → Running         [Init]
//
// Signal on a bridge whose consumer has exited is a silent no-op.
package bridge
