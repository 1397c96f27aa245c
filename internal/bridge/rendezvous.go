package bridge

import (
	"time"

	"github.com/dshills/scriptbridge/internal/event"
	"github.com/dshills/scriptbridge/internal/logging"
)

// Consumer is the consumer-side handle passed to Runtime.Run. Its methods
// must only be called from the consumer goroutine.
type Consumer struct {
	b      *Bridge
	log    *logging.Logger
	waited bool
}

// Logger returns the session logger.
func (c *Consumer) Logger() *logging.Logger {
	return c.log
}

// Session returns the session identifier.
func (c *Consumer) Session() string {
	return c.b.session
}

// Wait retires the previous event and blocks until the next one arrives or
// timeout elapses. A zero timeout polls once; Infinite blocks until an event
// arrives. It returns event.KindNone on timeout.
//
// The rendezvous lock is released only while parked; it is held again when
// Wait returns, for as long as the caller processes the event.
func (c *Consumer) Wait(timeout time.Duration) event.Kind {
	c.waited = true
	return c.b.wait(timeout)
}

// Script returns the text of the current evaluate event. The value is only
// meaningful until the next Wait.
func (c *Consumer) Script() (string, bool) {
	return c.b.script, c.b.hasScript
}

// Current returns the event most recently returned by Wait.
func (c *Consumer) Current() event.Event {
	return c.b.current
}

// Enable registers interest in kind k.
func (c *Consumer) Enable(k event.Kind) {
	c.b.mask.Enable(k)
}

// Disable drops interest in kind k. Always-enabled kinds are unaffected.
func (c *Consumer) Disable(k event.Kind) {
	c.b.mask.Disable(k)
}

// IsEnabled reports whether kind k is enabled.
func (c *Consumer) IsEnabled(k event.Kind) bool {
	return c.b.mask.IsEnabled(k)
}

// Evaluate posts an evaluate event from the consumer itself. It never
// drains: the consumer holds the rendezvous lock and would wait on itself.
func (c *Consumer) Evaluate(script string) bool {
	return c.b.SignalMode(event.Evaluate(script), ModeAsync)
}

// wait implements Consumer.Wait. Caller holds b.mu.
func (b *Bridge) wait(timeout time.Duration) event.Kind {
	b.retire()

	var (
		deadline time.Time
		timer    *time.Timer
	)
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if ev, ok := b.queue.Pop(); ok {
			b.unbox(ev)
			b.stats.delivered.Add(1)
			return ev.Kind
		}

		if timeout == 0 {
			b.stats.timeouts.Add(1)
			return event.KindNone
		}

		var expired <-chan time.Time
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				b.stats.timeouts.Add(1)
				return event.KindNone
			}
			if timer == nil {
				timer = time.NewTimer(remaining)
			}
			expired = timer.C
		}

		b.park(expired)
	}
}

// park releases the rendezvous lock until the queue rings or expired fires.
func (b *Bridge) park(expired <-chan time.Time) {
	b.mu.Unlock()
	defer b.mu.Lock()

	select {
	case <-b.queue.Ready():
	case <-expired:
	}
}

// unbox exposes the payload of ev to the consumer. Caller holds b.mu.
func (b *Bridge) unbox(ev event.Event) {
	b.current = ev
	switch ev.Kind {
	case event.KindEvaluate:
		b.script, b.hasScript = ev.Script, true
	case event.KindStop, event.KindFrame, event.KindNone:
	}
}

// retire releases the payload of the current event and wakes drain waiters.
// Caller holds b.mu.
func (b *Bridge) retire() {
	switch b.current.Kind {
	case event.KindEvaluate:
		b.script, b.hasScript = "", false
	case event.KindStop, event.KindFrame, event.KindNone:
	}

	if lt := b.live.Load(); lt != nil && b.current.Seq > lt.retired {
		lt.retired = b.current.Seq
	}
	b.current = event.None()
	b.retiredCv.Broadcast()
}

// Signal posts ev using the mode configured for its kind. It returns true
// if the event was queued.
func (b *Bridge) Signal(ev event.Event) bool {
	return b.SignalMode(ev, ModeDefault)
}

// SignalMode posts ev with an explicit completion mode. Posts are dropped
// silently when the kind is masked off or no consumer is running.
//
// A ModeDrain post blocks until the consumer has retired ev, that is, until
// it has finished processing it and called Wait again, or until the consumer
// exits. It returns false if the consumer exited without retiring ev. It
// must not be used from the consumer goroutine.
func (b *Bridge) SignalMode(ev event.Event, mode Mode) bool {
	lt := b.live.Load()
	if lt == nil || !b.running.Load() {
		b.stats.dropped.Add(1)
		return false
	}
	if !b.mask.IsEnabled(ev.Kind) {
		b.stats.rejected.Add(1)
		return false
	}

	if mode == ModeDefault {
		mode = b.modeFor(ev.Kind)
	}

	seq := b.queue.Push(ev)
	b.stats.signaled.Add(1)

	if mode == ModeDrain {
		return b.awaitRetired(lt, seq)
	}
	return true
}

// SignalLazy builds and posts an event only when kind k is enabled, so
// producers skip payload construction for kinds nobody listens to.
func (b *Bridge) SignalLazy(k event.Kind, build func() event.Event) bool {
	if !b.mask.IsEnabled(k) {
		b.stats.rejected.Add(1)
		return false
	}
	return b.Signal(build())
}

// Evaluate posts an evaluate event carrying script.
func (b *Bridge) Evaluate(script string) bool {
	return b.SignalLazy(event.KindEvaluate, func() event.Event {
		return event.Evaluate(script)
	})
}

// PostFrame posts a frame tick if a listener wants it.
func (b *Bridge) PostFrame() bool {
	return b.SignalLazy(event.KindFrame, event.Frame)
}

func (b *Bridge) modeFor(k event.Kind) Mode {
	if b.config.singleSlot || b.config.drain[k] {
		return ModeDrain
	}
	return ModeAsync
}

// awaitRetired blocks on the rendezvous lock until lt retires seq or its
// consumer exits, and reports whether seq was retired. A later session never
// retires seq on lt's behalf.
func (b *Bridge) awaitRetired(lt *lifetime, seq uint64) bool {
	b.mu.Lock()
	for lt.retired < seq && !lt.exited {
		b.retiredCv.Wait()
	}
	ok := lt.retired >= seq
	b.mu.Unlock()
	b.stats.drains.Add(1)
	return ok
}
