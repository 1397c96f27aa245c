package bridge

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/scriptbridge/internal/event"
	"github.com/dshills/scriptbridge/internal/event/queue"
	"github.com/dshills/scriptbridge/internal/logging"
)

// Bridge is one embedding session context: the consumer goroutine, the
// queue, the mask and the rendezvous state. The zero value is not usable;
// call New.
type Bridge struct {
	rt     Runtime
	config config
	log    *logging.Logger

	queue queue.Queue
	mask  *event.Mask

	// Rendezvous state. mu is held by the consumer goroutine except while
	// it is parked in Wait.
	mu        sync.Mutex
	retiredCv *sync.Cond
	current   event.Event
	script    string
	hasScript bool

	// live is the session started by the latest Init. Drain waiters bind to
	// it at post time.
	live    atomic.Pointer[lifetime]
	running atomic.Bool
	state   atomic.Int32

	// lifeMu serialises Init and Shutdown.
	lifeMu  sync.Mutex
	done    chan struct{}
	session string

	stats counters
}

// lifetime tracks one consumer goroutine. Its fields are guarded by
// Bridge.mu.
type lifetime struct {
	retired uint64
	exited  bool
}

type counters struct {
	sessions  atomic.Uint64
	signaled  atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	timeouts  atomic.Uint64
	drains    atomic.Uint64
	conflicts atomic.Uint64
}

// New creates a bridge that will run rt on its consumer goroutine.
func New(rt Runtime, opts ...Option) *Bridge {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Bridge{
		rt:     rt,
		config: cfg,
		log:    cfg.logger.WithComponent("bridge"),
		mask:   event.NewMask(),
	}
	b.retiredCv = sync.NewCond(&b.mu)

	if cfg.singleSlot {
		b.queue = queue.NewSlot(b.onConflict)
	} else {
		b.queue = queue.NewFIFO()
	}

	return b
}

// Init starts a session. A session still running from an earlier Init is
// shut down first.
func (b *Bridge) Init() error {
	if b.rt == nil {
		return ErrNilRuntime
	}

	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.done != nil {
		b.shutdownLocked(context.Background())
	}

	b.queue.Clear()
	b.mask.Reset()

	b.mu.Lock()
	b.current = event.None()
	b.script, b.hasScript = "", false
	b.mu.Unlock()

	b.session = uuid.NewString()
	b.done = make(chan struct{})
	lt := &lifetime{}
	b.live.Store(lt)
	b.running.Store(true)
	b.state.Store(int32(StateRunning))
	b.stats.sessions.Add(1)

	log := b.log.WithField("session", b.session)
	log.Debug("starting consumer")

	go b.consume(log, lt, b.done)
	return nil
}

// Shutdown stops the consumer and waits for it to exit. It is a no-op if
// Init was never called or the session has already been shut down.
//
// Shutdown must not be called from the consumer goroutine.
func (b *Bridge) Shutdown() {
	_ = b.ShutdownContext(context.Background())
}

// ShutdownContext is Shutdown with a bound on how long to wait for the
// consumer to exit. If ctx ends first the consumer is left to finish on its
// own and ctx.Err() is returned; a later Shutdown joins it.
func (b *Bridge) ShutdownContext(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.done == nil {
		return nil
	}
	return b.shutdownLocked(ctx)
}

func (b *Bridge) shutdownLocked(ctx context.Context) error {
	done := b.done

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		b.SignalMode(event.Stop(), ModeDrain)
		<-done
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.done = nil
	b.state.Store(int32(StateStopped))
	b.log.WithField("session", b.session).Debug("consumer joined")
	return nil
}

// Done returns a channel closed when the current consumer goroutine exits.
// It returns nil before the first Init.
func (b *Bridge) Done() <-chan struct{} {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.done
}

// State returns the lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Running reports whether the consumer goroutine is active.
func (b *Bridge) Running() bool {
	return b.running.Load()
}

// Session returns the identifier of the current or last session.
func (b *Bridge) Session() string {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.session
}

// Mask returns the mask registry. Producers may read it; only the consumer
// should change it.
func (b *Bridge) Mask() *event.Mask {
	return b.mask
}

// IsEnabled reports whether posts of kind k would be accepted.
func (b *Bridge) IsEnabled(k event.Kind) bool {
	return b.mask.IsEnabled(k)
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Sessions:     b.stats.sessions.Load(),
		Signaled:     b.stats.signaled.Load(),
		Rejected:     b.stats.rejected.Load(),
		Dropped:      b.stats.dropped.Load(),
		Delivered:    b.stats.delivered.Load(),
		Timeouts:     b.stats.timeouts.Load(),
		Drains:       b.stats.drains.Load(),
		Conflicts:    b.stats.conflicts.Load(),
		QueueDepth:   b.queue.Len(),
		Running:      b.running.Load(),
		EnabledKinds: b.mask.Enabled(),
	}
}

// consume is the body of the consumer goroutine.
func (b *Bridge) consume(log *logging.Logger, lt *lifetime, done chan struct{}) {
	defer close(done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := setThreadName(b.config.threadName); err != nil {
		log.Debug("naming consumer thread: %v", err)
	}

	b.mu.Lock()
	defer func() {
		b.retire()
		lt.exited = true
		b.running.Store(false)
		b.retiredCv.Broadcast()
		b.mu.Unlock()
	}()

	c := &Consumer{b: b, log: log}
	err := b.run(c)

	switch {
	case err == nil:
		log.Debug("consumer finished")
	case errors.Is(err, ErrConsumerPanic):
		log.Error("script runtime panicked: %v", err)
		b.raise("Script runtime crashed: " + err.Error())
	case !c.waited:
		log.Error("failed to start script runtime: %v", err)
		b.raise("Failed to run script library: " + err.Error())
	default:
		log.Error("script runtime exited: %v", err)
	}
}

// run calls the runtime, converting a panic into an error.
func (b *Bridge) run(c *Consumer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return b.rt.Run(c)
}

func (b *Bridge) raise(msg string) {
	if b.config.alert != nil {
		b.config.alert(msg)
	}
}

// onConflict reports a single-slot overwrite.
func (b *Bridge) onConflict(lost, replacement event.Event, err error) {
	b.stats.conflicts.Add(1)
	b.log.Error("%v: lost %s, kept %s", err, lost, replacement)
	b.raise("Script bridge " + err.Error())
}
