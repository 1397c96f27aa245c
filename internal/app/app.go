// Package app wires the bridge, the Lua runtime and the simulated host into
// a runnable application and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/scriptbridge/internal/autorun"
	"github.com/dshills/scriptbridge/internal/bridge"
	"github.com/dshills/scriptbridge/internal/config"
	"github.com/dshills/scriptbridge/internal/console"
	"github.com/dshills/scriptbridge/internal/event"
	"github.com/dshills/scriptbridge/internal/host"
	"github.com/dshills/scriptbridge/internal/logging"
	"github.com/dshills/scriptbridge/internal/metrics"
	"github.com/dshills/scriptbridge/internal/script"
)

// Application owns every component of a scriptbridge process.
type Application struct {
	cfg *config.Config
	log *logging.Logger

	mem     *host.RAM
	alerter host.Alerter
	bridge  *bridge.Bridge
	sim     *host.Simulation

	metrics *metrics.Server
	autorun *autorun.Watcher
	console io.ReadWriter

	running atomic.Bool
}

// Options configures the application.
type Options struct {
	// Config is required.
	Config *config.Config

	// Logger defaults to one built from Config.
	Logger *logging.Logger

	// Alerter defaults to a console alerter on stderr.
	Alerter host.Alerter

	// Console, when set, runs an interactive prompt over it.
	Console io.ReadWriter
}

// New creates an Application. Nothing runs until Run.
func New(opts Options) (*Application, error) {
	if opts.Config == nil {
		return nil, &InitError{Component: "config", Err: errors.New("no configuration")}
	}

	app := &Application{
		cfg:     opts.Config,
		log:     opts.Logger,
		alerter: opts.Alerter,
		console: opts.Console,
	}
	if app.log == nil {
		app.log = logging.NewLogger(app.cfg.LoggerConfig())
	}
	if app.alerter == nil {
		app.alerter = host.NewConsoleAlerter(nil, app.log)
	}

	if err := app.bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// bootstrap creates components in dependency order.
func (app *Application) bootstrap() error {
	cfg := app.cfg

	app.mem = host.NewRAM(cfg.Host.RAMSize)

	drain, err := cfg.DrainKinds()
	if err != nil {
		return &InitError{Component: "bridge", Err: err}
	}
	bridgeOpts := []bridge.Option{
		bridge.WithLogger(app.log),
		bridge.WithAlert(host.PanicAlert(app.alerter)),
		bridge.WithDrain(drain...),
		bridge.WithThreadName(cfg.Bridge.ThreadName),
	}
	if cfg.Bridge.SingleSlot {
		bridgeOpts = append(bridgeOpts, bridge.WithSingleSlot())
	}

	rt := script.NewRuntime(
		script.WithScriptDir(cfg.Script.Dir),
		script.WithMainModule(cfg.Script.MainModule),
		script.WithMemory(app.mem),
		script.WithAlerter(app.alerter),
	)
	app.bridge = bridge.New(rt, bridgeOpts...)

	app.sim = host.NewSimulation(app.mem, app.bridge,
		host.WithFrameRate(cfg.Host.FrameRate),
		host.WithMaxFrames(cfg.Host.Frames),
		host.WithSimulationLogger(app.log),
	)

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path,
			metrics.NewCollector(app.bridge, app.sim), app.log)
		if err != nil {
			return &InitError{Component: "metrics", Err: err}
		}
		app.metrics = srv
	}

	return nil
}

// Bridge returns the event bridge.
func (app *Application) Bridge() *bridge.Bridge {
	return app.bridge
}

// Memory returns the guest memory.
func (app *Application) Memory() *host.RAM {
	return app.mem
}

// Simulation returns the host frame loop.
func (app *Application) Simulation() *host.Simulation {
	return app.sim
}

// Run starts the script session and every enabled component, and blocks
// until ctx ends, the frame limit is reached or the console quits. The
// session is always shut down before Run returns.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	if app.cfg.Autorun.Dir != "" {
		w, err := autorun.New(app.cfg.Autorun.Dir, app.bridge,
			autorun.WithDebounce(app.cfg.Autorun.Debounce),
			autorun.WithLogger(app.log),
		)
		if err != nil {
			return &InitError{Component: "autorun", Err: err}
		}
		app.autorun = w
	}

	if err := app.bridge.Init(); err != nil {
		if app.autorun != nil {
			_ = app.autorun.Close()
		}
		return &InitError{Component: "bridge", Err: err}
	}
	app.log.Info("script session %s started", app.bridge.Session())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.sim.Run(gctx); err != nil {
			return err
		}
		return ErrQuit
	})

	if app.metrics != nil {
		g.Go(func() error {
			return app.metrics.Run(gctx)
		})
	}

	if app.autorun != nil {
		g.Go(func() error {
			return app.autorun.Run(gctx)
		})
	}

	if app.console != nil {
		c := console.New(app.console, app.bridge,
			console.WithStats(app.statsLine),
			console.WithLogger(app.log),
		)
		g.Go(func() error {
			if err := c.Run(gctx); err != nil {
				return err
			}
			return ErrQuit
		})
	}

	err := g.Wait()
	if errors.Is(err, ErrQuit) || errors.Is(err, context.Canceled) {
		err = nil
	}

	if serr := app.Shutdown(); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Shutdown stops the script session, waiting at most the configured
// shutdown timeout for the consumer to exit.
func (app *Application) Shutdown() error {
	ctx := context.Background()
	if d := app.cfg.Bridge.ShutdownTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if err := app.bridge.ShutdownContext(ctx); err != nil {
		app.log.Error("script consumer did not exit: %v", err)
		return fmt.Errorf("%w: %v", ErrShutdownTimeout, err)
	}
	app.log.Info("script session stopped after %d frames", app.sim.Frames())
	_ = app.log.Sync()
	return nil
}

// Eval runs a single script in a fresh session and shuts it down once the
// script has been processed. It returns ErrNotEvaluated if the session
// ended first, for example because the script library failed to load.
func (app *Application) Eval(script string) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	if err := app.bridge.Init(); err != nil {
		return &InitError{Component: "bridge", Err: err}
	}
	if !app.bridge.SignalMode(event.Evaluate(script), bridge.ModeDrain) {
		if err := app.Shutdown(); err != nil {
			return errors.Join(ErrNotEvaluated, err)
		}
		return ErrNotEvaluated
	}
	return app.Shutdown()
}

func (app *Application) statsLine() string {
	s := app.bridge.Stats()
	return fmt.Sprintf("session=%s running=%v queued=%d delivered=%d masked=%d dropped=%d frames=%d",
		app.bridge.Session(), s.Running, s.QueueDepth, s.Delivered, s.Rejected, s.Dropped, app.sim.Frames())
}
