// Package autorun turns Lua files dropped into a directory into evaluate
// events. Each create or write is debounced per file; once a file has been
// quiet for the debounce delay its contents are posted to the bridge.
package autorun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/scriptbridge/internal/logging"
)

// Errors returned by the watcher.
var (
	ErrNotDirectory = errors.New("autorun path is not a directory")
	ErrClosed       = errors.New("autorun watcher is closed")
)

// Evaluator receives script text. *bridge.Bridge implements it.
type Evaluator interface {
	Evaluate(script string) bool
}

// Stats reports watcher activity.
type Stats struct {
	Submitted uint64
	Rejected  uint64
	Errors    uint64
}

// Watcher watches one directory.
type Watcher struct {
	dir      string
	target   Evaluator
	log      *logging.Logger
	debounce time.Duration
	ext      string
	scan     bool

	fsw       *fsnotify.Watcher
	closeOnce sync.Once
	closeErr  error

	submitted atomic.Uint64
	rejected  atomic.Uint64
	errors    atomic.Uint64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a changed file is submitted.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtension sets the file extension to react to. Defaults to ".lua".
func WithExtension(ext string) Option {
	return func(w *Watcher) {
		if ext != "" && ext[0] != '.' {
			ext = "." + ext
		}
		w.ext = ext
	}
}

// WithInitialScan submits files already present when Run starts, in name
// order.
func WithInitialScan() Option {
	return func(w *Watcher) {
		w.scan = true
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// New starts watching dir. Run must be called to process events; Close
// releases the watch if Run is never called.
func New(dir string, target Evaluator, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		target:   target,
		log:      logging.NullLogger,
		debounce: 100 * time.Millisecond,
		ext:      ".lua",
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithComponent("autorun")

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	w.dir = abs

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.fsw = fsw
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Stats returns watcher statistics.
func (w *Watcher) Stats() Stats {
	return Stats{
		Submitted: w.submitted.Load(),
		Rejected:  w.rejected.Load(),
		Errors:    w.errors.Load(),
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fsw.Close()
	})
	return w.closeErr
}

// Run processes file events until ctx ends. It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	w.log.Info("watching %s for %s files", w.dir, w.ext)

	if w.scan {
		w.scanExisting()
	}

	pending := make(map[string]time.Time)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrClosed
			}
			if !w.relevant(ev) {
				continue
			}
			pending[ev.Name] = time.Now().Add(w.debounce)
			w.arm(timer, pending)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrClosed
			}
			w.errors.Add(1)
			w.log.Warn("watch error: %v", err)

		case now := <-timer.C:
			for path, due := range pending {
				if !due.After(now) {
					delete(pending, path)
					w.submit(path)
				}
			}
			w.arm(timer, pending)
		}
	}
}

// arm resets timer to the earliest pending deadline.
func (w *Watcher) arm(timer *time.Timer, pending map[string]time.Time) {
	if len(pending) == 0 {
		return
	}
	var next time.Time
	for _, due := range pending {
		if next.IsZero() || due.Before(next) {
			next = due
		}
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(time.Until(next))
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	return w.matches(ev.Name)
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if base == "" || base[0] == '.' {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), w.ext)
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.errors.Add(1)
		w.log.Warn("scanning %s: %v", w.dir, err)
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && w.matches(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.submit(filepath.Join(w.dir, name))
	}
}

func (w *Watcher) submit(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Removed or renamed before the debounce fired.
		w.errors.Add(1)
		w.log.Debug("reading %s: %v", path, err)
		return
	}
	if len(data) == 0 {
		return
	}

	if !w.target.Evaluate(string(data)) {
		w.rejected.Add(1)
		w.log.Warn("bridge did not accept %s", filepath.Base(path))
		return
	}
	w.submitted.Add(1)
	w.log.Info("submitted %s", filepath.Base(path))
}
