package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/scriptbridge/internal/config"
	"github.com/dshills/scriptbridge/internal/host"
	"github.com/dshills/scriptbridge/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingAlerter struct {
	mu   sync.Mutex
	msgs []string
}

func (a *recordingAlerter) Alert(_ host.AlertStyle, _ bool, msg string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
	return true
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Host.FrameRate = 1000
	cfg.Host.RAMSize = 0x10000
	cfg.Bridge.ShutdownTimeout = 5 * time.Second
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, console io.ReadWriter) (*Application, *recordingAlerter) {
	t.Helper()
	alerts := &recordingAlerter{}
	a, err := New(Options{
		Config:  cfg,
		Logger:  logging.NullLogger,
		Alerter: alerts,
		Console: console,
	})
	require.NoError(t, err)
	return a, alerts
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Options{})
	var initErr *InitError
	require.True(t, errors.As(err, &initErr))
	assert.Equal(t, "config", initErr.Component)
}

func TestRunUntilFrameLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "init.lua"), []byte(`
		local d = require('dolphin')
		local n = 0
		d.on(d.EVENT_FRAME, function()
			n = n + 1
			d.mem_write32(n, 0x80000100)
		end)
	`), 0o644))

	cfg := testConfig(t)
	cfg.Host.Frames = 200
	cfg.Script.Dir = dir
	a, alerts := newApp(t, cfg, nil)

	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, uint64(200), a.Simulation().Frames())
	handled := a.Memory().Read32(host.CachedBase + 0x100)
	assert.Positive(t, handled)
	assert.LessOrEqual(t, uint64(handled), a.Simulation().Posted())
	assert.Equal(t, uint32(200), a.Memory().Read32(host.FrameCounterAddr))
	assert.Empty(t, alerts.msgs)
	assert.False(t, a.Bridge().Running())
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"
	a, _ := newApp(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Simulation().Frames() > 10 }, 5*time.Second, time.Millisecond)
	assert.ErrorIs(t, a.Run(ctx), ErrAlreadyRunning)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, a.Bridge().Running())
}

func TestRunConsoleQuit(t *testing.T) {
	pr, pw := io.Pipe()
	rw := struct {
		io.Reader
		io.Writer
	}{pr, io.Discard}

	a, _ := newApp(t, testConfig(t), rw)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	_, err := pw.Write([]byte("require('dolphin').mem_write8(6, 0x80000100)\r:quit\r"))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after :quit")
	}
	require.NoError(t, pw.Close())

	assert.Equal(t, uint8(6), a.Memory().Read8(host.CachedBase+0x100))
}

func TestRunAutorunDirMissing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Autorun.Dir = filepath.Join(t.TempDir(), "missing")
	a, _ := newApp(t, cfg, nil)

	err := a.Run(context.Background())
	var initErr *InitError
	require.True(t, errors.As(err, &initErr))
	assert.Equal(t, "autorun", initErr.Component)
}

func TestRunAutorunSubmits(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Autorun.Dir = dir
	cfg.Autorun.Debounce = 10 * time.Millisecond
	a, _ := newApp(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Bridge().Running() }, 5*time.Second, time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "poke.lua"),
		[]byte("require('dolphin').mem_write8(4, 0x80000100)"), 0o644))

	require.Eventually(t, func() bool { return a.Memory().Read8(host.CachedBase+0x100) == 4 },
		5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRunBootFailureRaisesAlert(t *testing.T) {
	cfg := testConfig(t)
	cfg.Host.Frames = 20
	cfg.Script.MainModule = "does_not_exist"
	a, alerts := newApp(t, cfg, nil)

	require.NoError(t, a.Run(context.Background()))

	require.Len(t, alerts.msgs, 1)
	assert.True(t, strings.HasPrefix(alerts.msgs[0], "Failed to run script library"))
}

func TestEval(t *testing.T) {
	a, _ := newApp(t, testConfig(t), nil)

	require.NoError(t, a.Eval("require('dolphin').mem_write16(0xBEEF, 0x80000100)"))
	assert.Equal(t, uint16(0xBEEF), a.Memory().Read16(host.CachedBase+0x100))
	assert.False(t, a.Bridge().Running())
	assert.Equal(t, uint64(1), a.Bridge().Stats().Sessions)
}

func TestEvalBootFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Script.MainModule = "does_not_exist"
	a, alerts := newApp(t, cfg, nil)

	err := a.Eval("return 1+1")
	require.ErrorIs(t, err, ErrNotEvaluated)
	assert.Zero(t, a.Bridge().Stats().Delivered)
	assert.False(t, a.Bridge().Running())

	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	require.Len(t, alerts.msgs, 1)
	assert.True(t, strings.HasPrefix(alerts.msgs[0], "Failed to run script library"))
}

func TestSingleSlotConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bridge.SingleSlot = true
	a, _ := newApp(t, cfg, nil)

	require.NoError(t, a.Eval("require('dolphin').mem_write8(1, 0x80000100)"))
	assert.Equal(t, uint8(1), a.Memory().Read8(host.CachedBase+0x100))
	assert.Zero(t, a.Bridge().Stats().Conflicts)
}

func TestInitErrorUnwrap(t *testing.T) {
	err := &InitError{Component: "bridge", Err: ErrShutdownTimeout}
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Equal(t, "initializing bridge: shutdown timed out", err.Error())
}
