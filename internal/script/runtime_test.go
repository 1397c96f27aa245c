package script

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/scriptbridge/internal/bridge"
	"github.com/dshills/scriptbridge/internal/event"
	"github.com/dshills/scriptbridge/internal/host"
	"github.com/dshills/scriptbridge/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const scratch = host.CachedBase + 0x100

type recordingAlerter struct {
	mu     sync.Mutex
	answer bool
	msgs   []string
	styles []host.AlertStyle
}

func (a *recordingAlerter) Alert(style host.AlertStyle, yesNo bool, msg string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
	a.styles = append(a.styles, style)
	if yesNo {
		return a.answer
	}
	return true
}

func (a *recordingAlerter) messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.msgs...)
}

type fixture struct {
	b      *bridge.Bridge
	mem    *host.RAM
	logs   *bytes.Buffer
	alerts *recordingAlerter
	errs   chan error
}

func start(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		mem:    host.NewRAM(0x10000),
		logs:   &bytes.Buffer{},
		alerts: &recordingAlerter{},
		errs:   make(chan error, 4),
	}
	log := logging.NewLogger(logging.LoggerConfig{
		Level:  logging.LogLevelDebug,
		Format: "json",
		Output: f.logs,
		Name:   "test",
	})

	opts = append([]Option{WithMemory(f.mem), WithAlerter(f.alerts)}, opts...)
	rt := NewRuntime(opts...)

	f.b = bridge.New(bridge.RuntimeFunc(func(c *bridge.Consumer) error {
		err := rt.Run(c)
		f.errs <- err
		return err
	}), bridge.WithLogger(log), bridge.WithAlert(host.PanicAlert(f.alerts)))

	require.NoError(t, f.b.Init())
	t.Cleanup(f.b.Shutdown)
	return f
}

func (f *fixture) entries(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(f.logs.Bytes()))
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		out = append(out, entry)
	}
	return out
}

func (f *fixture) find(t *testing.T, msg string) map[string]any {
	t.Helper()
	for _, e := range f.entries(t) {
		if s, _ := e["msg"].(string); s == msg {
			return e
		}
	}
	return nil
}

func (f *fixture) contains(t *testing.T, fragment string) bool {
	t.Helper()
	return bytes.Contains(f.logs.Bytes(), []byte(fragment))
}

func TestRuntimeEvaluateWritesMemory(t *testing.T) {
	f := start(t)

	require.True(t, f.b.Evaluate(`
		local d = require('dolphin')
		d.mem_write32(0xDEADBEEF, 0x80000100)
		d.mem_write8(d.mem_read8(0x80000100) + 1, 0x80000104)
	`))
	f.b.Shutdown()

	assert.Equal(t, uint32(0xDEADBEEF), f.mem.Read32(scratch))
	assert.Equal(t, uint8(0xDF), f.mem.Read8(scratch+4))
	assert.NoError(t, <-f.errs)
}

func TestRuntimeListeners(t *testing.T) {
	f := start(t)

	require.False(t, f.b.IsEnabled(event.KindFrame))
	require.True(t, f.b.Evaluate(`
		local d = require('dolphin')
		frames = 0
		on_frame = d.on(d.EVENT_FRAME, function()
			frames = frames + 1
			d.mem_write32(frames, 0x80000100)
		end)
	`))
	require.Eventually(t, func() bool { return f.b.IsEnabled(event.KindFrame) },
		2*time.Second, time.Millisecond)

	for i := 0; i < 3; i++ {
		require.True(t, f.b.PostFrame())
	}
	require.Eventually(t, func() bool { return f.mem.Read32(scratch) == 3 },
		2*time.Second, time.Millisecond)

	require.True(t, f.b.Evaluate(`require('dolphin').off(require('dolphin').EVENT_FRAME, on_frame)`))
	require.Eventually(t, func() bool { return !f.b.IsEnabled(event.KindFrame) },
		2*time.Second, time.Millisecond)
	assert.False(t, f.b.PostFrame())
}

func TestRuntimeOffKeepsMaskWhileListenersRemain(t *testing.T) {
	f := start(t)

	require.True(t, f.b.Evaluate(`
		local d = require('dolphin')
		local a = d.on(d.EVENT_FRAME, function() end)
		d.on(d.EVENT_FRAME, function() end)
		d.mem_write8(d.off(d.EVENT_FRAME, a) and 1 or 0, 0x80000100)
		d.mem_write8(d.listeners(d.EVENT_FRAME), 0x80000101)
		d.mem_write8(d.off(d.EVENT_FRAME, a) and 1 or 0, 0x80000102)
	`))
	f.b.Shutdown()

	assert.Equal(t, uint8(1), f.mem.Read8(scratch))
	assert.Equal(t, uint8(1), f.mem.Read8(scratch+1))
	assert.Equal(t, uint8(0), f.mem.Read8(scratch+2))
}

func TestRuntimeEvaluateErrorsAreContained(t *testing.T) {
	f := start(t)

	f.b.Evaluate(`this is not lua`)
	f.b.Evaluate(`error('boom')`)
	f.b.Evaluate(`require('dolphin').mem_write8(7, 0x80000100)`)
	f.b.Shutdown()

	assert.Equal(t, uint8(7), f.mem.Read8(scratch))
	assert.True(t, f.contains(t, "evaluate:"))
	assert.True(t, f.contains(t, "boom"))
	assert.NoError(t, <-f.errs)
}

func TestRuntimeListenerErrorsAreContained(t *testing.T) {
	f := start(t)

	f.b.Evaluate(`
		local d = require('dolphin')
		d.on(d.EVENT_FRAME, function() error('listener exploded') end)
		d.on(d.EVENT_FRAME, function() d.mem_write8(1, 0x80000100) end)
	`)
	require.Eventually(t, func() bool { return f.b.IsEnabled(event.KindFrame) },
		2*time.Second, time.Millisecond)
	f.b.PostFrame()
	f.b.Shutdown()

	assert.Equal(t, uint8(1), f.mem.Read8(scratch))
	assert.True(t, f.contains(t, "listener exploded"))
}

func TestRuntimeLogLevels(t *testing.T) {
	f := start(t)

	f.b.Evaluate(`
		local d = require('dolphin')
		d.log(d.LOG_ERROR, 'bad thing')
		d.log(d.LOG_WARNING, 'odd thing')
		d.log(d.LOG_DEBUG, 'small thing')
		d.logf(d.LOG_NOTICE, 'frame %d', 12)
		print('hello', 1)
	`)
	f.b.Shutdown()

	tests := []struct {
		msg   string
		level string
	}{
		{"bad thing", "error"},
		{"odd thing", "warn"},
		{"small thing", "debug"},
		{"frame 12", "info"},
		{"hello\t1", "info"},
	}
	for _, tt := range tests {
		entry := f.find(t, tt.msg)
		require.NotNil(t, entry, tt.msg)
		assert.Equal(t, tt.level, entry["level"], tt.msg)
		assert.Equal(t, "script", entry["component"], tt.msg)
	}
}

func TestRuntimeMsgAlert(t *testing.T) {
	f := start(t)
	f.alerts.answer = false

	f.b.Evaluate(`
		local d = require('dolphin')
		local ok = d.msg_alert(true, d.ALERT_QUESTION, 'sure?')
		d.mem_write8(ok and 1 or 2, 0x80000100)
		d.msg_alert(false, d.ALERT_WARNING, 'careful')
	`)
	f.b.Shutdown()

	assert.Equal(t, uint8(2), f.mem.Read8(scratch))
	assert.Equal(t, []string{"sure?", "careful"}, f.alerts.messages())
	assert.Equal(t, []host.AlertStyle{host.AlertQuestion, host.AlertWarning}, f.alerts.styles)
}

func TestRuntimeNativeWaitPoll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "poller.lua"), []byte(`
		local d = require('dolphin')
		return {
			main = function()
				d.mem_write16(d.wait(0), 0x80000100)
				d.mem_write16(d.wait(5), 0x80000102)
				while d.wait() ~= d.EVENT_STOP do end
			end,
		}
	`), 0o644))

	f := start(t, WithScriptDir(dir), WithMainModule("poller"))
	require.Eventually(t, func() bool { return f.mem.Read16(scratch+2) != 0 },
		2*time.Second, time.Millisecond)
	f.b.Shutdown()

	assert.Equal(t, uint16(event.KindNone), f.mem.Read16(scratch))
	assert.Equal(t, uint16(event.KindNone), f.mem.Read16(scratch+2))
	assert.NoError(t, <-f.errs)
}

func TestRuntimeInitScriptAndSearchPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.lua"), []byte(`
		return { value = 42 }
	`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "init.lua"), []byte(`
		return { value = 43 }
	`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "init.lua"), []byte(`
		local d = require('dolphin')
		d.mem_write8(require('helper').value, 0x80000100)
		d.mem_write8(require('pkg').value, 0x80000101)
	`), 0o644))

	f := start(t, WithScriptDir(dir))
	f.b.Shutdown()

	assert.Equal(t, uint8(42), f.mem.Read8(scratch))
	assert.Equal(t, uint8(43), f.mem.Read8(scratch+1))
}

func TestRuntimeBrokenInitScriptIsLogged(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "init.lua"), []byte(`error('init failed')`), 0o644))

	f := start(t, WithScriptDir(dir))
	f.b.Evaluate(`require('dolphin').mem_write8(5, 0x80000100)`)
	f.b.Shutdown()

	assert.Equal(t, uint8(5), f.mem.Read8(scratch))
	assert.True(t, f.contains(t, "init failed"))
	assert.NoError(t, <-f.errs)
}

func TestRuntimeBootFailure(t *testing.T) {
	f := start(t, WithMainModule("missing"))

	err := <-f.errs
	var bootErr *BootError
	require.True(t, errors.As(err, &bootErr))
	assert.Equal(t, "missing", bootErr.Module)
	assert.Contains(t, err.Error(), "missing")

	done := make(chan struct{})
	go func() {
		f.b.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return after boot failure")
	}

	msgs := f.alerts.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Failed to run script library")
}

func TestRuntimeMemoryNotAttached(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})
	b := bridge.New(NewRuntime(), bridge.WithLogger(log))
	require.NoError(t, b.Init())

	b.Evaluate(`
		local d = require('dolphin')
		d.mem_write8(d.mem_is_ram_address(0x80000000) and 1 or 0, 0x80000000)
	`)
	b.Shutdown()

	assert.Contains(t, buf.String(), ErrNoMemory.Error())
}

func TestRuntimeSessionsStartClean(t *testing.T) {
	f := start(t)

	f.b.Evaluate(`leftover = 5`)
	require.NoError(t, f.b.Init())
	f.b.Evaluate(`require('dolphin').mem_write8(leftover == nil and 1 or 0, 0x80000100)`)
	f.b.Shutdown()

	assert.Equal(t, uint8(1), f.mem.Read8(scratch))
	assert.Equal(t, uint64(2), f.b.Stats().Sessions)
}

func TestRuntimeNestedEvaluate(t *testing.T) {
	f := start(t)

	f.b.Evaluate(`
		local d = require('dolphin')
		d.evaluate("require('dolphin').mem_write8(9, 0x80000100)")
	`)
	require.Eventually(t, func() bool { return f.mem.Read8(scratch) == 9 },
		2*time.Second, time.Millisecond)
}

func TestRuntimeEvaluateScriptOutsideEvaluate(t *testing.T) {
	f := start(t)

	f.b.Evaluate(`
		local d = require('dolphin')
		d.on(d.EVENT_FRAME, function()
			d.mem_write8(d.evaluate_script() == nil and 1 or 2, 0x80000100)
		end)
	`)
	require.Eventually(t, func() bool { return f.b.IsEnabled(event.KindFrame) },
		2*time.Second, time.Millisecond)
	f.b.PostFrame()
	f.b.Shutdown()

	assert.Equal(t, uint8(1), f.mem.Read8(scratch))
}

func TestRuntimeICacheInvalidation(t *testing.T) {
	f := start(t)

	f.b.Evaluate(`require('dolphin').mem_invalidate_icache(0x80000000, 32, true)`)
	f.b.Shutdown()

	assert.Equal(t, uint64(1), f.mem.Invalidations())
}
