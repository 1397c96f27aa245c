package metrics

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/scriptbridge/internal/bridge"
	"github.com/dshills/scriptbridge/internal/event"
	"github.com/dshills/scriptbridge/internal/logging"
)

type fakeStats bridge.Stats

func (f fakeStats) Stats() bridge.Stats { return bridge.Stats(f) }

type fakeFrames struct{ frames, posted uint64 }

func (f fakeFrames) Frames() uint64 { return f.frames }
func (f fakeFrames) Posted() uint64 { return f.posted }

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func value(m *dto.Metric) float64 {
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func labelled(f *dto.MetricFamily, name, val string) float64 {
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == name && l.GetValue() == val {
				return value(m)
			}
		}
	}
	return -1
}

func TestCollector(t *testing.T) {
	stats := fakeStats{
		Sessions:     2,
		Signaled:     10,
		Rejected:     3,
		Dropped:      1,
		Delivered:    9,
		Timeouts:     4,
		Drains:       2,
		Conflicts:    0,
		QueueDepth:   1,
		Running:      true,
		EnabledKinds: []event.Kind{event.KindStop, event.KindEvaluate},
	}

	families := gather(t, NewCollector(stats, fakeFrames{frames: 120, posted: 60}))

	assert.Equal(t, 2.0, value(families["scriptbridge_sessions_total"].Metric[0]))
	assert.Equal(t, 9.0, value(families["scriptbridge_events_delivered_total"].Metric[0]))
	assert.Equal(t, 1.0, value(families["scriptbridge_queue_depth"].Metric[0]))
	assert.Equal(t, 1.0, value(families["scriptbridge_consumer_running"].Metric[0]))
	assert.Equal(t, 120.0, value(families["scriptbridge_frames_total"].Metric[0]))
	assert.Equal(t, 60.0, value(families["scriptbridge_frames_posted_total"].Metric[0]))

	signals := families["scriptbridge_signals_total"]
	assert.Equal(t, 10.0, labelled(signals, "outcome", "accepted"))
	assert.Equal(t, 3.0, labelled(signals, "outcome", "masked"))
	assert.Equal(t, 1.0, labelled(signals, "outcome", "dropped"))

	enabled := families["scriptbridge_event_enabled"]
	assert.Equal(t, 1.0, labelled(enabled, "kind", "stop"))
	assert.Equal(t, 1.0, labelled(enabled, "kind", "evaluate"))
	assert.Equal(t, 0.0, labelled(enabled, "kind", "frame"))
}

func TestCollectorWithoutFrames(t *testing.T) {
	families := gather(t, NewCollector(fakeStats{}, nil))

	_, ok := families["scriptbridge_frames_total"]
	assert.False(t, ok)
	assert.Equal(t, 0.0, value(families["scriptbridge_consumer_running"].Metric[0]))
}

func TestCollectorOverLiveBridge(t *testing.T) {
	b := bridge.New(bridge.RuntimeFunc(func(c *bridge.Consumer) error {
		for c.Wait(bridge.Infinite) != event.KindStop {
		}
		return nil
	}))
	require.NoError(t, b.Init())
	b.Evaluate("x")
	b.PostFrame()
	b.Shutdown()

	families := gather(t, NewCollector(b, nil))
	assert.Equal(t, 1.0, value(families["scriptbridge_sessions_total"].Metric[0]))
	assert.Equal(t, 1.0, labelled(families["scriptbridge_signals_total"], "outcome", "masked"))
	assert.Equal(t, 0.0, value(families["scriptbridge_consumer_running"].Metric[0]))
}

func TestServerHandler(t *testing.T) {
	srv, err := NewServer(":0", "/metrics", NewCollector(fakeStats{Sessions: 7}, nil), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scriptbridge_sessions_total 7")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServerServe(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", "/m", NewCollector(fakeStats{}, nil), nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/m")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "scriptbridge_queue_depth")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type brokenCollector struct{ desc *prometheus.Desc }

func (c brokenCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c brokenCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.NewInvalidMetric(c.desc, errors.New("stats unavailable"))
}

func TestServerLogsScrapeErrors(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})
	broken := brokenCollector{desc: prometheus.NewDesc("scriptbridge_broken", "Always fails.", nil, nil)}

	srv, err := NewServer(":0", "/metrics", broken, log)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "stats unavailable")
	assert.Contains(t, buf.String(), `"component":"metrics"`)
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestNewServerDuplicateCollector(t *testing.T) {
	c := NewCollector(fakeStats{}, nil)
	srv, err := NewServer(":0", "/metrics", c, nil)
	require.NoError(t, err)
	assert.Error(t, srv.Registry().Register(c))
}
