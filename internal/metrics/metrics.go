// Package metrics exposes bridge statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/scriptbridge/internal/bridge"
	"github.com/dshills/scriptbridge/internal/event"
)

const namespace = "scriptbridge"

// StatsSource is satisfied by *bridge.Bridge.
type StatsSource interface {
	Stats() bridge.Stats
}

// FrameSource is satisfied by *host.Simulation.
type FrameSource interface {
	Frames() uint64
	Posted() uint64
}

// Collector reads bridge statistics at scrape time.
type Collector struct {
	bridge StatsSource
	frames FrameSource

	sessions   *prometheus.Desc
	signals    *prometheus.Desc
	delivered  *prometheus.Desc
	timeouts   *prometheus.Desc
	drains     *prometheus.Desc
	conflicts  *prometheus.Desc
	queueDepth *prometheus.Desc
	running    *prometheus.Desc
	enabled    *prometheus.Desc
	simFrames  *prometheus.Desc
	simPosted  *prometheus.Desc
}

// NewCollector creates a collector over b. frames may be nil.
func NewCollector(b StatsSource, frames FrameSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		bridge:     b,
		frames:     frames,
		sessions:   desc("sessions_total", "Consumer sessions started."),
		signals:    desc("signals_total", "Signals by outcome.", "outcome"),
		delivered:  desc("events_delivered_total", "Events handed to the consumer."),
		timeouts:   desc("wait_timeouts_total", "Waits that returned without an event."),
		drains:     desc("drains_total", "Signals that waited for the consumer to finish."),
		conflicts:  desc("signal_conflicts_total", "Unretired events overwritten in single-slot mode."),
		queueDepth: desc("queue_depth", "Events waiting for the consumer."),
		running:    desc("consumer_running", "1 while the consumer goroutine runs."),
		enabled:    desc("event_enabled", "1 if the event kind is enabled.", "kind"),
		simFrames:  desc("frames_total", "Frames simulated by the host."),
		simPosted:  desc("frames_posted_total", "Frame events accepted by the bridge."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.sessions, c.signals, c.delivered, c.timeouts, c.drains,
		c.conflicts, c.queueDepth, c.running, c.enabled,
	} {
		ch <- d
	}
	if c.frames != nil {
		ch <- c.simFrames
		ch <- c.simPosted
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.bridge.Stats()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.sessions, s.Sessions)
	counter(c.signals, s.Signaled, "accepted")
	counter(c.signals, s.Rejected, "masked")
	counter(c.signals, s.Dropped, "dropped")
	counter(c.delivered, s.Delivered)
	counter(c.timeouts, s.Timeouts)
	counter(c.drains, s.Drains)
	counter(c.conflicts, s.Conflicts)
	gauge(c.queueDepth, float64(s.QueueDepth))
	gauge(c.running, boolValue(s.Running))

	enabled := make(map[event.Kind]bool, len(s.EnabledKinds))
	for _, k := range s.EnabledKinds {
		enabled[k] = true
	}
	for _, k := range []event.Kind{event.KindStop, event.KindEvaluate, event.KindFrame} {
		gauge(c.enabled, boolValue(enabled[k]), k.String())
	}

	if c.frames != nil {
		counter(c.simFrames, c.frames.Frames())
		counter(c.simPosted, c.frames.Posted())
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
