// Package exporter re-exposes a node's live stream as Prometheus metrics.
//
// The latest sample of every series in the session's last frame becomes a
// gauge; session counters become counters. Nothing is scraped from the
// backend directly: values only change when the stream delivers a frame.
package exporter

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/stream"
)

const namespace = "pilot"

// Source is what the exporter reads from. *stream.Session satisfies it.
type Source interface {
	NodeID() int
	State() stream.State
	Stats() stream.Stats
	LastFrame() *metrics.Frame
}

// Exporter implements prometheus.Collector over a Source.
type Exporter struct {
	mu     sync.RWMutex
	source Source
	node   string

	cpu      *prometheus.Desc
	memory   *prometheus.Desc
	network  *prometheus.Desc
	frames   *prometheus.Desc
	dropped  *prometheus.Desc
	queries  *prometheus.Desc
	up       *prometheus.Desc
	sampleTS *prometheus.Desc
}

// New returns an exporter for src. node is the label value used for the
// node; when empty the numeric node id is used.
func New(src Source, node string) *Exporter {
	return &Exporter{
		source: src,
		node:   node,
		cpu: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "cpu_percent"),
			"Latest CPU usage per core, percent.",
			[]string{"node", "core"}, nil),
		memory: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "memory_percent"),
			"Latest memory usage, percent.",
			[]string{"node"}, nil),
		network: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "network_bytes_per_second"),
			"Latest network throughput.",
			[]string{"node", "direction"}, nil),
		frames: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "frames_total"),
			"Frames received on the stream.",
			[]string{"node"}, nil),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "frames_dropped_total"),
			"Inbound messages dropped as malformed or for another node.",
			[]string{"node"}, nil),
		queries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "queries_total"),
			"Queries sent to the backend.",
			[]string{"node"}, nil),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "up"),
			"1 if the stream is open.",
			[]string{"node", "state"}, nil),
		sampleTS: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "last_sample_timestamp_seconds"),
			"Backend time of the newest sample in the last frame.",
			[]string{"node"}, nil),
	}
}

// SetSource swaps the session being exported, e.g. after a reconnect.
func (e *Exporter) SetSource(src Source) {
	e.mu.Lock()
	e.source = src
	e.mu.Unlock()
}

func (e *Exporter) nodeLabel(src Source) string {
	if e.node != "" {
		return e.node
	}
	return strconv.Itoa(src.NodeID())
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.cpu
	ch <- e.memory
	ch <- e.network
	ch <- e.frames
	ch <- e.dropped
	ch <- e.queries
	ch <- e.up
	ch <- e.sampleTS
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mu.RLock()
	src := e.source
	e.mu.RUnlock()
	if src == nil {
		return
	}

	node := e.nodeLabel(src)
	state := src.State()
	stats := src.Stats()

	up := 0.0
	if state == stream.StateOpen {
		up = 1
	}
	ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, up, node, state.String())
	ch <- prometheus.MustNewConstMetric(e.frames, prometheus.CounterValue, float64(stats.FramesReceived), node)
	ch <- prometheus.MustNewConstMetric(e.dropped, prometheus.CounterValue, float64(stats.FramesDropped), node)
	ch <- prometheus.MustNewConstMetric(e.queries, prometheus.CounterValue, float64(stats.QueriesSent), node)

	frame := src.LastFrame()
	if frame.Empty() {
		return
	}

	var newest metrics.Sample
	for key, samples := range frame.Series() {
		if len(samples) == 0 {
			continue
		}
		last := latest(samples)
		if last.Time.After(newest.Time) {
			newest = last
		}

		switch key.Kind {
		case metrics.KindCPU:
			ch <- prometheus.MustNewConstMetric(e.cpu, prometheus.GaugeValue, last.Value, node, strconv.Itoa(key.SubID))
		case metrics.KindMemory:
			ch <- prometheus.MustNewConstMetric(e.memory, prometheus.GaugeValue, last.Value, node)
		case metrics.KindNetworkReceived:
			ch <- prometheus.MustNewConstMetric(e.network, prometheus.GaugeValue, last.Value, node, "received")
		case metrics.KindNetworkSent:
			ch <- prometheus.MustNewConstMetric(e.network, prometheus.GaugeValue, last.Value, node, "sent")
		}
	}

	if !newest.Time.IsZero() {
		ch <- prometheus.MustNewConstMetric(e.sampleTS, prometheus.GaugeValue,
			float64(newest.Time.UnixMilli())/1000, node)
	}
}

// latest returns the sample with the greatest time. Frames are usually
// sorted, but the decoder doesn't promise it.
func latest(samples []metrics.Sample) metrics.Sample {
	out := samples[0]
	for _, s := range samples[1:] {
		if !s.Time.Before(out.Time) {
			out = s
		}
	}
	return out
}

// Handler returns a /metrics handler serving e plus the Go runtime
// collectors from a private registry.
func Handler(e *Exporter) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(e)
	reg.MustRegister(collectors.NewGoCollector())
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
