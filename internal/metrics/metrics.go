// Package metrics collects ingestion counters for one invocation and writes
// them in the Prometheus text format, for the node exporter's textfile
// collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "oetime"

// Metrics holds the collectors of one run. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	KeysListed   *prometheus.CounterVec
	KeysSkipped  *prometheus.CounterVec
	Layers       *prometheus.CounterVec
	DatesWritten prometheus.Counter
	UnitDuration prometheus.Histogram
	LastRun      prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		KeysListed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_listed_total",
			Help:      "Object keys returned by the listing source",
		}, []string{"source"}),
		KeysSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_skipped_total",
			Help:      "Object keys not mapped to a layer date",
		}, []string{"reason"}),
		Layers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layers_indexed_total",
			Help:      "Layer units completed, by status",
		}, []string{"status"}), // "ok", "error"
		DatesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dates_written_total",
			Help:      "Dates added to layer date sets",
		}),
		UnitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Time to index one layer",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
	m.registry.MustRegister(m.KeysListed, m.KeysSkipped, m.Layers, m.DatesWritten, m.UnitDuration, m.LastRun)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Listed(source string) {
	if m != nil {
		m.KeysListed.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) Skipped(reason string) {
	if m != nil {
		m.KeysSkipped.WithLabelValues(reason).Inc()
	}
}

// Unit records a finished layer unit.
func (m *Metrics) Unit(dates int, took time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Layers.WithLabelValues(status).Inc()
	m.DatesWritten.Add(float64(dates))
	m.UnitDuration.Observe(took.Seconds())
}

// WriteFile stamps LastRun and writes every collector to path atomically.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	m.LastRun.SetToCurrentTime()
	return prometheus.WriteToTextfile(path, m.registry)
}
