// Package metrics exposes Prometheus instrumentation for fetches and builds.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "futures"

// Fetch outcomes
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
	OutcomeHit   = "cache_hit"
)

// Recorder holds the collectors on its own registry
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	selectedRows  *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	lastBuild     *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with all collectors registered
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Per-contract fetches by source and outcome",
		}, []string{"source", "outcome"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Per-contract fetch latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"source"}),
		selectedRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "selected_rows_total",
			Help:      "Rows emitted into continuous series",
		}, []string{"root", "line"}),
		buildDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Continuous series build latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"root"}),
		lastBuild: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful build",
		}, []string{"root"}),
	}
}

// Registry returns the registry backing the recorder
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveFetch records one per-contract fetch
func (r *Recorder) ObserveFetch(source, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(source, outcome).Inc()
	if outcome != OutcomeHit {
		r.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}

// ObserveBuild records a finished build
func (r *Recorder) ObserveBuild(root, line string, rows int, d time.Duration) {
	if r == nil {
		return
	}
	r.selectedRows.WithLabelValues(root, line).Add(float64(rows))
	r.buildDuration.WithLabelValues(root).Observe(d.Seconds())
	r.lastBuild.WithLabelValues(root).SetToCurrentTime()
}

// Handler serves the recorder's registry in the exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
