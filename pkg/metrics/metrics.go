// Package metrics exposes Prometheus instrumentation for the asset
// lifecycle. Metrics are opt-in: until InitRegistry is called, New returns
// nil and every record method on a nil receiver is a no-op.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry   *prometheus.Registry
	registryMu sync.RWMutex
)

// InitRegistry enables metrics collection with a fresh registry including
// the standard process and Go collectors.
func InitRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the active registry, or nil when disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// Handler returns the /metrics HTTP handler. When metrics are disabled the
// handler answers 404.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Metrics holds the lifecycle collectors.
type Metrics struct {
	uploads           *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	schedulerRuns     *prometheus.CounterVec
}

// New creates the lifecycle metrics. Returns nil if metrics are not enabled
// (InitRegistry not called).
func New() *Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &Metrics{
		uploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lode_uploads_total",
				Help: "Total primary-file uploads by outcome",
			},
			[]string{"outcome"}, // "committed", "nochange", "error"
		),
		transitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lode_lifecycle_transitions_total",
				Help: "Total lifecycle transitions by kind and trigger",
			},
			[]string{"transition", "trigger"}, // "archive"/"destroy", "manual"/"auto"
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lode_operation_duration_seconds",
				Help:    "Duration of coordinator operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		schedulerRuns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lode_scheduler_runs_total",
				Help: "Total scheduler job runs by job and outcome",
			},
			[]string{"job", "outcome"}, // "auto_archive"/"auto_destroy", "ok"/"error"
		),
	}
}

// RecordUpload counts one primary upload.
func (m *Metrics) RecordUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// RecordTransition counts one lifecycle transition.
func (m *Metrics) RecordTransition(transition, trigger string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition, trigger).Inc()
}

// RecordOperationDuration observes one operation's wall time.
func (m *Metrics) RecordOperationDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordSchedulerRun counts one scheduler job run.
func (m *Metrics) RecordSchedulerRun(job, outcome string) {
	if m == nil {
		return
	}
	m.schedulerRuns.WithLabelValues(job, outcome).Inc()
}
