// Package metrics exposes Prometheus collectors for the playground.
//
// Collectors are registered on a private registry instead of the global
// default one, so tests can build as many Metrics values as they like.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Execution metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	// Container pool metrics
	PoolReady    prometheus.Gauge
	PoolFailures prometheus.Counter

	// Settings metrics
	AutosaveWrites prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_executions_total",
				Help: "Total number of code executions by language and outcome",
			},
			[]string{"language", "outcome"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_execution_duration_seconds",
				Help:    "Wall-clock duration of code executions",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"language"},
		),
		PoolReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playground_container_pool_ready",
			Help: "Pre-warmed containers waiting in the pool",
		}),
		PoolFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playground_container_pool_failures_total",
			Help: "Failed attempts to create a pre-warmed container",
		}),
		AutosaveWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playground_autosave_writes_total",
			Help: "Debounced autosave writes that reached the database",
		}),
	}

	reg.MustRegister(
		m.Executions,
		m.ExecutionDuration,
		m.PoolReady,
		m.PoolFailures,
		m.AutosaveWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveExecution records one finished execution.
// outcome is "success", "runtime_failure", "unsupported_language" or "error".
func (m *Metrics) ObserveExecution(language, outcome string, d time.Duration) {
	m.Executions.WithLabelValues(language, outcome).Inc()
	m.ExecutionDuration.WithLabelValues(language).Observe(d.Seconds())
}

// SetPoolReady reports how many warm containers are queued.
func (m *Metrics) SetPoolReady(n int) {
	m.PoolReady.Set(float64(n))
}

// IncPoolFailure counts a failed container creation.
func (m *Metrics) IncPoolFailure() {
	m.PoolFailures.Inc()
}

// IncAutosave counts a debounced settings write.
func (m *Metrics) IncAutosave() {
	m.AutosaveWrites.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
