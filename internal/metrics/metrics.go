// Package metrics exposes the Prometheus instrumentation shared by the
// API server and the hit worker. All collectors live on a private
// registry so tests never trip over duplicate registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels used across counters.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultNotFound = "not_found"
)

// Metrics bundles every collector of the shortener processes.
type Metrics struct {
	registry *prometheus.Registry

	// Serving path
	URLsCreated     prometheus.Counter
	Redirects       *prometheus.CounterVec
	CacheOps        *prometheus.CounterVec
	PublishFailures prometheus.Counter
	ResolveDuration prometheus.Histogram

	// Hit pipeline
	QueueDepth       prometheus.Gauge
	BatchesProcessed *prometheus.CounterVec
	EventsStored     prometheus.Counter
	CounterFlushes   *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		URLsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortr_urls_created_total",
			Help: "Short URLs created.",
		}),
		Redirects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortr_redirects_total",
			Help: "Redirect resolutions by outcome.",
		}, []string{"result"}),
		CacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortr_cache_operations_total",
			Help: "Cache operations by type and outcome.",
		}, []string{"op", "result"}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortr_queue_publish_failures_total",
			Help: "Hit events dropped because the queue publish failed.",
		}),
		ResolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shortr_resolve_duration_seconds",
			Help:    "Latency of short code resolution.",
			Buckets: prometheus.DefBuckets,
		}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shortr_queue_depth",
			Help: "Approximate number of hit events waiting in the queue.",
		}),
		BatchesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortr_worker_batches_total",
			Help: "Hit batches processed by the worker, by outcome.",
		}, []string{"result"}),
		EventsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortr_hit_events_stored_total",
			Help: "Hit events written to hit storage.",
		}),
		CounterFlushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortr_counter_flushes_total",
			Help: "Aggregated counter flushes to the URL store, by outcome.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
