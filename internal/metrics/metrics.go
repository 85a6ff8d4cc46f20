// Package metrics provides Prometheus metrics for roadwatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roadwatch"

// Collector owns all Prometheus metrics and the registry they live
// in. It is constructed once and injected into components instead of
// living in package globals, so tests get isolated registries and
// nothing mutates ambient process state.
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	// Ingestion
	BatchesTotal     prometheus.Counter
	ReadingsIngested prometheus.Counter
	ReadingsRejected prometheus.Counter

	// Detection
	DetectionRuns     prometheus.Counter
	DetectionDuration prometheus.Histogram
	VerdictsTriggered *prometheus.CounterVec

	// Incidents
	IncidentsCreated  *prometheus.CounterVec
	IncidentsResolved prometheus.Counter

	// Enrichment
	EnrichmentCalls    *prometheus.CounterVec
	EnrichmentInFlight prometheus.Gauge

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry:  registry,
		startTime: time.Now(),

		BatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Total reading batches accepted",
		}),
		ReadingsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_total",
			Help:      "Total sensor readings stored",
		}),
		ReadingsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_rejected_total",
			Help:      "Total readings rejected by validation",
		}),

		DetectionRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "runs_total",
			Help:      "Total per-segment detection runs",
		}),
		DetectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "run_duration_seconds",
			Help:      "Per-segment detection latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		VerdictsTriggered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "verdicts_triggered_total",
			Help:      "Total triggered rule verdicts",
		}, []string{"rule"}),

		IncidentsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "created_total",
			Help:      "Total incidents created",
		}, []string{"type"}),
		IncidentsResolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "resolved_total",
			Help:      "Total incidents resolved by operators",
		}),

		EnrichmentCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "calls_total",
			Help:      "Total enrichment outcomes by result",
		}, []string{"outcome"}),
		EnrichmentInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "in_flight",
			Help:      "Enrichment calls currently running",
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		}),
	}
}

// Registry returns the underlying registry for serving.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}
