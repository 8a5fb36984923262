// Package metrics exposes Prometheus collectors for the enhancement ledger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smartnotes-ai/backend/internal/models"
)

const namespace = "smartnotes"

// LedgerMetrics records ledger transitions, version retries and reported processing times.
type LedgerMetrics struct {
	registry *prometheus.Registry

	transitionsTotal  *prometheus.CounterVec
	versionRetries    prometheus.Counter
	processingTimeMS  *prometheus.HistogramVec
	httpRequestsTotal *prometheus.CounterVec
}

// NewLedgerMetrics creates the collectors and registers them on the registry.
// A nil registry gets a fresh one with the process and Go runtime collectors.
func NewLedgerMetrics(registry *prometheus.Registry) (*LedgerMetrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	m := &LedgerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LedgerMetrics) initMetrics() {
	m.transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhancement_transitions_total",
			Help:      "Total number of enhancement ledger operations by outcome",
		},
		[]string{"operation", "outcome"}, // outcome: succeeded, rejected, storage_failed
	)

	m.versionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhancement_version_retries_total",
			Help:      "Total number of version collisions retried while requesting an enhancement",
		},
	)

	m.processingTimeMS = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enhancement_processing_time_milliseconds",
			Help:      "Processing time reported by workers for completed enhancements",
			// 50ms to ~100s
			Buckets: prometheus.ExponentialBuckets(50, 2, 12),
		},
		[]string{"enhancement_type"},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status class",
		},
		[]string{"method", "route", "status"},
	)
}

// Describe implements the Collector interface
func (m *LedgerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.transitionsTotal.Describe(ch)
	m.versionRetries.Describe(ch)
	m.processingTimeMS.Describe(ch)
	m.httpRequestsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *LedgerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.transitionsTotal.Collect(ch)
	m.versionRetries.Collect(ch)
	m.processingTimeMS.Collect(ch)
	m.httpRequestsTotal.Collect(ch)
}

// RecordTransition counts one ledger operation outcome.
func (m *LedgerMetrics) RecordTransition(operation, outcome string) {
	m.transitionsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordVersionRetry counts one version collision.
func (m *LedgerMetrics) RecordVersionRetry() {
	m.versionRetries.Inc()
}

// ObserveProcessingTime records a worker-reported processing time.
func (m *LedgerMetrics) ObserveProcessingTime(enhancementType models.EnhancementType, milliseconds int64) {
	m.processingTimeMS.WithLabelValues(string(enhancementType)).Observe(float64(milliseconds))
}

// RecordHTTPRequest counts one served request. route is the matched route template.
func (m *LedgerMetrics) RecordHTTPRequest(method, route, status string) {
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *LedgerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
