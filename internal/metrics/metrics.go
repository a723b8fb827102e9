// Package metrics exposes Prometheus instrumentation for retrieval and
// embedding lifecycle operations.
//
// A nil *Metrics is valid and records nothing, so components can take it as
// an optional dependency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Embedding metrics
	EmbeddingOperationsTotal *prometheus.CounterVec
	AvailabilityChecksTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "experience_queries_total",
				Help: "Total number of experience queries",
			},
			[]string{"mode", "degraded"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "experience_query_duration_seconds",
				Help:    "Duration of experience queries in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		EmbeddingOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "experience_embedding_operations_total",
				Help: "Total number of embedding lifecycle operations",
			},
			[]string{"operation", "outcome"},
		),
		AvailabilityChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "experience_provider_availability_checks_total",
				Help: "Total number of embedding provider availability checks",
			},
			[]string{"available"},
		),
	}

	registry.MustRegister(
		m.QueriesTotal,
		m.QueryDuration,
		m.EmbeddingOperationsTotal,
		m.AvailabilityChecksTotal,
	)

	return m
}

// ObserveQuery records a completed query
func (m *Metrics) ObserveQuery(mode string, degraded bool, d time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(mode, strconv.FormatBool(degraded)).Inc()
	m.QueryDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// EmbeddingOperation records the outcome of a lifecycle operation
func (m *Metrics) EmbeddingOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.EmbeddingOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// AvailabilityCheck records a provider readiness check
func (m *Metrics) AvailabilityCheck(available bool) {
	if m == nil {
		return
	}
	m.AvailabilityChecksTotal.WithLabelValues(strconv.FormatBool(available)).Inc()
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
