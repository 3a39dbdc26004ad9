// Package metrics holds the Prometheus collectors for upstream provider
// calls and chat store operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess     = "success"
	OutcomeUpstream    = "upstream_error"
	OutcomeParse       = "parse_error"
	OutcomeTransport   = "transport_error"
	OutcomeUnavailable = "unavailable"
	OutcomeInvalid     = "invalid"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	StoreOperations  *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatproxy_upstream_requests_total",
			Help: "Upstream provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatproxy_upstream_request_duration_seconds",
			Help:    "Latency of upstream provider calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatproxy_store_operations_total",
			Help: "Chat store operations by operation and outcome.",
		}, []string{"op", "outcome"}),
	}

	m.registry.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.StoreOperations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveUpstream records one provider call.
func (m *Metrics) ObserveUpstream(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(provider, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveStore records one store operation.
func (m *Metrics) ObserveStore(op, outcome string) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(op, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
