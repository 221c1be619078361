// Package observability provides Prometheus metrics hooks for the proxy.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusHooks implements the upstream call and publish observation
// interfaces on Prometheus collectors registered with the default registry.
type PrometheusHooks struct {
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	publishes       *prometheus.CounterVec
}

// NewPrometheusHooks creates and registers the proxy's metrics.
// Must be called at most once per process (promauto panics on
// duplicate registration).
func NewPrometheusHooks() *PrometheusHooks {
	return &PrometheusHooks{
		upstreamCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ghproxy_upstream_requests_total",
			Help: "Upstream API calls by method, resource template and status code.",
		}, []string{"method", "resource", "status"}),
		upstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ghproxy_upstream_request_duration_seconds",
			Help:    "Upstream API call latency by method and resource template.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "resource"}),
		publishes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ghproxy_audit_publishes_total",
			Help: "Audit log publish attempts by outcome (published, unchanged, error).",
		}, []string{"outcome"}),
	}
}

// ObserveUpstreamCall implements upstream.Hooks. A zero status code means
// the call failed before a response arrived; it is recorded as "transport".
func (h *PrometheusHooks) ObserveUpstreamCall(method, resource string, statusCode int, duration time.Duration) {
	status := "transport"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	h.upstreamCalls.WithLabelValues(method, resource, status).Inc()
	h.upstreamLatency.WithLabelValues(method, resource).Observe(duration.Seconds())
}

// ObservePublish implements auditlog.PublishHooks.
func (h *PrometheusHooks) ObservePublish(outcome string) {
	h.publishes.WithLabelValues(outcome).Inc()
}
