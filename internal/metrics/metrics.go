// Package metrics exposes Prometheus collectors for the HTTP layer and the
// assistant tool dispatcher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors used across the service.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	toolCalls     *prometheus.CounterVec
	aclDecisions  *prometheus.CounterVec
	activeStreams prometheus.Gauge
}

// New registers the Kassandra collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kassandra_http_requests_total",
			Help: "HTTP requests processed, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kassandra_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kassandra_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kassandra_assistant_tool_calls_total",
			Help: "Assistant tool invocations, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		aclDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kassandra_acl_decisions_total",
			Help: "ACL authorization decisions, by result.",
		}, []string{"result"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kassandra_activity_streams_active",
			Help: "Connected activity websocket clients.",
		}),
	}

	reg.MustRegister(m.httpRequests, m.httpDuration, m.httpInFlight,
		m.toolCalls, m.aclDecisions, m.activeStreams)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncrementInFlight marks a request as started.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request as finished.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordToolCall records an assistant tool invocation.
func (m *Metrics) RecordToolCall(tool, outcome string) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordACLDecision records an authorization decision ("allow" or "deny").
func (m *Metrics) RecordACLDecision(result string) {
	m.aclDecisions.WithLabelValues(result).Inc()
}

// StreamConnected tracks a websocket client attach/detach.
func (m *Metrics) StreamConnected(delta int) {
	m.activeStreams.Add(float64(delta))
}
