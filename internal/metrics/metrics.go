// Package metrics wires a minimal Prometheus registry at the Orchestrator/
// frontend layer. Request/session counts are an operational signal a proxy
// necessarily exposes even though full distributed tracing is out of scope.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors. The HTTP frontend records
// RequestsTotal and RequestDuration; ActiveSessions, IntrospectionDuration
// and BackendConnectErrors are registered but not updated by this module.
type Metrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
	ActiveSessions        prometheus.Gauge
	IntrospectionDuration prometheus.Histogram
	BackendConnectErrors  *prometheus.CounterVec
}

// New creates and registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpbridge",
				Name:      "requests_total",
				Help:      "Total number of client-originated MCP requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpbridge",
				Name:      "request_duration_seconds",
				Help:      "Client request to backend response latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpbridge",
				Name:      "active_sessions",
				Help:      "Number of currently open client sessions",
			},
		),
		IntrospectionDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mcpbridge",
				Name:      "introspection_duration_seconds",
				Help:      "Wall-clock duration of run_inspect against a backend",
				Buckets:   prometheus.DefBuckets,
			},
		),
		BackendConnectErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpbridge",
				Name:      "backend_connect_errors_total",
				Help:      "Total backend connection failures by transport kind",
			},
			[]string{"kind"},
		),
	}
}
