// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HiringDecisionsTotal tracks accept/reject outcomes per job.
	HiringDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hiring_decisions_total",
			Help: "Total hiring decisions by outcome",
		},
		[]string{"outcome"},
	)

	// AutoRejectedTotal tracks applications auto-rejected when a quota fills.
	AutoRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hiring_auto_rejected_total",
			Help: "Applications auto-rejected by quota cascade",
		},
	)

	// ApplicationsTotal tracks submitted applications.
	ApplicationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "applications_total",
			Help: "Total applications submitted",
		},
	)

	// MessagesTotal tracks messages sent per sender role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"role"},
	)

	// NotificationsTotal tracks system notification delivery outcomes.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total system notifications by outcome",
		},
		[]string{"outcome"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// BrokerPublishTotal tracks broker publish outcomes.
	BrokerPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_publish_total",
			Help: "Total broker publishes by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordDecision records a hiring decision outcome.
func RecordDecision(outcome string) {
	HiringDecisionsTotal.WithLabelValues(outcome).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
