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

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// EventsNormalizedTotal tracks envelopes produced by the normalizer.
	EventsNormalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_normalized_total",
			Help: "Total webhook events normalized into envelopes",
		},
		[]string{"type"},
	)

	// EventsDroppedTotal tracks webhook deliveries that produced no envelope.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total webhook events dropped without broadcast",
		},
		[]string{"reason"},
	)

	// BroadcastsTotal tracks envelopes dispatched by the router.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total envelopes dispatched to the broadcast router",
		},
		[]string{"type"},
	)

	// BroadcastDeliveriesTotal tracks per-connection envelope deliveries.
	BroadcastDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Total envelope deliveries to individual connections",
		},
	)

	// PushFailuresTotal tracks pushes that failed and detached a connection.
	PushFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_failures_total",
			Help: "Total push failures causing connection detach",
		},
	)

	// EventLogSize tracks the number of entries retained in the event log.
	EventLogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_log_entries",
			Help: "Entries currently retained in the rolling event log",
		},
	)

	// NotificationsTotal tracks notification-creation calls by outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total notification-creation calls",
		},
		[]string{"status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

// RecordNormalized records a normalized envelope by type.
func RecordNormalized(eventType string) {
	EventsNormalizedTotal.WithLabelValues(eventType).Inc()
}

// RecordDropped records a webhook delivery dropped without broadcast.
func RecordDropped(reason string) {
	EventsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordBroadcast records one routed envelope and its delivery count.
func RecordBroadcast(eventType string, deliveries int) {
	BroadcastsTotal.WithLabelValues(eventType).Inc()
	BroadcastDeliveriesTotal.Add(float64(deliveries))
}

// RecordPushFailure records a push failure that detached a connection.
func RecordPushFailure() {
	PushFailuresTotal.Inc()
}

// SetEventLogSize records the current event log occupancy.
func SetEventLogSize(n int) {
	EventLogSize.Set(float64(n))
}

// RecordNotification records a notification-creation attempt outcome.
func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}
