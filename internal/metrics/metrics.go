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
			Name:    "kasichat_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	// SessionsActive tracks live websocket sessions on this process.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kasichat_sessions_active",
			Help: "Number of live websocket sessions",
		},
	)

	// MessagesTotal tracks accepted messages by content type.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kasichat_messages_total",
			Help: "Total messages persisted",
		},
		[]string{"content_type"},
	)

	// PresenceTransitions tracks system-wide online/offline broadcasts emitted by this process.
	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kasichat_presence_transitions_total",
			Help: "Presence transitions published",
		},
		[]string{"status"},
	)

	// DroppedEvents counts sessions closed because their outbound buffer was full.
	DroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kasichat_dropped_events_total",
			Help: "Events dropped for slow consumers",
		},
	)

	// FabricPublishErrors counts failed publishes to the broadcast fabric.
	FabricPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kasichat_fabric_publish_errors_total",
			Help: "Failed broadcast fabric publishes",
		},
		[]string{"subject"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
}

// RecordMessage counts a persisted message.
func RecordMessage(contentType string) {
	MessagesTotal.WithLabelValues(contentType).Inc()
}

// RecordPresence counts a published presence transition.
func RecordPresence(online bool) {
	status := "offline"
	if online {
		status = "online"
	}
	PresenceTransitions.WithLabelValues(status).Inc()
}

// RecordPublishError counts a failed fabric publish. Conversation subjects are collapsed
// to keep label cardinality bounded.
func RecordPublishError(kind string) {
	FabricPublishErrors.WithLabelValues(kind).Inc()
}
