package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors exported by the service on /metrics
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_http_requests_total",
		Help: "HTTP requests by route template, method and status",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_http_request_duration_seconds",
		Help:    "HTTP request latency by route template",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_active_connections",
		Help: "Open frame server connections",
	})

	BoundSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_bound_sessions",
		Help: "Connections with an authenticated identity",
	})

	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_frames_received_total",
		Help: "Inbound frames by command",
	}, []string{"command"})

	FramesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_frames_rejected_total",
		Help: "Inbound frames answered with an error, by error kind",
	}, []string{"kind"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages persisted and broadcast",
	})

	SlowConsumers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_slow_consumers_total",
		Help: "Connections closed because their outbound buffer was full",
	})

	NotificationsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_notifications_dispatched_total",
		Help: "Notification events handed to the sinks",
	})

	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_notifications_dropped_total",
		Help: "Notification events dropped because the queue was full",
	})

	NotificationSinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_notification_sink_errors_total",
		Help: "Notification sink failures by sink",
	}, []string{"sink"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_send_rate_limited_total",
		Help: "SEND frames rejected by the per-user rate limit",
	})
)

// MetricsHandler serves the default registry for scraping
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
