package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobtrack",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobtrack",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobtrack",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	realtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobtrack",
			Subsystem: "realtime",
			Name:      "open_connections",
			Help:      "Current number of admitted realtime connections.",
		},
	)

	notificationsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobtrack",
			Subsystem: "realtime",
			Name:      "notifications_delivered_total",
			Help:      "Total notification deliveries that reached a connection.",
		},
	)

	notificationsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobtrack",
			Subsystem: "realtime",
			Name:      "notifications_failed_total",
			Help:      "Total notification deliveries that failed and evicted a connection.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		realtimeConnections,
		notificationsDelivered,
		notificationsFailed,
	)
}

// Handler serves the metrics endpoint for the application registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP request.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RequestStarted marks a request in flight; the returned func ends it.
func RequestStarted() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// ConnectionAdmitted records a new realtime connection.
func ConnectionAdmitted() { realtimeConnections.Inc() }

// ConnectionClosed records a removed realtime connection.
func ConnectionClosed() { realtimeConnections.Dec() }

// NotificationDelivered counts one successful delivery.
func NotificationDelivered() { notificationsDelivered.Inc() }

// NotificationFailed counts one failed delivery.
func NotificationFailed() { notificationsFailed.Inc() }
