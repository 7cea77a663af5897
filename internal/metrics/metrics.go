package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Push stream
	PushConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_push_connected",
			Help: "1 while the dashboard push stream is connected",
		},
	)

	PushReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_push_reconnects_total",
			Help: "Reconnect attempts scheduled after a non-auth close",
		},
	)

	PushMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_push_messages_total",
			Help: "Push messages received, by kind (new_sale, other, invalid)",
		},
		[]string{"kind"},
	)

	// Dashboard refresh
	Refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_dashboard_refreshes_total",
			Help: "Dashboard re-fetches by outcome",
		},
		[]string{"outcome"}, // "success", "error", "stale", "no_credential"
	)

	// Backend REST client
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_backend_request_duration_seconds",
			Help:    "Duration of backend REST requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_backend_circuit_breaker_state",
			Help: "Backend circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// RecordRequest observes one backend call. status 0 means a transport error.
func RecordRequest(endpoint string, status int, started time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	BackendRequestDuration.WithLabelValues(endpoint, label).Observe(time.Since(started).Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
