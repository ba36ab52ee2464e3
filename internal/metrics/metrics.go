// Package metrics provides Prometheus instrumentation for the wager engine.
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
	// WagersTotal counts placed wagers, partitioned by side.
	WagersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udog_wagers_total",
		Help: "Total number of wagers placed",
	}, []string{"side"})

	// WagerRejections counts rejected wagers by reason.
	WagerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udog_wager_rejections_total",
		Help: "Wagers rejected before placement",
	}, []string{"reason"})

	// WagerLatency tracks end-to-end placement latency.
	WagerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "udog_wager_latency_seconds",
		Help:    "Wager placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "udog_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "udog_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udog_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "udog_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// AlertsTriggered counts price alerts that fired.
	AlertsTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udog_alerts_triggered_total",
		Help: "Price alerts that fired",
	})

	// PriceRefreshes counts market-data poll cycles by outcome.
	PriceRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udog_price_refreshes_total",
		Help: "Market-data poll cycles",
	}, []string{"outcome"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
