// Package metrics provides Prometheus instrumentation for the exchange.
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
	// TradesTotal counts executions, partitioned by venue kind and side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amx_trades_total",
		Help: "Total number of executions",
	}, []string{"kind", "side"})

	// TradeLatency is a histogram of purchase-request handling latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amx_trade_latency_seconds",
		Help:    "Purchase request handling latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amx_active_markets",
		Help: "Number of currently open markets",
	})

	// ActiveAuctions tracks the number of open auctions.
	ActiveAuctions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amx_active_auctions",
		Help: "Number of currently open auctions",
	})

	// ConnectedAgents tracks registered agents with a live session.
	ConnectedAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amx_connected_agents",
		Help: "Number of connected agent sessions",
	})

	// BidsTotal counts bids by outcome (accepted / rejected).
	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amx_bids_total",
		Help: "Total auction bids received",
	}, []string{"outcome"})

	// TradesRejectedTotal counts negotiated trades that failed settlement,
	// partitioned by reason.
	TradesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amx_trades_rejected_total",
		Help: "Negotiated trades rejected before settlement",
	}, []string{"reason"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// ExposureLimitRejections counts trades rejected by the exposure limiter.
	ExposureLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amx_exposure_limit_rejections_total",
		Help: "Trades rejected by exposure limiter",
	})

	// MarketVolume tracks cumulative trade volume (quantity) per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amx_market_volume_total",
		Help: "Cumulative trade volume in shares",
	}, []string{"market_id", "side"})
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
