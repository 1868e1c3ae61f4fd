// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the authgate chain.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LatencyBuckets defines histogram buckets for request latencies,
// ranging from 1ms to 10s.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LatencyBuckets,
		},
		[]string{"method"},
	)

	// InFlightRequests tracks the number of requests being processed.
	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authgate_requests_in_flight",
			Help: "Requests in flight",
		},
	)

	// ShortCircuitTotal counts responses produced by a link's inbound hook.
	ShortCircuitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_chain_short_circuit_total",
			Help: "Requests answered by an auth link",
		},
		[]string{"scheme", "status"},
	)

	// SSLDeclinedTotal counts authentication skipped because a link
	// requires HTTPS and the request was plain HTTP.
	SSLDeclinedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_ssl_declined_total",
			Help: "Authentication declined by SSL policy",
		},
		[]string{"scheme"},
	)

	// AuthenticatedTotal counts callers authenticated, by scheme.
	AuthenticatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_authenticated_total",
			Help: "Authenticated callers",
		},
		[]string{"scheme"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// AntiForgeryRejectedTotal counts requests rejected for a missing or
	// mismatched anti-forgery token.
	AntiForgeryRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_antiforgery_rejected_total",
			Help: "Anti-forgery rejections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		InFlightRequests,
		ShortCircuitTotal,
		SSLDeclinedTotal,
		AuthenticatedTotal,
		RateLimitRejectedTotal,
		AntiForgeryRejectedTotal,
	)
}
