// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the tenantgate pipeline.
package observability

import "github.com/prometheus/client_golang/prometheus"

// VerifyBuckets defines histogram buckets for scheme verification latency.
// Most verifications are in-memory; the tail covers signing-key fetches.
var VerifyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantgate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AuthAttemptsTotal counts scheme verifications by scheme and decision (yes/no/abstain).
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_auth_attempts_total",
			Help: "Scheme verification attempts",
		},
		[]string{"scheme", "decision"},
	)

	// SchemeVerifyDuration records how long each scheme's verifier took.
	SchemeVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantgate_scheme_verify_duration_seconds",
			Help:    "Scheme verification latency",
			Buckets: VerifyBuckets,
		},
		[]string{"scheme"},
	)

	// AuthFailuresTotal counts rejected requests by failure code.
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_auth_failures_total",
			Help: "Requests rejected by authentication or authorization",
		},
		[]string{"code"},
	)

	// CORSDecisionsTotal counts cross-origin decisions.
	CORSDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_cors_decisions_total",
			Help: "Cross-origin request decisions",
		},
		[]string{"outcome", "preflight"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// SessionsIssuedTotal counts cookie sessions established by the sign-in callback.
	SessionsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_sessions_issued_total",
			Help: "Cookie sessions issued",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthAttemptsTotal,
		SchemeVerifyDuration,
		AuthFailuresTotal,
		CORSDecisionsTotal,
		RateLimitRejectedTotal,
		SessionsIssuedTotal,
	)
}
