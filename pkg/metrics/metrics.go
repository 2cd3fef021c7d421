// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_analyst_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekaya_analyst_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_analyst_sessions_total",
			Help: "Analysis sessions by outcome (completed, failed, cancelled).",
		},
		[]string{"outcome"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekaya_analyst_stage_duration_seconds",
			Help:    "Latency of each analysis stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_analyst_model_calls_total",
			Help: "Model invocations by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	modelFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ekaya_analyst_model_fallbacks_total",
			Help: "Times generation fell back to the secondary model.",
		},
	)

	rejectedQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_analyst_rejected_queries_total",
			Help: "Generated queries rejected before execution, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		sessionsTotal,
		stageDurationSeconds,
		modelCallsTotal,
		modelFallbacksTotal,
		rejectedQueriesTotal,
	)
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}

func ObserveSession(outcome string) {
	sessionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveModelCall(tier, outcome string) {
	modelCallsTotal.WithLabelValues(tier, outcome).Inc()
}

func IncrementModelFallback() {
	modelFallbacksTotal.Inc()
}

func IncrementRejectedQuery(reason string) {
	rejectedQueriesTotal.WithLabelValues(reason).Inc()
}
