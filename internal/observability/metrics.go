package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Anti-forgery metrics
	CSRFTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csrf_tokens_issued_total",
			Help: "Total number of masked anti-forgery tokens minted",
		},
	)

	CSRFSecretsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csrf_secrets_generated_total",
			Help: "Total number of anti-forgery secrets created (first visit, corruption recovery, or regeneration)",
		},
	)

	CSRFValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_validations_total",
			Help: "Total number of anti-forgery validations by outcome",
		},
		[]string{"outcome"}, // accepted, rejected, skipped
	)

	CSRFFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_failures_total",
			Help: "Total number of rejected requests by failure reason",
		},
		[]string{"reason"}, // missing_token, invalid_token
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
