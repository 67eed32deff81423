// Package telemetry holds logger setup and the Prometheus metrics of the sync service.
// Metrics are registered on the default registry and served on /metrics by the API router.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAborted = "aborted"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reposync_http_requests_total",
			Help: "HTTP requests processed, by method, route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reposync_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route pattern.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// IngestionRunsTotal counts pipeline runs by outcome (success, failure, aborted).
	IngestionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reposync_ingestion_runs_total",
			Help: "Repository ingestion runs, by outcome.",
		},
		[]string{"outcome"},
	)

	IngestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reposync_ingestion_duration_seconds",
			Help:    "Wall time of repository ingestion runs.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	IngestionPullRequestsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reposync_ingestion_pull_requests_skipped_total",
			Help: "Pull requests dropped from a snapshot because their bundle could not be fetched.",
		},
	)

	// ContentCacheRequestsTotal counts single-file reads by result (hit, miss).
	ContentCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reposync_content_cache_requests_total",
			Help: "Single-file content reads, by cache result.",
		},
		[]string{"result"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reposync_token_refreshes_total",
			Help: "OAuth access token refresh attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	CredentialDisconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reposync_credential_disconnects_total",
			Help: "GitHub credentials wiped, either on request or after the remote rejected them.",
		},
	)
)
