package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "paralegal"

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding provider calls",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors",
		},
		[]string{"provider", "model", "error_type"},
	)

	// EmbeddingFallbackTotal counts sub-batches that exhausted retries and fell back
	// to per-chunk embedding, and chunks that failed permanently.
	EmbeddingFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallback_total",
			Help:      "Embedding sub-batch fallbacks and permanent chunk failures",
		},
		[]string{"event"}, // "sub_batch" / "chunk_failed"
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Query embedding cache hits and misses",
		},
		[]string{"tier", "result"}, // tier: "local"/"shared"; result: "hit"/"miss"
	)
)

// Credential rotator metrics.
var (
	CredentialSelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_selections_total",
			Help:      "Credential acquisitions by credential and mode",
		},
		[]string{"credential", "mode"}, // mode: "normal"/"degraded"
	)

	CredentialEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_events_total",
			Help:      "Credential outcome reports",
		},
		[]string{"credential", "event"}, // "success"/"failure"/"rate_limited"/"disabled"
	)
)
