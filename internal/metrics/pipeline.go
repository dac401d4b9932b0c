package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Ingested documents by outcome",
		},
		[]string{"status"}, // "succeeded"/"failed"
	)

	IngestRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_document_retries_total",
			Help:      "Whole-document retries after producing zero vectors",
		},
	)

	IngestBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_duration_seconds",
			Help:      "Outer ingestion batch duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	IngestDocsPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_docs_per_second",
			Help:      "Ingestion rate of the current run",
		},
	)

	VectorsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vectors_written_total",
			Help:      "Vectors upserted into the vector store",
		},
	)
)

// Query metrics.
var (
	SearchPathDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_path_duration_seconds",
			Help:      "Retrieval path latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"path"},
	)

	SearchPathFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_path_failures_total",
			Help:      "Retrieval path failures and timeouts",
		},
		[]string{"path"},
	)

	SearchResultsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results_returned",
			Help:      "Number of results returned per query",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 50},
		},
	)

	SearchCandidatesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_candidates_dropped_total",
			Help:      "Candidates removed by dedup or validation",
		},
		[]string{"reason"},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Must be called from main.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingFallbackTotal,
			EmbeddingCacheTotal,
			CredentialSelectionsTotal,
			CredentialEventsTotal,
			IngestDocumentsTotal,
			IngestRetriesTotal,
			IngestBatchDuration,
			IngestDocsPerSecond,
			VectorsWrittenTotal,
			SearchPathDuration,
			SearchPathFailuresTotal,
			SearchResultsReturned,
			SearchCandidatesDroppedTotal,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}
