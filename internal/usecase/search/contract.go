package search

import (
	"context"

	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
)

// QueryEmbedder vectorizes the query text.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs a KNN search over one partition's chunk vectors.
type VectorSearcher interface {
	SimilaritySearch(
		ctx context.Context, namespace string, vector []float32,
		topN int, threshold float64, filters filter.Expression,
	) ([]candidate.Hit, error)
}

// KeywordSearcher is the per-partition BM25 index.
type KeywordSearcher interface {
	Search(partition, query string, topK int) []candidate.Hit
	ScoreAgainst(partition, query string, texts []string) []float64
}

// MetadataSearcher scores documents by matched structured predicates.
type MetadataSearcher interface {
	Search(ctx context.Context, p filter.Predicates, partition string, limit int) ([]candidate.Hit, error)
}
