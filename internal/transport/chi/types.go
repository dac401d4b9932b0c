package chi

import (
	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
)

// ErrorCode is a stable machine-readable error code.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeNotFound               ErrorCode = "not_found"
	CodeVectorDimMismatch      ErrorCode = "vector_dimension_mismatch"
	CodeRateLimited            ErrorCode = "rate_limited"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeAllPathsFailed         ErrorCode = "all_paths_failed"
	CodeTimeout                ErrorCode = "timeout"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// IngestRequest is the body of POST /v1/ingest.
type IngestRequest struct {
	Documents []domain.Document `json:"documents"`
}

// QueryRequest is the body of POST /v1/query. Zero values take the server defaults.
type QueryRequest struct {
	Text                string             `json:"text"`
	PartitionKey        string             `json:"partition_key"`
	TopN                int                `json:"top_n,omitempty"`
	SimilarityThreshold *float64           `json:"similarity_threshold,omitempty"`
	Filters             *filter.Predicates `json:"filters,omitempty"`
	Strict              bool               `json:"strict,omitempty"`
}

// QueryResult is one ranked result.
type QueryResult struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Ordinal    int             `json:"ordinal"`
	Text       string          `json:"text"`
	Metadata   domain.Metadata `json:"metadata"`
	Score      float64         `json:"score"`
	Quality    float64         `json:"quality"`
	Scores     PathScores      `json:"scores"`
	Paths      []string        `json:"paths"`
}

// PathScores are the normalized per-signal sub-scores.
type PathScores struct {
	Semantic float64 `json:"semantic"`
	Reranker float64 `json:"reranker"`
	Keyword  float64 `json:"keyword"`
	Metadata float64 `json:"metadata"`
}

// QueryResponse is the body of a successful POST /v1/query.
type QueryResponse struct {
	Items []QueryResult `json:"items"`
	Total int           `json:"total"`
}

func queryResultFromCandidate(c *candidate.Candidate) QueryResult {
	paths := c.PathNames()
	if paths == nil {
		paths = []string{}
	}
	return QueryResult{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		Ordinal:    c.Ordinal,
		Text:       c.Text,
		Metadata:   c.Metadata,
		Score:      c.Composite,
		Quality:    c.Quality,
		Scores: PathScores{
			Semantic: c.Semantic,
			Reranker: c.Reranker,
			Keyword:  c.Keyword,
			Metadata: c.MetadataScore,
		},
		Paths: paths,
	}
}
