package domain

import (
	"context"
	"time"
)

// TaskHint tells the provider which side of retrieval a text is on.
type TaskHint string

const (
	// TaskDocument marks corpus passages.
	TaskDocument TaskHint = "document"
	// TaskQuery marks search queries.
	TaskQuery TaskHint = "query"
)

// BatchEmbedder is the embedding service contract: one call embeds texts with the given
// credential. Throttling is reported as *TransientProviderError with RateLimited set.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, apiKey string, texts []string, hint TaskHint) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Credential is a rate-limited provider key and its health counters.
// Only the rotator mutates it; everything else sees copies.
type Credential struct {
	ID                  string
	APIKey              string
	Requests            int64
	Failures            int64
	ConsecutiveFailures int
	CooldownUntil       time.Time
	Disabled            bool
	LastUsed            time.Time
}

// Usable reports whether the credential may serve a request at now.
func (c Credential) Usable(now time.Time) bool {
	return !c.Disabled && !now.Before(c.CooldownUntil)
}
