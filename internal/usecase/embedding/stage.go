package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
	"github.com/Aviyadav22/ParalegalAI/internal/retry"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/executor"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/rotator"
)

// Defaults for the embedding stage.
const (
	DefaultBatchSize     = 100
	DefaultConcurrency   = 10
	DefaultMaxAttempts   = 3
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 30 * time.Second
	DefaultFallbackDelay = 100 * time.Millisecond
)

// Rotator is the consumer interface for credential selection (ISP).
type Rotator interface {
	Acquire() rotator.Lease
	ReportSuccess(id string)
	ReportFailure(id string)
	ReportRateLimited(id string, d time.Duration)
}

// Config tunes batching, concurrency and retry.
type Config struct {
	BatchSize     int
	Concurrency   int
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	FallbackDelay time.Duration
	// Provider and Model label log lines.
	Provider string
	Model    string
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.FallbackDelay < 0 {
		c.FallbackDelay = 0
	}
}

// Stage turns chunks into vectors through the rotator, with retry and per-chunk fallback.
type Stage struct {
	embedder domain.BatchEmbedder
	rotator  Rotator
	cfg      Config
	logger   *zap.Logger
}

// NewStage creates an embedding stage.
func NewStage(embedder domain.BatchEmbedder, rot Rotator, cfg Config, logger *zap.Logger) *Stage {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{embedder: embedder, rotator: rot, cfg: cfg, logger: logger}
}

// Embed returns one vector per chunk in input order. Entries are nil for chunks that
// failed permanently; the returned error joins those failures and is informational.
// Cancelling ctx stops sub-batches that have not started; their chunks come back nil.
func (s *Stage) Embed(ctx context.Context, chunks []domain.Chunk) ([]*domain.EmbeddingVector, error) {
	out := make([]*domain.EmbeddingVector, len(chunks))
	if len(chunks) == 0 {
		return out, nil
	}

	var failures []error
	valid := make([]int, 0, len(chunks))
	for i := range chunks {
		if isEmpty(chunks[i]) {
			failures = append(failures, fmt.Errorf("chunk %s/%d: %w",
				chunks[i].DocumentID, chunks[i].Ordinal, domain.NewPermanentInput("empty chunk text")))
			continue
		}
		valid = append(valid, i)
	}

	var units []executor.Unit[[][]float32]
	var batches [][]int
	for start := 0; start < len(valid); start += s.cfg.BatchSize {
		idxs := valid[start:min(start+s.cfg.BatchSize, len(valid))]
		texts := make([]string, len(idxs))
		for j, idx := range idxs {
			texts[j] = chunks[idx].Text
		}
		batches = append(batches, idxs)
		units = append(units, func(ctx context.Context) ([][]float32, error) {
			// Once dispatched, a sub-batch runs to completion even if the caller cancels.
			return s.embedSubBatch(context.WithoutCancel(ctx), texts)
		})
	}

	results := executor.Run(ctx, s.cfg.Concurrency, units)

	for b, res := range results {
		idxs := batches[b]
		if res.Err != nil {
			for _, idx := range idxs {
				failures = append(failures, fmt.Errorf("chunk %s/%d: %w",
					chunks[idx].DocumentID, chunks[idx].Ordinal, res.Err))
			}
			continue
		}
		for j, idx := range idxs {
			vec := res.Value[j]
			if vec == nil {
				failures = append(failures, fmt.Errorf("chunk %s/%d: %w",
					chunks[idx].DocumentID, chunks[idx].Ordinal, domain.ErrEmbeddingProviderError))
				continue
			}
			ch := chunks[idx]
			out[idx] = &domain.EmbeddingVector{
				DocumentID:   ch.DocumentID,
				PartitionKey: ch.PartitionKey,
				Ordinal:      ch.Ordinal,
				Vector:       vec,
				Text:         ch.Text,
				Metadata:     ch.Metadata,
			}
		}
	}

	if len(failures) > 0 {
		metrics.EmbeddingFallbackTotal.WithLabelValues("chunk_failed").Add(float64(len(failures)))
		return out, errors.Join(failures...)
	}
	return out, nil
}

func isEmpty(ch domain.Chunk) bool {
	return strings.TrimSpace(strings.TrimPrefix(ch.Text, ch.Header)) == ""
}

// EmbedQuery embeds a single search query with the query task hint.
func (s *Stage) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, domain.NewPermanentInput("empty query")
	}

	var vec []float32
	err := s.policy().Do(ctx, func(ctx context.Context, _ int) error {
		res, err := s.call(ctx, []string{text}, domain.TaskQuery)
		if err != nil {
			return err
		}
		vec = res[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// embedSubBatch retries the whole sub-batch, then falls back to one call per text.
// The returned slice is aligned with texts; nil entries failed.
func (s *Stage) embedSubBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := s.policy().Do(ctx, func(ctx context.Context, _ int) error {
		res, err := s.call(ctx, texts, domain.TaskDocument)
		if err != nil {
			return err
		}
		vecs = res
		return nil
	})
	if err == nil {
		return vecs, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, domain.ErrVectorDimMismatch) {
		// Every chunk would fail the same way.
		return nil, err
	}

	metrics.EmbeddingFallbackTotal.WithLabelValues("sub_batch").Inc()
	s.logger.Warn("Sub-batch exhausted retries, embedding chunks individually",
		zap.String("provider", s.cfg.Provider),
		zap.String("model", s.cfg.Model),
		zap.Int("batch_size", len(texts)),
		zap.Error(err),
	)
	return s.fallback(ctx, texts)
}

func (s *Stage) fallback(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i > 0 {
			if err := retry.Sleep(ctx, s.cfg.FallbackDelay); err != nil {
				return out, nil
			}
		}
		res, err := s.call(ctx, []string{text}, domain.TaskDocument)
		if err != nil {
			if ctx.Err() != nil {
				return out, nil
			}
			s.logger.Debug("Individual chunk embedding failed", zap.Int("position", i), zap.Error(err))
			continue
		}
		out[i] = res[0]
	}
	return out, nil
}

// call performs one provider request on a freshly acquired credential and reports the
// outcome back to the rotator.
func (s *Stage) call(ctx context.Context, texts []string, hint domain.TaskHint) ([][]float32, error) {
	lease := s.rotator.Acquire()
	if err := lease.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.embedder.EmbedBatch(ctx, lease.APIKey(), texts, hint)
	duration := time.Since(start)

	if err != nil {
		s.report(lease.ID(), err)
		s.logger.Debug("Embedding request failed",
			zap.String("credential", lease.ID()),
			zap.Bool("degraded", lease.Degraded),
			zap.Int("batch_size", len(texts)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		s.rotator.ReportFailure(lease.ID())
		return nil, &domain.TransientProviderError{
			Err: fmt.Errorf("expected %d embeddings, got %d: %w",
				len(texts), len(res.Embeddings), domain.ErrEmbeddingProviderError),
		}
	}

	s.rotator.ReportSuccess(lease.ID())
	s.logger.Debug("Embedding request completed",
		zap.String("credential", lease.ID()),
		zap.Int("batch_size", len(texts)),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res.Embeddings, nil
}

func (s *Stage) report(id string, err error) {
	var transient *domain.TransientProviderError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller gave up; the credential did nothing wrong.
	case errors.As(err, &transient) && transient.RateLimited:
		s.rotator.ReportRateLimited(id, transient.RetryAfter)
	case errors.Is(err, domain.ErrPermanentInput), errors.Is(err, domain.ErrVectorDimMismatch):
		// Rejected content or a misconfigured model says nothing about the credential.
	default:
		s.rotator.ReportFailure(id)
	}
}

func (s *Stage) policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: s.cfg.MaxAttempts,
		BaseDelay:   s.cfg.BaseDelay,
		MaxDelay:    s.cfg.MaxDelay,
		Retryable:   domain.IsRetryable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			s.logger.Debug("Retrying embedding request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}
}
