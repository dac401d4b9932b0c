// Package search fuses semantic, keyword and metadata retrieval into one ranked,
// de-duplicated and validated result list.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/executor"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/metasearch"
)

// Reranker modes.
const (
	RerankerBM25 = "bm25"
	RerankerNone = "none"
)

// Weights are the composite score weights of each signal.
type Weights struct {
	Semantic float64
	Reranker float64
	Keyword  float64
	Metadata float64
}

// DefaultWeights is 0.4 semantic, 0.3 reranker, 0.2 keyword, 0.1 metadata.
var DefaultWeights = Weights{Semantic: 0.4, Reranker: 0.3, Keyword: 0.2, Metadata: 0.1}

// Config tunes the engine. Zero values take the defaults.
type Config struct {
	TopN                int
	SimilarityThreshold float64
	PathTimeout         time.Duration
	Reranker            string
	Weights             Weights
	MinTextLength       int
	QualityThreshold    float64
	// PoolFactor sizes every path's candidate pool as TopN*PoolFactor.
	PoolFactor int
}

func (c *Config) applyDefaults() {
	if c.TopN <= 0 {
		c.TopN = 10
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.25
	}
	if c.PathTimeout <= 0 {
		c.PathTimeout = 5 * time.Second
	}
	if c.Reranker == "" {
		c.Reranker = RerankerBM25
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = 10
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = 0.3
	}
	if c.PoolFactor <= 0 {
		c.PoolFactor = 3
	}
}

// Options are per-query overrides. Zero values fall back to Config.
type Options struct {
	TopN int
	// SimilarityThreshold, when set, replaces Config.SimilarityThreshold; 0 disables the cutoff.
	SimilarityThreshold *float64
	// Filters, when set, replace predicates extracted from the query text and also
	// pre-filter the vector path.
	Filters *filter.Predicates
	// Strict turns "every path failed" into ErrAllPathsFailed instead of an empty result.
	Strict bool
}

// Service is the hybrid fusion engine.
type Service struct {
	embedder QueryEmbedder
	vectors  VectorSearcher
	keyword  KeywordSearcher
	meta     MetadataSearcher
	cfg      Config
	logger   *zap.Logger
}

// New creates a search service.
func New(
	embedder QueryEmbedder, vectors VectorSearcher, keyword KeywordSearcher,
	meta MetadataSearcher, cfg Config, logger *zap.Logger,
) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder, vectors: vectors, keyword: keyword, meta: meta,
		cfg: cfg, logger: logger,
	}
}

// Query runs the three retrieval paths concurrently and fuses their results.
// A failing or timed-out path contributes nothing.
func (s *Service) Query(ctx context.Context, text, partition string, opts Options) ([]candidate.Candidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: query text is required", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePartitionKey(partition); err != nil {
		return nil, err
	}
	if opts.TopN <= 0 {
		opts.TopN = s.cfg.TopN
	}
	threshold := s.cfg.SimilarityThreshold
	if opts.SimilarityThreshold != nil {
		threshold = *opts.SimilarityThreshold
	}

	preds := metasearch.ExtractFilters(text)
	var prefilter filter.Expression
	if opts.Filters != nil {
		preds = opts.Filters.Normalize()
		expr, err := preds.Expression()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		prefilter = expr
	}

	pool := opts.TopN * s.cfg.PoolFactor
	results := s.runPaths(ctx, []path{
		{candidate.PathSemantic, func(ctx context.Context) ([]candidate.Hit, error) {
			vec, err := s.embedder.EmbedQuery(ctx, text)
			if err != nil {
				return nil, err
			}
			return s.vectors.SimilaritySearch(ctx, partition, vec, pool, threshold, prefilter)
		}},
		{candidate.PathKeyword, func(context.Context) ([]candidate.Hit, error) {
			return s.keyword.Search(partition, text, pool), nil
		}},
		{candidate.PathMetadata, func(ctx context.Context) ([]candidate.Hit, error) {
			return s.meta.Search(ctx, preds, partition, pool)
		}},
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed == len(results) {
		if opts.Strict {
			return nil, domain.ErrAllPathsFailed
		}
		return []candidate.Candidate{}, nil
	}

	cands := merge(results[0].Value, results[1].Value, results[2].Value)
	reranked := s.rerank(partition, text, cands)
	w := effectiveWeights(s.cfg.Weights, reranked)
	for i := range cands {
		cands[i].Composite = composite(&cands[i], w)
	}
	sortCandidates(cands)

	kept, dupes := Deduplicate(cands)
	for _, d := range dupes {
		s.logger.Debug("Dropped near-duplicate candidate",
			zap.String("id", d.ID), zap.Float64("score", d.Composite))
	}
	metrics.SearchCandidatesDroppedTotal.WithLabelValues(dropDuplicate).Add(float64(len(dupes)))

	out := s.validate(kept)
	if len(out) > opts.TopN {
		out = out[:opts.TopN]
	}
	metrics.SearchResultsReturned.Observe(float64(len(out)))
	return out, nil
}

type path struct {
	kind candidate.Path
	run  func(ctx context.Context) ([]candidate.Hit, error)
}

type pathOutcome struct {
	hits []candidate.Hit
	err  error
}

// runPaths runs every path under its own timeout. A path that ignores its context is
// abandoned at the deadline.
func (s *Service) runPaths(ctx context.Context, paths []path) []executor.Result[[]candidate.Hit] {
	units := make([]executor.Unit[[]candidate.Hit], len(paths))
	for i, p := range paths {
		units[i] = func(ctx context.Context) ([]candidate.Hit, error) {
			ctx, cancel := context.WithTimeout(ctx, s.cfg.PathTimeout)
			defer cancel()
			start := time.Now()

			done := make(chan pathOutcome, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- pathOutcome{err: fmt.Errorf("%s path panicked: %v", p.kind, r)}
					}
				}()
				hits, err := p.run(ctx)
				done <- pathOutcome{hits: hits, err: err}
			}()

			var out pathOutcome
			select {
			case out = <-done:
			case <-ctx.Done():
				out.err = ctx.Err()
			}

			metrics.SearchPathDuration.WithLabelValues(p.kind.String()).Observe(time.Since(start).Seconds())
			if out.err != nil {
				metrics.SearchPathFailuresTotal.WithLabelValues(p.kind.String()).Inc()
				s.logger.Warn("Retrieval path failed",
					zap.String("path", p.kind.String()), zap.Error(out.err))
				return nil, out.err
			}
			return out.hits, nil
		}
	}
	return executor.Run(ctx, len(units), units)
}

// rerank rescores candidate texts with BM25 against the partition's statistics.
// It reports whether the reranker signal is active.
func (s *Service) rerank(partition, query string, cands []candidate.Candidate) bool {
	if s.cfg.Reranker != RerankerBM25 {
		return false
	}
	if len(cands) == 0 {
		return true
	}
	texts := make([]string, len(cands))
	for i := range cands {
		texts[i] = cands[i].Text
	}
	scores := normalize(s.keyword.ScoreAgainst(partition, query, texts))
	for i, sc := range scores {
		cands[i].Reranker = sc
		if sc > 0 {
			cands[i].Paths |= candidate.PathReranker
		}
	}
	return true
}
