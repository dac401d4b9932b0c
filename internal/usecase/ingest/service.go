// Package ingest drives documents through chunking, embedding and persistence in
// bounded outer batches with partial-success accounting.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
	"github.com/Aviyadav22/ParalegalAI/internal/retry"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/executor"
)

// Defaults for Config.
const (
	DefaultBatchSize           = 100
	DefaultDocumentConcurrency = 8
	DefaultRetryAttempts       = 3
	DefaultRetryBaseDelay      = 500 * time.Millisecond
)

// Config tunes the orchestrator. Zero values take the defaults.
type Config struct {
	BatchSize           int
	DocumentConcurrency int
	RetryAttempts       int
	RetryBaseDelay      time.Duration

	// OnProgress, when set, receives a snapshot after every batch.
	OnProgress func(Progress)
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.DocumentConcurrency <= 0 {
		c.DocumentConcurrency = DefaultDocumentConcurrency
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	} else if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
}

// Service is the ingestion orchestrator.
type Service struct {
	chunker  Chunker
	embedder Embedder
	vectors  VectorWriter
	meta     MetadataStore
	keyword  KeywordIndexer
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an ingestion service.
func New(
	chunker Chunker, embedder Embedder, vectors VectorWriter,
	meta MetadataStore, keyword KeywordIndexer, cfg Config, logger *zap.Logger,
) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		chunker: chunker, embedder: embedder, vectors: vectors,
		meta: meta, keyword: keyword, cfg: cfg, logger: logger, now: time.Now,
	}
}

// Ingest processes docs in outer batches and reports which succeeded and which failed.
// Every submitted document ends up in exactly one of the two lists, including on
// cancellation: documents whose processing never started fail with the context error.
func (s *Service) Ingest(ctx context.Context, docs []domain.Document) domain.IngestReport {
	report := domain.IngestReport{Succeeded: []string{}, Failed: []string{}, Errors: []string{}}
	if len(docs) == 0 {
		return report
	}

	errClasses := make(map[string]struct{})
	fail := func(doc domain.Document, err error) {
		report.Failed = append(report.Failed, doc.ID)
		class := errorClass(err)
		if _, seen := errClasses[class]; !seen {
			errClasses[class] = struct{}{}
			report.Errors = append(report.Errors, class)
		}
		s.logger.Warn("Document ingestion failed",
			zap.String("document_id", doc.ID),
			zap.String("partition", doc.PartitionKey),
			zap.String("class", class),
			zap.Error(err))
	}

	touched := make(map[string]struct{})
	tracker := newProgressTracker(s.logger, len(docs), s.now)

	for start := 0; start < len(docs); start += s.cfg.BatchSize {
		batch := docs[start:min(start+s.cfg.BatchSize, len(docs))]
		batchStart := s.now()
		report.Batches++

		units := make([]executor.Unit[int], len(batch))
		for i := range batch {
			doc := batch[i]
			units[i] = func(ctx context.Context) (int, error) {
				return s.processDocument(ctx, doc)
			}
		}
		results := executor.Run(ctx, s.cfg.DocumentConcurrency, units)

		var embedded []domain.Document
		failedBefore := len(report.Failed)
		for i, res := range results {
			if res.Err != nil {
				fail(batch[i], res.Err)
				continue
			}
			embedded = append(embedded, batch[i])
		}

		// Vectors of these documents are already written; their rows follow even if the
		// caller has gone away.
		for _, doc := range s.persistMetadata(context.WithoutCancel(ctx), embedded, fail) {
			report.Succeeded = append(report.Succeeded, doc.ID)
			touched[doc.PartitionKey] = struct{}{}
		}

		failed := len(report.Failed) - failedBefore
		progress := tracker.batchDone(len(batch)-failed, failed, batchStart)
		if s.cfg.OnProgress != nil {
			s.cfg.OnProgress(progress)
		}
	}

	partitions := make([]string, 0, len(touched))
	for p := range touched {
		partitions = append(partitions, p)
	}
	slices.Sort(partitions)
	if err := s.Reindex(context.WithoutCancel(ctx), partitions...); err != nil {
		s.logger.Error("Keyword index rebuild failed", zap.Error(err))
	}
	return report
}

// processDocument validates, chunks, embeds and writes one document. A run that yields
// zero vectors is retried as a whole. Returns the number of vectors written.
func (s *Service) processDocument(ctx context.Context, doc domain.Document) (int, error) {
	if err := doc.Validate(); err != nil {
		return 0, err
	}
	chunks := s.chunker.Split(doc)
	if len(chunks) == 0 {
		return 0, domain.NewPermanentInput("document %s produced no chunks", doc.ID)
	}

	policy := retry.Policy{
		MaxAttempts: s.cfg.RetryAttempts,
		BaseDelay:   s.cfg.RetryBaseDelay,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			metrics.IngestRetriesTotal.Inc()
			s.logger.Debug("Retrying document",
				zap.String("document_id", doc.ID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	}

	var written int
	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		n, err := s.embedAndStore(ctx, doc, chunks)
		written = n
		return err
	})
	return written, err
}

func (s *Service) embedAndStore(ctx context.Context, doc domain.Document, chunks []domain.Chunk) (int, error) {
	vecs, embErr := s.embedder.Embed(ctx, chunks)

	vectors := make([]domain.EmbeddingVector, 0, len(vecs))
	for _, v := range vecs {
		if v != nil {
			vectors = append(vectors, *v)
		}
	}
	if len(vectors) == 0 {
		if embErr == nil {
			embErr = domain.ErrEmbeddingProviderError
		}
		err := fmt.Errorf("document %s produced no vectors: %w", doc.ID, embErr)
		if errors.Is(embErr, domain.ErrPermanentInput) && !errors.Is(embErr, domain.ErrEmbeddingProviderError) {
			return 0, retry.Permanent(err)
		}
		return 0, err
	}
	if embErr != nil {
		s.logger.Debug("Document partially embedded",
			zap.String("document_id", doc.ID),
			zap.Int("vectors", len(vectors)),
			zap.Int("chunks", len(chunks)),
			zap.Error(embErr))
	}

	ids, err := s.vectors.Upsert(ctx, doc.PartitionKey, vectors)
	if err != nil {
		if errors.Is(err, domain.ErrVectorDimMismatch) {
			return 0, retry.Permanent(err)
		}
		return 0, err
	}
	if err := s.vectors.Prune(context.WithoutCancel(ctx), doc.PartitionKey, doc.ID, ids); err != nil {
		s.logger.Warn("Stale vector cleanup failed",
			zap.String("document_id", doc.ID), zap.Error(err))
	}
	return len(ids), nil
}

// persistMetadata bulk-writes the rows of embedded documents, falling back to per-document
// writes when the bulk write fails. Returns the documents whose row was written.
func (s *Service) persistMetadata(
	ctx context.Context, docs []domain.Document, fail func(domain.Document, error),
) []domain.Document {
	if len(docs) == 0 {
		return nil
	}
	err := s.meta.BulkUpsert(ctx, docs)
	if err == nil {
		return docs
	}

	s.logger.Warn("Bulk metadata write failed, writing documents individually",
		zap.Int("documents", len(docs)), zap.Error(err))
	ok := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if err := s.meta.Upsert(ctx, doc); err != nil {
			fail(doc, err)
			continue
		}
		ok = append(ok, doc)
	}
	return ok
}

// Delete removes a document's vectors, linkage and row, then rebuilds the partition's
// keyword index.
func (s *Service) Delete(ctx context.Context, partition, documentID string) error {
	if err := domain.ValidatePartitionKey(partition); err != nil {
		return err
	}
	if err := s.vectors.Delete(ctx, partition, documentID); err != nil {
		return fmt.Errorf("delete vectors of %s: %w", documentID, err)
	}
	if err := s.meta.Delete(ctx, partition, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return s.Reindex(ctx, partition)
}

// Reindex rebuilds the keyword index of each partition from the metadata store.
func (s *Service) Reindex(ctx context.Context, partitions ...string) error {
	var errs []error
	for _, p := range partitions {
		docs, err := s.meta.ListByPartition(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("list partition %s: %w", p, err))
			continue
		}
		s.keyword.Rebuild(p, docs)
		s.logger.Debug("Keyword index rebuilt",
			zap.String("partition", p), zap.Int("documents", len(docs)))
	}
	return errors.Join(errs...)
}

// errorClass maps a failure to the stable label recorded in IngestReport.Errors.
func errorClass(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, domain.ErrVectorDimMismatch):
		return "dimension_mismatch"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrEmbeddingProviderError), errors.Is(err, domain.ErrTransientProvider):
		return "embedding_failed"
	case errors.Is(err, domain.ErrPermanentInput):
		return "permanent_input"
	default:
		return "internal"
	}
}
