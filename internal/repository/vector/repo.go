// Package vector persists embedding vectors in the Redis FT index and keeps the
// Document→Vector linkage in the structured store.
package vector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/db"
	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
)

// DefaultWriteBatch is the number of vectors written per pipelined round-trip.
const DefaultWriteBatch = 2000

// store is the consumer interface for the vector store (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// linker is the durable Document→Vector-id index.
type linker interface {
	AddLinks(ctx context.Context, namespace, documentID string, vectorIDs []string) error
	Links(ctx context.Context, namespace, documentID string) ([]string, error)
	DeleteLinks(ctx context.Context, namespace, documentID string) error
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Config configures the adapter.
type Config struct {
	KeyPrefix  string
	WriteBatch int
	HNSW       HNSWConfig
}

// Repo is the vector persistence adapter.
type Repo struct {
	store  store
	links  linker
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	ensured map[string]int // namespace -> dimension
}

// New creates a vector repository.
func New(s store, l linker, cfg Config, logger *zap.Logger) *Repo {
	if cfg.WriteBatch <= 0 {
		cfg.WriteBatch = DefaultWriteBatch
	}
	if cfg.HNSW.M <= 0 {
		cfg.HNSW.M = 32
	}
	if cfg.HNSW.EFConstruct <= 0 {
		cfg.HNSW.EFConstruct = 400
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, links: l, cfg: cfg, logger: logger, ensured: make(map[string]int)}
}

// Upsert writes vectors into namespace and links them to their documents.
// Vectors without an ID get the deterministic ID of their chunk; the caller's slice is
// left untouched. Returns the ids written, in input order. Once started, writes run to
// completion even if ctx is cancelled.
func (r *Repo) Upsert(ctx context.Context, namespace string, vectors []domain.EmbeddingVector) ([]string, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	dim := len(vectors[0].Vector)
	for i := range vectors {
		if len(vectors[i].Vector) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d: %w",
				i, len(vectors[i].Vector), dim, domain.ErrVectorDimMismatch)
		}
	}

	if err := r.EnsureCollection(ctx, namespace, dim); err != nil {
		return nil, &domain.PersistenceError{Namespace: namespace, Err: err}
	}

	vectors = slices.Clone(vectors)
	ids := make([]string, len(vectors))
	items := make([]db.HashSetItem, len(vectors))
	for i := range vectors {
		v := &vectors[i]
		if v.ID == "" {
			v.ID = ID(v.PartitionKey, v.DocumentID, v.Ordinal)
		}
		ids[i] = v.ID
		items[i] = db.HashSetItem{Key: r.vectorKey(namespace, v.ID), Fields: vectorToHash(v)}
	}

	for start := 0; start < len(items); start += r.cfg.WriteBatch {
		batch := items[start:min(start+r.cfg.WriteBatch, len(items))]
		if err := r.writeBatch(ctx, namespace, batch); err != nil {
			return nil, err
		}
		metrics.VectorsWrittenTotal.Add(float64(len(batch)))
	}

	byDoc, order := groupByDocument(vectors)
	for _, docID := range order {
		if err := r.links.AddLinks(ctx, namespace, docID, byDoc[docID]); err != nil {
			return nil, &domain.PersistenceError{Namespace: namespace, Err: err}
		}
	}
	return ids, nil
}

// writeBatch writes one sub-batch; on failure it retries once as two halves.
func (r *Repo) writeBatch(ctx context.Context, namespace string, batch []db.HashSetItem) error {
	err := r.store.HSetMulti(ctx, batch)
	if err == nil {
		return nil
	}

	r.logger.Warn("Vector write failed, retrying with halved batches",
		zap.String("namespace", namespace),
		zap.Int("batch", len(batch)),
		zap.Error(err))

	half := max(1, len(batch)/2)
	for start := 0; start < len(batch); start += half {
		part := batch[start:min(start+half, len(batch))]
		if err := r.store.HSetMulti(ctx, part); err != nil {
			return &domain.PersistenceError{Namespace: namespace, Err: err}
		}
	}
	return nil
}

func groupByDocument(vectors []domain.EmbeddingVector) (map[string][]string, []string) {
	byDoc := make(map[string][]string)
	var order []string
	for i := range vectors {
		docID := vectors[i].DocumentID
		if _, ok := byDoc[docID]; !ok {
			order = append(order, docID)
		}
		byDoc[docID] = append(byDoc[docID], vectors[i].ID)
	}
	return byDoc, order
}

// Delete removes every vector linked to documentID and the links themselves.
// A document without links is a no-op.
func (r *Repo) Delete(ctx context.Context, namespace, documentID string) error {
	ids, err := r.links.Links(ctx, namespace, documentID)
	if err != nil {
		return fmt.Errorf("read links %s/%s: %w", namespace, documentID, err)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := r.store.Del(ctx, r.keys(namespace, ids)...); err != nil {
		return &domain.PersistenceError{Namespace: namespace, Err: err}
	}
	if err := r.links.DeleteLinks(ctx, namespace, documentID); err != nil {
		return err
	}
	return nil
}

// Prune removes vectors linked to documentID that are not in keep, e.g. trailing chunks
// left over after a document was re-ingested with fewer chunks.
func (r *Repo) Prune(ctx context.Context, namespace, documentID string, keep []string) error {
	ids, err := r.links.Links(ctx, namespace, documentID)
	if err != nil {
		return fmt.Errorf("read links %s/%s: %w", namespace, documentID, err)
	}

	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var stale []string
	for _, id := range ids {
		if _, ok := kept[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := r.store.Del(ctx, r.keys(namespace, stale)...); err != nil {
		return &domain.PersistenceError{Namespace: namespace, Err: err}
	}
	if err := r.links.DeleteLinks(ctx, namespace, documentID); err != nil {
		return err
	}
	return r.links.AddLinks(ctx, namespace, documentID, keep)
}

func (r *Repo) keys(namespace string, ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.vectorKey(namespace, id)
	}
	return keys
}

var returnFields = []string{
	fieldText, fieldDocumentID, fieldOrdinal,
	fieldTitle, fieldSource, fieldDate, fieldAuthor, fieldCitation, fieldExtra,
	filter.FieldCourt, filter.FieldCategory, filter.FieldDocType, filter.FieldYear,
}

// SimilaritySearch returns up to topN chunk hits with cosine similarity >= threshold,
// best first. A namespace without an index yields no hits.
func (r *Repo) SimilaritySearch(
	ctx context.Context, namespace string, vector []float32,
	topN int, threshold float64, filters filter.Expression,
) ([]candidate.Hit, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(namespace),
		Filters:      filters,
		Vector:       vector,
		K:            topN,
		ReturnFields: returnFields,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("search knn %s: %w", namespace, err)
	}
	if sr == nil {
		return nil, nil
	}

	prefix := r.keyPrefix(namespace)
	hits := make([]candidate.Hit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		if entry.Score < threshold {
			continue
		}
		hits = append(hits, hashToHit(strings.TrimPrefix(entry.Key, prefix), entry.Score, entry.Fields))
	}
	return hits, nil
}
