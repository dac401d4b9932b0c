package ingest

import (
	"context"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
)

// Chunker splits a document into embeddable chunks.
type Chunker interface {
	Split(doc domain.Document) []domain.Chunk
}

// Embedder turns chunks into vectors; nil entries are chunks that failed permanently.
type Embedder interface {
	Embed(ctx context.Context, chunks []domain.Chunk) ([]*domain.EmbeddingVector, error)
}

// VectorWriter persists vectors and their Document→Vector linkage.
type VectorWriter interface {
	Upsert(ctx context.Context, namespace string, vectors []domain.EmbeddingVector) ([]string, error)
	Prune(ctx context.Context, namespace, documentID string, keep []string) error
	Delete(ctx context.Context, namespace, documentID string) error
}

// MetadataStore is the structured document store.
type MetadataStore interface {
	BulkUpsert(ctx context.Context, docs []domain.Document) error
	Upsert(ctx context.Context, doc domain.Document) error
	Delete(ctx context.Context, partition, id string) error
	ListByPartition(ctx context.Context, partition string) ([]domain.Document, error)
}

// KeywordIndexer swaps in a freshly built keyword index for a partition.
type KeywordIndexer interface {
	Rebuild(partition string, docs []domain.Document)
}
