package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/db"
	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
)

// HASH field names of a stored vector.
const (
	fieldVector       = "vector"
	fieldText         = "text"
	fieldDocumentID   = "document_id"
	fieldPartitionKey = "partition_key"
	fieldOrdinal      = "ordinal"
	fieldTitle        = "title"
	fieldSource       = "source"
	fieldDate         = "date"
	fieldAuthor       = "author"
	fieldCitation     = "citation"
	fieldExtra        = "extra"
)

// idNamespace scopes deterministic vector ids.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("paralegal/vectors"))

// ID returns the deterministic vector id of a chunk, so re-ingesting a document
// overwrites its vectors instead of duplicating them.
func ID(partition, documentID string, ordinal int) string {
	name := partition + "\x00" + documentID + "\x00" + strconv.Itoa(ordinal)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

func (r *Repo) indexName(namespace string) string {
	return r.cfg.KeyPrefix + namespace + ":idx"
}

func (r *Repo) keyPrefix(namespace string) string {
	return r.cfg.KeyPrefix + namespace + ":vec:"
}

func (r *Repo) vectorKey(namespace, id string) string {
	return r.keyPrefix(namespace) + id
}

// buildIndex defines the FT index over a namespace: payload tags, numeric year and
// ordinal, and the HNSW cosine vector field.
func (r *Repo) buildIndex(namespace string, dim int) (*db.IndexDefinition, error) {
	return db.NewIndex(r.indexName(namespace)).
		Prefix(r.keyPrefix(namespace)).
		Tag(fieldDocumentID).
		Tag(filter.FieldCourt).
		Tag(filter.FieldCategory).
		Tag(filter.FieldDocType).
		Numeric(filter.FieldYear).
		Numeric(fieldOrdinal).
		VectorHNSW(fieldVector, dim, db.DistanceCosine, r.cfg.HNSW.M, r.cfg.HNSW.EFConstruct).
		Build()
}

// EnsureCollection creates the namespace's index when it does not exist yet.
// A namespace already ensured in this process with another dimension is rejected.
func (r *Repo) EnsureCollection(ctx context.Context, namespace string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("ensure collection %s: dimension must be positive", namespace)
	}

	r.mu.Lock()
	known, ok := r.ensured[namespace]
	r.mu.Unlock()
	if ok {
		if known != dim {
			return fmt.Errorf("namespace %s has dimension %d, got %d: %w",
				namespace, known, dim, domain.ErrVectorDimMismatch)
		}
		return nil
	}

	def, err := r.buildIndex(namespace, dim)
	if err != nil {
		return fmt.Errorf("build index for %s: %w", namespace, err)
	}

	exists, err := r.store.IndexExists(ctx, def.Name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", def.Name, err)
	}
	if !exists {
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", def.Name, err)
		}
		r.logger.Info("Vector index created",
			zap.String("index", def.Name), zap.Int("dim", dim))
	}

	r.mu.Lock()
	r.ensured[namespace] = dim
	r.mu.Unlock()
	return nil
}
