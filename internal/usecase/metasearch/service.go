package metasearch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
)

// DefaultLimit caps the rows read per query.
const DefaultLimit = 50

// Store runs predicate queries against the structured document store. Structured
// predicates are ANDed; residual terms alone match any term.
type Store interface {
	Query(ctx context.Context, partition string, p filter.Predicates, limit int) ([]domain.Document, error)
}

// Service is the metadata retrieval path.
type Service struct {
	store  Store
	logger *zap.Logger
}

// New creates a metadata search service.
func New(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Search returns document-level hits scored by the fraction of predicates each document
// satisfies. No predicates yields no hits and no error.
func (s *Service) Search(ctx context.Context, p filter.Predicates, partition string, limit int) (
	[]candidate.Hit, error,
) {
	p = p.Normalize()
	if p.IsEmpty() {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	docs, err := s.store.Query(ctx, partition, p, limit)
	if err != nil {
		return nil, fmt.Errorf("metadata search: %w", err)
	}

	total := float64(p.Count())
	hits := make([]candidate.Hit, 0, len(docs))
	for _, d := range docs {
		matched := p.Structured()
		if len(p.Terms) > 0 && matchesAnyTerm(d, p.Terms) {
			matched++
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, candidate.Hit{
			ID: d.ID, DocumentID: d.ID, Ordinal: -1,
			Text: d.Text, Metadata: d.Metadata, Score: float64(matched) / total,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	s.logger.Debug("Metadata search",
		zap.String("partition", partition),
		zap.Int("predicates", p.Count()),
		zap.Int("hits", len(hits)))
	return hits, nil
}

func matchesAnyTerm(d domain.Document, terms []string) bool {
	hay := strings.ToLower(d.Metadata.Title + "\n" + d.Text)
	for _, t := range terms {
		if strings.Contains(hay, t) {
			return true
		}
	}
	return false
}
