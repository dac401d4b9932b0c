package keyword

import (
	"sync"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
)

// Registry holds one index per partition. Indexes are immutable; Rebuild swaps in a new
// one, so readers never observe a half-built index.
type Registry struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{indexes: make(map[string]*Index)}
}

// Rebuild replaces the partition's index with one built from docs.
func (r *Registry) Rebuild(partition string, docs []domain.Document) {
	idx := Build(docs)
	r.mu.Lock()
	r.indexes[partition] = idx
	r.mu.Unlock()
}

// Get returns the partition's index, or an empty index when none was built.
func (r *Registry) Get(partition string) *Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx, ok := r.indexes[partition]; ok {
		return idx
	}
	return &Index{}
}

// Search runs a BM25 query against the partition's index.
func (r *Registry) Search(partition, query string, topK int) []candidate.Hit {
	return r.Get(partition).Search(query, topK)
}

// ScoreAgainst scores texts with the partition's document frequencies.
func (r *Registry) ScoreAgainst(partition, query string, texts []string) []float64 {
	return r.Get(partition).ScoreAgainst(query, texts)
}
