package db

import "github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search. Filters are applied as a
// pre-filter, so K counts only matching records.
type KNNQuery struct {
	IndexName    string
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Score is cosine similarity in [0,1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
