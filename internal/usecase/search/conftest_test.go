package search

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type mockEmbedder struct {
	vec   []float32
	err   error
	block bool
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, _ string) ([]float32, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.vec, m.err
}

type mockVectors struct {
	mu        sync.Mutex
	hits      []candidate.Hit
	err       error
	filters   filter.Expression
	topN      int
	threshold float64
}

func (m *mockVectors) SimilaritySearch(
	_ context.Context, _ string, _ []float32, topN int, threshold float64, filters filter.Expression,
) ([]candidate.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters, m.topN, m.threshold = filters, topN, threshold
	return m.hits, m.err
}

type mockKeyword struct {
	hits   []candidate.Hit
	scores func(texts []string) []float64
	panics bool
}

func (m *mockKeyword) Search(_, _ string, _ int) []candidate.Hit {
	if m.panics {
		panic("index corrupted")
	}
	return m.hits
}

func (m *mockKeyword) ScoreAgainst(_, _ string, texts []string) []float64 {
	if m.scores != nil {
		return m.scores(texts)
	}
	return make([]float64, len(texts))
}

type mockMeta struct {
	mu    sync.Mutex
	hits  []candidate.Hit
	err   error
	preds filter.Predicates
}

func (m *mockMeta) Search(_ context.Context, p filter.Predicates, _ string, _ int) ([]candidate.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preds = p
	return m.hits, m.err
}

type harness struct {
	emb     *mockEmbedder
	vectors *mockVectors
	kw      *mockKeyword
	meta    *mockMeta
	svc     *Service
}

func newHarness(cfg Config) *harness {
	h := &harness{
		emb:     &mockEmbedder{vec: []float32{1, 0, 0}},
		vectors: &mockVectors{},
		kw:      &mockKeyword{},
		meta:    &mockMeta{},
	}
	h.svc = New(h.emb, h.vectors, h.kw, h.meta, cfg, nil)
	return h
}

// richMeta passes the quality gate on its own.
var richMeta = domain.Metadata{Court: "Supreme Court", Citation: "(2019) 5 SCC 1"}

func longText(seed string) string {
	return seed + " " + strings.Repeat("The court examined the record in detail. ", 12)
}

func chunkHit(id, doc string, score float64) candidate.Hit {
	return candidate.Hit{ID: id, DocumentID: doc, Text: longText(id), Metadata: richMeta, Score: score}
}

func docHit(doc string, score float64) candidate.Hit {
	return candidate.Hit{ID: doc, DocumentID: doc, Ordinal: -1, Text: longText(doc), Metadata: richMeta, Score: score}
}

func resultIDs(cands []candidate.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ID
	}
	return out
}
