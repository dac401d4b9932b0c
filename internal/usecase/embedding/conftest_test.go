package embedding

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/rotator"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type call struct {
	apiKey string
	texts  []string
	hint   domain.TaskHint
}

// fakeEmbedder records calls and answers through respond; the default vector encodes the
// text length so tests can check alignment.
type fakeEmbedder struct {
	mu      sync.Mutex
	calls   []call
	respond func(n int, texts []string) error
}

func (f *fakeEmbedder) EmbedBatch(
	_ context.Context, apiKey string, texts []string, hint domain.TaskHint,
) (domain.BatchEmbeddingResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{apiKey: apiKey, texts: append([]string(nil), texts...), hint: hint})
	n := len(f.calls)
	f.mu.Unlock()

	if f.respond != nil {
		if err := f.respond(n, texts); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEmbedder) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newTestRotator(t *testing.T, ids ...string) *rotator.Rotator {
	t.Helper()
	specs := make([]rotator.Spec, len(ids))
	for i, id := range ids {
		specs[i] = rotator.Spec{ID: id, APIKey: "sk-" + id}
	}
	r, err := rotator.New(specs, rotator.WithDefaultCooldown(20*time.Millisecond))
	if err != nil {
		t.Fatalf("rotator.New: %v", err)
	}
	return r
}

func newTestStage(t *testing.T, emb *fakeEmbedder, rot Rotator, batchSize int) *Stage {
	t.Helper()
	return NewStage(emb, rot, Config{
		BatchSize:     batchSize,
		Concurrency:   4,
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		FallbackDelay: time.Millisecond,
	}, zap.NewNop())
}

func makeChunks(n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		body := "clause " + strings.Repeat("x", i%7+1)
		chunks[i] = domain.Chunk{
			DocumentID:   "doc",
			PartitionKey: "ws",
			Ordinal:      i,
			Header:       "Title: T\n\n",
			Body:         body,
			Text:         "Title: T\n\n" + body,
		}
	}
	return chunks
}
