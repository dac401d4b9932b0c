package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// openaiEmbeddingResponse mirrors the OpenAI-compatible API embedding response.
type openaiEmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingItem `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func newTestEmbedder(url string) *Embedder {
	return NewEmbedder(&Config{
		BaseURL:  url,
		Model:    "test-model",
		Provider: "test",
		Logger:   zap.NewNop(),
	})
}

func writeEmbeddings(w http.ResponseWriter, items []embeddingItem, tokens int) {
	resp := openaiEmbeddingResponse{Object: "list", Model: "test-model", Data: items}
	resp.Usage.PromptTokens = tokens
	resp.Usage.TotalTokens = tokens
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": "error"},
	})
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-a" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		// Reverse order: the embedder must restore it by Index.
		writeEmbeddings(w, []embeddingItem{
			{Object: "embedding", Embedding: []float32{0.3, 0.4}, Index: 1},
			{Object: "embedding", Embedding: []float32{0.1, 0.2}, Index: 0},
		}, 20)
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL)
	result, err := emb.EmbedBatch(context.Background(), "key-a", []string{"hello", "world"}, domain.TaskDocument)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(result.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result.Embeddings))
	}
	if result.Embeddings[0][0] != 0.1 || result.Embeddings[1][0] != 0.3 {
		t.Errorf("order not restored: %v", result.Embeddings)
	}
	if result.TotalTokens != 20 || result.PromptTokens != 20 {
		t.Errorf("usage = %+v", result)
	}
}

func TestEmbedder_EmbedBatch_Empty(t *testing.T) {
	emb := newTestEmbedder("http://unused")
	result, err := emb.EmbedBatch(context.Background(), "k", nil, domain.TaskDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embeddings != nil {
		t.Errorf("expected nil embeddings for empty input, got %v", result.Embeddings)
	}
}

func TestEmbedder_EmbedBatch_Instructions(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		got = append(got, req.Input...)
		items := make([]embeddingItem, len(req.Input))
		for i := range items {
			items[i] = embeddingItem{Object: "embedding", Embedding: []float32{1}, Index: i}
		}
		writeEmbeddings(w, items, 1)
	}))
	defer server.Close()

	emb := NewEmbedder(&Config{
		BaseURL:             server.URL,
		Model:               "test-model",
		DocumentInstruction: "passage: ",
		QueryInstruction:    "query: ",
	})

	texts := []string{"bail conditions"}
	if _, err := emb.EmbedBatch(context.Background(), "k", texts, domain.TaskDocument); err != nil {
		t.Fatal(err)
	}
	if _, err := emb.EmbedBatch(context.Background(), "k", texts, domain.TaskQuery); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 || got[0] != "passage: bail conditions" || got[1] != "query: bail conditions" {
		t.Errorf("wire inputs = %q", got)
	}
	if texts[0] != "bail conditions" {
		t.Errorf("caller texts mutated: %q", texts[0])
	}
}

func TestEmbedder_EmbedBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, []embeddingItem{{Object: "embedding", Embedding: []float32{0.1}, Index: 0}}, 5)
	}))
	defer server.Close()

	_, err := newTestEmbedder(server.URL).EmbedBatch(context.Background(), "k", []string{"a", "b"}, domain.TaskDocument)
	if !errors.Is(err, domain.ErrTransientProvider) {
		t.Fatalf("expected transient error for count mismatch, got %v", err)
	}
}

func TestEmbedder_EmbedBatch_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, []embeddingItem{{Object: "embedding", Embedding: []float32{0.1, 0.2}, Index: 0}}, 5)
	}))
	defer server.Close()

	emb := NewEmbedder(&Config{BaseURL: server.URL, Model: "m", Dimensions: 4})
	_, err := emb.EmbedBatch(context.Background(), "k", []string{"a"}, domain.TaskDocument)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestEmbedder_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "Rate limit reached. Please try again in 1.5s.")
	}))
	defer server.Close()

	_, err := newTestEmbedder(server.URL).EmbedBatch(context.Background(), "k", []string{"a"}, domain.TaskDocument)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var tpe *domain.TransientProviderError
	if !errors.As(err, &tpe) {
		t.Fatalf("expected *TransientProviderError, got %T", err)
	}
	if tpe.RetryAfter != 1500*time.Millisecond {
		t.Errorf("RetryAfter = %s, want 1.5s", tpe.RetryAfter)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Error("expected ErrEmbeddingProviderError in chain")
	}
}

func TestEmbedder_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
		wantPermanent bool
	}{
		{"server error", http.StatusInternalServerError, true, false},
		{"bad gateway", http.StatusBadGateway, true, false},
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"bad request", http.StatusBadRequest, false, true},
		{"too large", http.StatusRequestEntityTooLarge, false, true},
		{"unprocessable", http.StatusUnprocessableEntity, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.status, "nope")
			}))
			defer server.Close()

			_, err := newTestEmbedder(server.URL).EmbedBatch(context.Background(), "k", []string{"a"}, domain.TaskDocument)
			if got := errors.Is(err, domain.ErrTransientProvider); got != tt.wantTransient {
				t.Errorf("transient = %v, want %v (err %v)", got, tt.wantTransient, err)
			}
			if got := errors.Is(err, domain.ErrPermanentInput); got != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v (err %v)", got, tt.wantPermanent, err)
			}
		})
	}
}

func TestEmbedder_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestEmbedder(url).EmbedBatch(context.Background(), "k", []string{"a"}, domain.TaskDocument)
	if !errors.Is(err, domain.ErrTransientProvider) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestEmbedder_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestEmbedder(server.URL).EmbedBatch(ctx, "k", []string{"a"}, domain.TaskDocument)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if errors.Is(err, domain.ErrTransientProvider) {
		t.Error("cancellation must not be reported as a provider failure")
	}
}

func TestEmbedder_ClientPerKey(t *testing.T) {
	var keys atomic.Value
	keys.Store([]string{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys.Store(append(keys.Load().([]string), strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")))
		writeEmbeddings(w, []embeddingItem{{Object: "embedding", Embedding: []float32{1}, Index: 0}}, 1)
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL)
	for _, k := range []string{"key-a", "key-b", "key-a"} {
		if _, err := emb.EmbedBatch(context.Background(), k, []string{"x"}, domain.TaskDocument); err != nil {
			t.Fatal(err)
		}
	}

	got := keys.Load().([]string)
	if strings.Join(got, ",") != "key-a,key-b,key-a" {
		t.Errorf("keys on the wire = %v", got)
	}
	if len(emb.clients) != 2 {
		t.Errorf("expected 2 cached clients, got %d", len(emb.clients))
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := map[string]time.Duration{
		"Please try again in 20s.":          20 * time.Second,
		"try again in 500ms":                500 * time.Millisecond,
		"Try again in 2 seconds":            2 * time.Second,
		"rate limit exceeded":               0,
		"Limit reached, try again in 0.25s": 250 * time.Millisecond,
	}
	for msg, want := range tests {
		if got := parseRetryAfter(msg); got != want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", msg, got, want)
		}
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	emb := NewEmbedder(&Config{BaseURL: server.URL, Model: "m", HealthKey: "k"})
	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
