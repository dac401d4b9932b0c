package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Embedding: EmbeddingConfig{
			Credentials: []CredentialConfig{{APIKey: "sk-1"}, {APIKey: "sk-2"}},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_OverlapNotLessThanChunkSize(t *testing.T) {
	cfg := validConfig()
	cfg.Ingestion.ChunkSize = 500
	cfg.Ingestion.ChunkOverlap = 500

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for overlap >= chunk size")
	}

	expected := "ingestion.chunk_overlap (500) must be less than ingestion.chunk_size (500)"
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_Credentials(t *testing.T) {
	tests := []struct {
		name  string
		creds []CredentialConfig
	}{
		{"empty", nil},
		{"missing key", []CredentialConfig{{ID: "a"}}},
		{"duplicate id", []CredentialConfig{{ID: "a", APIKey: "x"}, {ID: "a", APIKey: "y"}}},
		{"negative rps", []CredentialConfig{{ID: "a", APIKey: "x", RPS: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Embedding.Credentials = tt.creds
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidate_Reranker(t *testing.T) {
	for _, name := range []string{"bm25", "none"} {
		t.Run("reranker="+name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Search.Reranker = name
			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for %q: %v", name, err)
			}
		})
	}

	cfg := validConfig()
	cfg.Search.Reranker = "cross-encoder"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown reranker")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Embedding: EmbeddingConfig{Credentials: []CredentialConfig{{APIKey: "x"}, {APIKey: "y"}}}}
	cfg.ApplyDefaults()

	if cfg.Embedding.BatchSize != 100 {
		t.Errorf("expected Embedding.BatchSize=100, got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Embedding.Concurrency != 10 {
		t.Errorf("expected Embedding.Concurrency=10, got %d", cfg.Embedding.Concurrency)
	}
	if cfg.Embedding.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.Embedding.MaxRetries)
	}
	if cfg.Embedding.Cooldown() != 60*time.Second {
		t.Errorf("expected Cooldown=60s, got %s", cfg.Embedding.Cooldown())
	}
	if cfg.Embedding.FailureThreshold != 5 {
		t.Errorf("expected FailureThreshold=5, got %d", cfg.Embedding.FailureThreshold)
	}
	if cfg.Embedding.Credentials[0].ID != "key-1" || cfg.Embedding.Credentials[1].ID != "key-2" {
		t.Errorf("expected generated credential ids, got %+v", cfg.Embedding.Credentials)
	}
	if cfg.Ingestion.BatchSize != 100 {
		t.Errorf("expected Ingestion.BatchSize=100, got %d", cfg.Ingestion.BatchSize)
	}
	if cfg.Ingestion.DocumentConcurrency != 8 {
		t.Errorf("expected DocumentConcurrency=8, got %d", cfg.Ingestion.DocumentConcurrency)
	}
	if cfg.Ingestion.RetryAttempts != 3 {
		t.Errorf("expected RetryAttempts=3, got %d", cfg.Ingestion.RetryAttempts)
	}
	if cfg.Index.WriteBatchSize != 2000 {
		t.Errorf("expected WriteBatchSize=2000, got %d", cfg.Index.WriteBatchSize)
	}
	if cfg.Search.TopN != 10 {
		t.Errorf("expected TopN=10, got %d", cfg.Search.TopN)
	}
	if cfg.Search.SimilarityThreshold != 0.25 {
		t.Errorf("expected SimilarityThreshold=0.25, got %f", cfg.Search.SimilarityThreshold)
	}
	w := cfg.Search.Weights
	if w.Semantic != 0.4 || w.Reranker != 0.3 || w.Keyword != 0.2 || w.Metadata != 0.1 {
		t.Errorf("unexpected default weights %+v", w)
	}
	if cfg.Search.MinTextLength != 10 || cfg.Search.QualityThreshold != 0.3 {
		t.Errorf("unexpected validator defaults %d/%f", cfg.Search.MinTextLength, cfg.Search.QualityThreshold)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		Index:     IndexConfig{KeyPrefix: "custom:", WriteBatchSize: 500},
		Ingestion: IngestionConfig{BatchSize: 25, DocumentConcurrency: 2, ChunkSize: 800, ChunkOverlap: 50},
		Search:    SearchConfig{Weights: WeightsConfig{Semantic: 1}},
	}
	cfg.ApplyDefaults()

	if cfg.Index.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Index.KeyPrefix)
	}
	if cfg.Index.WriteBatchSize != 500 {
		t.Errorf("expected WriteBatchSize=500, got %d", cfg.Index.WriteBatchSize)
	}
	if cfg.Ingestion.BatchSize != 25 || cfg.Ingestion.DocumentConcurrency != 2 {
		t.Errorf("ingestion overridden: %+v", cfg.Ingestion)
	}
	if cfg.Ingestion.ChunkOverlap != 50 {
		t.Errorf("expected ChunkOverlap=50, got %d", cfg.Ingestion.ChunkOverlap)
	}
	if cfg.Search.Weights.Semantic != 1 || cfg.Search.Weights.Reranker != 0 {
		t.Errorf("weights overridden: %+v", cfg.Search.Weights)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("PARALEGAL_TEST_KEY", "sk-env")

	data := []byte(`
http:
  port: 9090
database:
  addrs: ["${PARALEGAL_TEST_REDIS:-localhost:6379}"]
embedding:
  credentials:
    - id: primary
      api_key: ${PARALEGAL_TEST_KEY}
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Database.Addrs[0] != "localhost:6379" {
		t.Errorf("expected default addr, got %q", cfg.Database.Addrs[0])
	}
	if cfg.Embedding.Credentials[0].APIKey != "sk-env" {
		t.Errorf("expected expanded key, got %q", cfg.Embedding.Credentials[0].APIKey)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("http: ["))
	if err == nil || !strings.Contains(err.Error(), "failed to parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
