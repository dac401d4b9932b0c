package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the retrieval engine configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
	Index     IndexConfig     `yaml:"index"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the Redis vector store connection.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// MetadataConfig holds the structured store (SQLite) settings.
type MetadataConfig struct {
	DSN string `yaml:"dsn"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	KeyPrefix       string `yaml:"key_prefix"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	WriteBatchSize  int    `yaml:"write_batch_size"`
}

// CredentialConfig is one provider API key.
type CredentialConfig struct {
	ID     string  `yaml:"id"`
	APIKey string  `yaml:"api_key"`
	RPS    float64 `yaml:"rps"` // 0 = unthrottled
}

// EmbeddingConfig holds provider, credential pool and embedding stage settings.
type EmbeddingConfig struct {
	Provider            string             `yaml:"provider"`
	BaseURL             string             `yaml:"base_url"`
	Model               string             `yaml:"model"`
	Dimensions          int                `yaml:"dimensions"`
	DocumentInstruction string             `yaml:"document_instruction"`
	QueryInstruction    string             `yaml:"query_instruction"`
	Credentials         []CredentialConfig `yaml:"credentials"`

	BatchSize        int `yaml:"batch_size"`
	Concurrency      int `yaml:"concurrency"`
	MaxRetries       int `yaml:"max_retries"`
	BaseDelayMS      int `yaml:"base_delay_ms"`
	MaxDelayMS       int `yaml:"max_delay_ms"`
	FallbackDelayMS  int `yaml:"fallback_delay_ms"`
	CooldownSec      int `yaml:"cooldown_sec"`
	FailureThreshold int `yaml:"failure_threshold"`
	QueryCacheSize   int `yaml:"query_cache_size"`
	QueryCacheTTLSec int `yaml:"query_cache_ttl_sec"`
}

// IngestionConfig holds orchestrator and chunker settings.
type IngestionConfig struct {
	BatchSize           int `yaml:"batch_size"`
	DocumentConcurrency int `yaml:"document_concurrency"`
	RetryAttempts       int `yaml:"retry_attempts"`
	RetryBaseDelayMS    int `yaml:"retry_base_delay_ms"`
	ChunkSize           int `yaml:"chunk_size"`
	ChunkOverlap        int `yaml:"chunk_overlap"`
}

// WeightsConfig holds fusion weights.
type WeightsConfig struct {
	Semantic float64 `yaml:"semantic"`
	Reranker float64 `yaml:"reranker"`
	Keyword  float64 `yaml:"keyword"`
	Metadata float64 `yaml:"metadata"`
}

// SearchConfig holds fusion engine and validator settings.
type SearchConfig struct {
	TopN                int           `yaml:"top_n"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	PathTimeoutMS       int           `yaml:"path_timeout_ms"`
	Reranker            string        `yaml:"reranker"` // bm25 | none
	Weights             WeightsConfig `yaml:"weights"`
	MinTextLength       int           `yaml:"min_text_length"`
	QualityThreshold    float64       `yaml:"quality_threshold"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Metadata.DSN == "" {
		c.Metadata.DSN = "file:paralegal.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "paralegal:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Index.WriteBatchSize <= 0 {
		c.Index.WriteBatchSize = 2000
	}
	c.Embedding.applyDefaults()
	c.Ingestion.applyDefaults()
	c.Search.applyDefaults()
}

func (e *EmbeddingConfig) applyDefaults() {
	if e.Provider == "" {
		e.Provider = "openai"
	}
	if e.Model == "" {
		e.Model = "text-embedding-3-small"
	}
	if e.BatchSize <= 0 {
		e.BatchSize = 100
	}
	if e.Concurrency <= 0 {
		e.Concurrency = 10
	}
	if e.MaxRetries <= 0 {
		e.MaxRetries = 3
	}
	if e.BaseDelayMS <= 0 {
		e.BaseDelayMS = 1000
	}
	if e.MaxDelayMS <= 0 {
		e.MaxDelayMS = 30000
	}
	if e.FallbackDelayMS <= 0 {
		e.FallbackDelayMS = 100
	}
	if e.CooldownSec <= 0 {
		e.CooldownSec = 60
	}
	if e.FailureThreshold <= 0 {
		e.FailureThreshold = 5
	}
	if e.QueryCacheSize <= 0 {
		e.QueryCacheSize = 1024
	}
	if e.QueryCacheTTLSec <= 0 {
		e.QueryCacheTTLSec = 7 * 24 * 3600
	}
	for i := range e.Credentials {
		if e.Credentials[i].ID == "" {
			e.Credentials[i].ID = fmt.Sprintf("key-%d", i+1)
		}
	}
}

func (in *IngestionConfig) applyDefaults() {
	if in.BatchSize <= 0 {
		in.BatchSize = 100
	}
	if in.DocumentConcurrency <= 0 {
		in.DocumentConcurrency = 8
	}
	if in.RetryAttempts <= 0 {
		in.RetryAttempts = 3
	}
	if in.RetryBaseDelayMS <= 0 {
		in.RetryBaseDelayMS = 500
	}
	if in.ChunkSize <= 0 {
		in.ChunkSize = 1000
	}
	if in.ChunkOverlap == 0 {
		in.ChunkOverlap = 100
	}
}

func (s *SearchConfig) applyDefaults() {
	if s.TopN <= 0 {
		s.TopN = 10
	}
	if s.SimilarityThreshold <= 0 {
		s.SimilarityThreshold = 0.25
	}
	if s.PathTimeoutMS <= 0 {
		s.PathTimeoutMS = 5000
	}
	if s.Reranker == "" {
		s.Reranker = "bm25"
	}
	if s.Weights == (WeightsConfig{}) {
		s.Weights = WeightsConfig{Semantic: 0.4, Reranker: 0.3, Keyword: 0.2, Metadata: 0.1}
	}
	if s.MinTextLength <= 0 {
		s.MinTextLength = 10
	}
	if s.QualityThreshold <= 0 {
		s.QualityThreshold = 0.3
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if len(c.Embedding.Credentials) == 0 {
		return fmt.Errorf("embedding.credentials must contain at least one key")
	}
	seen := make(map[string]bool, len(c.Embedding.Credentials))
	for i, cred := range c.Embedding.Credentials {
		if cred.APIKey == "" {
			return fmt.Errorf("embedding.credentials[%d].api_key is required", i)
		}
		if seen[cred.ID] {
			return fmt.Errorf("embedding.credentials: duplicate id %q", cred.ID)
		}
		seen[cred.ID] = true
		if cred.RPS < 0 {
			return fmt.Errorf("embedding.credentials[%d].rps must not be negative", i)
		}
	}
	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunk_overlap (%d) must be less than ingestion.chunk_size (%d)",
			c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}
	switch c.Search.Reranker {
	case "bm25", "none":
		// ok
	default:
		return fmt.Errorf("search.reranker must be \"bm25\" or \"none\", got %q", c.Search.Reranker)
	}
	w := c.Search.Weights
	if w.Semantic < 0 || w.Reranker < 0 || w.Keyword < 0 || w.Metadata < 0 {
		return fmt.Errorf("search.weights must not be negative")
	}
	if w.Semantic+w.Keyword+w.Metadata <= 0 {
		return fmt.Errorf("search.weights: semantic, keyword and metadata must not all be zero")
	}
	return nil
}

// Helpers converting integer config fields to durations.

// BaseDelay returns the embedding retry base delay.
func (e EmbeddingConfig) BaseDelay() time.Duration { return ms(e.BaseDelayMS) }

// MaxDelay returns the embedding retry delay cap.
func (e EmbeddingConfig) MaxDelay() time.Duration { return ms(e.MaxDelayMS) }

// FallbackDelay returns the pause between individual fallback calls.
func (e EmbeddingConfig) FallbackDelay() time.Duration { return ms(e.FallbackDelayMS) }

// Cooldown returns the default rate-limit cooldown.
func (e EmbeddingConfig) Cooldown() time.Duration { return time.Duration(e.CooldownSec) * time.Second }

// QueryCacheTTL returns the shared query-embedding cache TTL.
func (e EmbeddingConfig) QueryCacheTTL() time.Duration {
	return time.Duration(e.QueryCacheTTLSec) * time.Second
}

// RetryBaseDelay returns the document retry base delay.
func (in IngestionConfig) RetryBaseDelay() time.Duration { return ms(in.RetryBaseDelayMS) }

// PathTimeout returns the per-path query timeout.
func (s SearchConfig) PathTimeout() time.Duration { return ms(s.PathTimeoutMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
