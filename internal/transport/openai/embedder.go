package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
)

// Embedder is a batch embedding provider using the OpenAI-compatible API (e.g. Nebius).
// The API key is chosen per call so a credential rotator can sit in front of it.
type Embedder struct {
	baseURL     string
	model       openai.EmbeddingModel
	dimensions  int
	user        string
	provider    string
	docPrefix   string
	queryPrefix string
	healthKey   string
	httpClient  *http.Client
	logger      *zap.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// Config holds the embedding provider settings.
type Config struct {
	BaseURL    string
	Model      string
	Dimensions int
	User       string
	Provider   string
	// DocumentInstruction and QueryInstruction are prepended to texts on the wire only.
	DocumentInstruction string
	QueryInstruction    string
	// HealthKey is the API key used by HealthCheck.
	HealthKey  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		baseURL:     cfg.BaseURL,
		model:       openai.EmbeddingModel(cfg.Model),
		dimensions:  cfg.Dimensions,
		user:        cfg.User,
		provider:    cfg.Provider,
		docPrefix:   cfg.DocumentInstruction,
		queryPrefix: cfg.QueryInstruction,
		healthKey:   cfg.HealthKey,
		httpClient:  cfg.HTTPClient,
		logger:      logger,
		clients:     make(map[string]*openai.Client),
	}
}

func (e *Embedder) client(apiKey string) *openai.Client {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.clients[apiKey]; ok {
		return c
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if e.baseURL != "" {
		clientCfg.BaseURL = e.baseURL
	}
	if e.httpClient != nil {
		clientCfg.HTTPClient = e.httpClient
	}
	c := openai.NewClientWithConfig(clientCfg)
	e.clients[apiKey] = c
	return c
}

// EmbedBatch implements domain.BatchEmbedder. Vectors come back in input order.
func (e *Embedder) EmbedBatch(
	ctx context.Context, apiKey string, texts []string, hint domain.TaskHint,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	prefix := e.docPrefix
	if hint == domain.TaskQuery {
		prefix = e.queryPrefix
	}
	input := texts
	if prefix != "" {
		input = make([]string, len(texts))
		for i, t := range texts {
			input[i] = prefix + t
		}
	}

	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	model := string(e.model)
	start := time.Now()

	resp, err := e.client(apiKey).CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		classified := classifyError(err)
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, errorType(classified)).Inc()
		return domain.BatchEmbeddingResult{}, classified
	}

	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, "count_mismatch").Inc()
		return domain.BatchEmbeddingResult{}, &domain.TransientProviderError{
			Err: fmt.Errorf("expected %d embeddings, got %d: %w",
				len(texts), len(resp.Data), domain.ErrEmbeddingProviderError),
		}
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, model).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	// Providers may return data out of order.
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, len(data))
	for i := range data {
		if e.dimensions > 0 && len(data[i].Embedding) != e.dimensions {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding %d has %d dimensions, want %d: %w",
				i, len(data[i].Embedding), e.dimensions, domain.ErrVectorDimMismatch)
		}
		embeddings[i] = data[i].Embedding
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client(e.healthKey).ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// classifyError maps a client error onto the domain taxonomy:
// 429 is a rate limit, 5xx/408/401/403 and network failures are transient,
// remaining 4xx mean the input itself was rejected.
func classifyError(err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return fmt.Errorf("embedding request: %w", ctxErr)
	}

	status, message := statusAndMessage(err)
	if status == 0 {
		return &domain.TransientProviderError{
			Err: fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrEmbeddingProviderError),
		}
	}

	wrapped := fmt.Errorf("embedding API error %d: %s: %w", status, message, domain.ErrEmbeddingProviderError)
	switch {
	case status == http.StatusTooManyRequests:
		return &domain.TransientProviderError{
			RateLimited: true,
			RetryAfter:  parseRetryAfter(message),
			Err:         wrapped,
		}
	case status >= 500,
		status == http.StatusRequestTimeout,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden:
		return &domain.TransientProviderError{Err: wrapped}
	default:
		return &domain.PermanentInputError{Reason: wrapped.Error()}
	}
}

func contextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	return nil
}

func statusAndMessage(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return reqErr.HTTPStatusCode, detail
		}
		return reqErr.HTTPStatusCode, string(reqErr.Body)
	}
	return 0, ""
}

func errorType(err error) string {
	var transient *domain.TransientProviderError
	switch {
	case errors.As(err, &transient) && transient.RateLimited:
		return "rate_limited"
	case errors.As(err, &transient):
		return "transient"
	case errors.Is(err, domain.ErrPermanentInput):
		return "rejected"
	default:
		return "canceled"
	}
}

var retryAfterRe = regexp.MustCompile(`(?i)try again in\s+([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|seconds?)\b`)

// parseRetryAfter extracts hints like "Please try again in 1.5s" from an error message.
func parseRetryAfter(message string) time.Duration {
	m := retryAfterRe.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if m[2] == "ms" {
		return time.Duration(v * float64(time.Millisecond))
	}
	return time.Duration(v * float64(time.Second))
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
