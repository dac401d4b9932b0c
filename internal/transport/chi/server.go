package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
	healthuc "github.com/Aviyadav22/ParalegalAI/internal/usecase/health"
	searchuc "github.com/Aviyadav22/ParalegalAI/internal/usecase/search"
)

const (
	maxBatchSize = 500
	maxBodyBytes = 32 << 20
)

// Ingester loads and removes documents.
type Ingester interface {
	Ingest(ctx context.Context, docs []domain.Document) domain.IngestReport
	Delete(ctx context.Context, partition, documentID string) error
}

// Searcher answers hybrid queries.
type Searcher interface {
	Query(ctx context.Context, text, partition string, opts searchuc.Options) ([]candidate.Candidate, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the ingestion and query API.
type Server struct {
	ingest        Ingester
	search        Searcher
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(ingest Ingester, search Searcher, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ingest: ingest,
		search: search,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrPermanentInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrTransientProvider, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrAllPathsFailed, http.StatusServiceUnavailable, CodeAllPathsFailed),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
	}
	return s
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", s.Ingest)
		r.Post("/query", s.Query)
		r.Delete("/partitions/{partition}/documents/{id}", s.DeleteDocument)
	})
}

// Ingest handles POST /v1/ingest.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "documents must not be empty")
		return
	}
	if len(req.Documents) > maxBatchSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "too many documents in one request")
		return
	}

	report := s.ingest.Ingest(r.Context(), req.Documents)
	status := http.StatusOK
	if len(report.Succeeded) == 0 && len(report.Failed) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if t := req.SimilarityThreshold; req.TopN < 0 || (t != nil && (*t < 0 || *t > 1)) {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "top_n and similarity_threshold out of range")
		return
	}

	results, err := s.search.Query(r.Context(), req.Text, req.PartitionKey, searchuc.Options{
		TopN:                req.TopN,
		SimilarityThreshold: req.SimilarityThreshold,
		Filters:             req.Filters,
		Strict:              req.Strict,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]QueryResult, len(results))
	for i := range results {
		items[i] = queryResultFromCandidate(&results[i])
	}
	writeJSON(w, http.StatusOK, QueryResponse{Items: items, Total: len(items)})
}

// DeleteDocument handles DELETE /v1/partitions/{partition}/documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	partition := chi.URLParam(r, "partition")
	id := chi.URLParam(r, "id")
	if err := s.ingest.Delete(r.Context(), partition, id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message. Validation errors carry their own
// text; everything else is reduced to the sentinel message.
func safeDomainMessage(err error) string {
	var pie *domain.PermanentInputError
	if errors.As(err, &pie) || errors.Is(err, domain.ErrInvalidInput) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrVectorDimMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrTransientProvider,
		domain.ErrAllPathsFailed,
		context.DeadlineExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
