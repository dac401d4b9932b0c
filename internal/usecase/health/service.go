package health

import (
	"context"
	"sync"
	"time"

	"github.com/Aviyadav22/ParalegalAI/internal/version"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	ComponentVectorStore   = "vector_store"
	ComponentMetadataStore = "metadata_store"
	ComponentEmbedding     = "embedding"
)

// DefaultTimeout bounds every individual check.
const DefaultTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status  Status                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	vectors   Pinger
	metadata  Pinger
	embedding ProviderChecker
	timeout   time.Duration
}

// New creates a Service. embedding can be nil.
func New(vectors, metadata Pinger, embedding ProviderChecker) *Service {
	return &Service{vectors: vectors, metadata: metadata, embedding: embedding, timeout: DefaultTimeout}
}

// Check runs all component checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	probes := map[string]func(context.Context) error{
		ComponentVectorStore:   s.vectors.Ping,
		ComponentMetadataStore: s.metadata.Ping,
	}
	if s.embedding != nil {
		probes[ComponentEmbedding] = s.embedding.HealthCheck
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(probes))
	)
	for name, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			res := CheckOK
			if err := probe(ctx); err != nil {
				res = CheckError
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}
	status := Healthy
	switch {
	case failed == len(checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}
	return Report{Status: status, Version: version.Version, Checks: checks}
}
