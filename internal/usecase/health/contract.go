package health

import "context"

// Pinger is a store that can report reachability: the Redis vector store or the
// SQLite metadata store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker verifies the embedding provider answers with the configured credential.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
