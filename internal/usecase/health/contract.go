package health

import (
	"context"

	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// TrialCounter counts indexed trials.
type TrialCounter interface {
	Count(ctx context.Context, set filter.Set) (int, error)
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// CachePinger checks query-embedding cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}
