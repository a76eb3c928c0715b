package search

import (
	"context"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/search/result"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// Repository defines the storage contract for the query path.
type Repository interface {
	Count(ctx context.Context, set filter.Set) (int, error)
	List(ctx context.Context, set filter.Set, opts db.ListOptions) ([]trial.Record, error)
	NearestNeighbors(
		ctx context.Context, set filter.Set, vec []float32, version string, k int,
	) ([]result.Candidate, error)
	GetMany(ctx context.Context, ids []string) ([]trial.Record, error)
	Get(ctx context.Context, nctID string) (trial.Record, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
