package match

import (
	"context"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// Repository lists candidate trials.
type Repository interface {
	List(ctx context.Context, set filter.Set, opts db.ListOptions) ([]trial.Record, error)
}
