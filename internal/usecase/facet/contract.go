package facet

import (
	"context"

	domfacet "github.com/kailas-cloud/trialdex/internal/domain/facet"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
)

// Repository defines the aggregation queries the facet engine runs.
type Repository interface {
	Count(ctx context.Context, set filter.Set) (int, error)
	GroupCount(ctx context.Context, set filter.Set, dim filter.Key) ([]domfacet.Count, error)
	TopSponsors(ctx context.Context, set filter.Set, n int) ([]domfacet.Count, error)
	TopInterventions(ctx context.Context, set filter.Set, n int) ([]domfacet.Count, error)
	EnrollmentStats(ctx context.Context, set filter.Set) (domfacet.EnrollmentStats, error)
}
