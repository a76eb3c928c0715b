package canonical

import (
	"context"

	"github.com/kailas-cloud/trialdex/internal/domain/trial"
	"github.com/kailas-cloud/trialdex/internal/transport/ctgov"
)

// Feed pages through raw registry studies.
type Feed interface {
	FetchPage(ctx context.Context, pageToken string, pageSize int) (ctgov.Page, error)
}

// Repository persists canonical records.
type Repository interface {
	Upsert(ctx context.Context, rec *trial.Record) error
}
