package embedding

import (
	"context"

	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// Repository reads stale records and persists vectors.
type Repository interface {
	PendingEmbeddings(ctx context.Context, version, afterID string, limit int) ([]trial.Record, error)
	SaveEmbedding(ctx context.Context, nctID string, st trial.EmbeddingState) error
	MarkEmbeddingFailed(ctx context.Context, nctID, reason string) error
}
