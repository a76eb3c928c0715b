package eligibility

import (
	"context"

	"github.com/kailas-cloud/trialdex/internal/domain"
	domelig "github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// Caller sends a conversation to a JSON-producing language model.
type Caller interface {
	Complete(ctx context.Context, messages []domain.Message) (string, error)
	Model() string
}

// Repository reads records needing extraction and persists outcomes.
type Repository interface {
	PendingExtractions(ctx context.Context, schemaVersion, afterID string, limit int) ([]trial.Record, error)
	SaveExtraction(ctx context.Context, nctID string, ext domelig.Extraction) error
}
