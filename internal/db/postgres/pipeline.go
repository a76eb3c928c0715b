package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// PendingEmbeddings returns up to limit records after afterID (by nct_id) whose vector is
// missing, failed, or stale against the content hash or version.
func (s *Store) PendingEmbeddings(ctx context.Context, version, afterID string, limit int) ([]trial.Record, error) {
	ds := s.from().Select(columns(false)...).
		Where(
			goqu.C("nct_id").Gt(afterID),
			goqu.Or(
				goqu.C("embedding_status").Neq(string(trial.EmbeddingCurrent)),
				goqu.C("embedding_hash").Neq(goqu.I("content_hash")),
				goqu.C("embedding_version").Neq(version),
			),
		).
		Order(goqu.C("nct_id").Asc()).
		Limit(uint(limit))
	return s.records(ctx, db.OpPending, ds, false)
}

// SaveEmbedding stores a current vector. The write only applies while the record still
// carries the content hash the vector was computed at.
func (s *Store) SaveEmbedding(ctx context.Context, nctID string, st trial.EmbeddingState) error {
	embeddedAt := time.Now().UTC()
	if st.EmbeddedAt != nil {
		embeddedAt = *st.EmbeddedAt
	}
	ds := s.q.Update(table).Prepared(true).
		Set(goqu.Record{
			"embedding":          pgvector.NewVector(st.Vector),
			"embedding_version":  st.Version,
			"embedding_hash":     st.Hash,
			"embedding_status":   string(trial.EmbeddingCurrent),
			"embedding_attempts": goqu.L("embedding_attempts + 1"),
			"embedding_error":    "",
			"embedded_at":        embeddedAt,
		}).
		Where(goqu.C("nct_id").Eq(nctID), goqu.C("content_hash").Eq(st.Hash))
	n, err := s.exec(ctx, db.OpSaveEmbedding, ds)
	if err != nil {
		return err
	}
	return requireRow(n)
}

// MarkEmbeddingFailed records a failed attempt without touching any stored vector.
func (s *Store) MarkEmbeddingFailed(ctx context.Context, nctID, reason string) error {
	ds := s.q.Update(table).Prepared(true).
		Set(goqu.Record{
			"embedding_status":   string(trial.EmbeddingFailed),
			"embedding_attempts": goqu.L("embedding_attempts + 1"),
			"embedding_error":    reason,
		}).
		Where(goqu.C("nct_id").Eq(nctID))
	n, err := s.exec(ctx, db.OpSaveEmbedding, ds)
	if err != nil {
		return err
	}
	return requireRow(n)
}

// PendingExtractions returns up to limit records after afterID (by nct_id) whose
// extraction is pending or stale against the eligibility hash or schema version.
func (s *Store) PendingExtractions(ctx context.Context, schemaVersion, afterID string, limit int) ([]trial.Record, error) {
	ds := s.from().Select(columns(false)...).
		Where(
			goqu.C("nct_id").Gt(afterID),
			goqu.Or(
				goqu.C("eligibility_state").Eq(string(eligibility.StatePending)),
				goqu.C("eligibility_extracted_hash").Neq(goqu.I("eligibility_hash")),
				goqu.C("eligibility_schema_version").Neq(schemaVersion),
			),
		).
		Order(goqu.C("nct_id").Asc()).
		Limit(uint(limit))
	return s.records(ctx, db.OpPending, ds, false)
}

// SaveExtraction persists an extraction outcome with its provenance. The write only
// applies while the record still carries the eligibility hash the extraction was run at.
func (s *Store) SaveExtraction(ctx context.Context, nctID string, ext eligibility.Extraction) error {
	row := goqu.Record{
		"eligibility_state":          string(ext.State),
		"eligibility_model":          ext.Model,
		"eligibility_schema_version": ext.SchemaVersion,
		"eligibility_extracted_hash": ext.SourceHash,
		"eligibility_extracted_at":   nullable(ext.ExtractedAt),
		"eligibility_attempts":       ext.Attempts,
		"eligibility_error":          ext.Error,
	}
	if ext.Payload.Criteria != nil || ext.Payload.RawResponse != "" || len(ext.Payload.Issues) > 0 {
		payload, err := jsonText(ext.Payload)
		if err != nil {
			return &db.Error{Op: db.OpSaveExtraction, Err: err}
		}
		row["eligibility_parsed"] = payload
	}

	ds := s.q.Update(table).Prepared(true).Set(row).
		Where(goqu.C("nct_id").Eq(nctID), goqu.C("eligibility_hash").Eq(ext.SourceHash))
	n, err := s.exec(ctx, db.OpSaveExtraction, ds)
	if err != nil {
		return err
	}
	return requireRow(n)
}
