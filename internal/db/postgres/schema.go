package postgres

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/trialdex/internal/db"
)

const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS trials (
	nct_id                     TEXT PRIMARY KEY,
	brief_title                TEXT NOT NULL DEFAULT '',
	official_title             TEXT NOT NULL DEFAULT '',
	acronym                    TEXT NOT NULL DEFAULT '',
	status                     TEXT NOT NULL,
	phase                      TEXT NOT NULL,
	study_type                 TEXT NOT NULL,
	conditions                 JSONB NOT NULL DEFAULT '[]'::jsonb,
	primary_condition          TEXT NOT NULL DEFAULT '',
	interventions              JSONB NOT NULL DEFAULT '[]'::jsonb,
	brief_summary              TEXT NOT NULL DEFAULT '',
	detailed_description       TEXT NOT NULL DEFAULT '',
	eligibility_criteria       TEXT NOT NULL DEFAULT '',
	eligibility_sex            TEXT NOT NULL DEFAULT '',
	min_age                    TEXT NOT NULL DEFAULT '',
	max_age                    TEXT NOT NULL DEFAULT '',
	min_age_years              DOUBLE PRECISION,
	max_age_years              DOUBLE PRECISION,
	healthy_volunteers         BOOLEAN,
	enrollment_count           INTEGER,
	enrollment_type            TEXT NOT NULL DEFAULT '',
	start_date                 DATE,
	completion_date            DATE,
	last_update_date           DATE,
	lead_sponsor               TEXT NOT NULL DEFAULT '',
	lead_sponsor_class         TEXT NOT NULL,
	locations                  JSONB NOT NULL DEFAULT '[]'::jsonb,
	canonical_text             TEXT NOT NULL,
	content_hash               TEXT NOT NULL,
	eligibility_hash           TEXT NOT NULL DEFAULT '',
	embedding                  vector(%d),
	embedding_version          TEXT NOT NULL DEFAULT '',
	embedding_hash             TEXT NOT NULL DEFAULT '',
	embedding_status           TEXT NOT NULL DEFAULT 'PENDING',
	embedding_attempts         INTEGER NOT NULL DEFAULT 0,
	embedding_error            TEXT NOT NULL DEFAULT '',
	embedded_at                TIMESTAMPTZ,
	eligibility_state          TEXT NOT NULL DEFAULT 'PENDING',
	eligibility_parsed         JSONB,
	eligibility_model          TEXT NOT NULL DEFAULT '',
	eligibility_schema_version TEXT NOT NULL DEFAULT '',
	eligibility_extracted_hash TEXT NOT NULL DEFAULT '',
	eligibility_extracted_at   TIMESTAMPTZ,
	eligibility_attempts       INTEGER NOT NULL DEFAULT 0,
	eligibility_error          TEXT NOT NULL DEFAULT '',
	ingested_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS trials_status_idx ON trials (status);
CREATE INDEX IF NOT EXISTS trials_phase_idx ON trials (phase);
CREATE INDEX IF NOT EXISTS trials_study_type_idx ON trials (study_type);
CREATE INDEX IF NOT EXISTS trials_sponsor_class_idx ON trials (lead_sponsor_class);
CREATE INDEX IF NOT EXISTS trials_primary_condition_idx ON trials (primary_condition);
CREATE INDEX IF NOT EXISTS trials_start_date_idx ON trials (start_date);
CREATE INDEX IF NOT EXISTS trials_last_update_idx ON trials (last_update_date DESC NULLS LAST, nct_id);
CREATE INDEX IF NOT EXISTS trials_conditions_gin ON trials USING GIN (conditions);
CREATE INDEX IF NOT EXISTS trials_embedding_hnsw ON trials USING hnsw (embedding vector_cosine_ops);
`

// EnsureSchema creates the pgvector extension, the trials table and its indexes.
// Every statement is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(schemaTemplate, s.dims)); err != nil {
		return &db.Error{Op: db.OpMigrate, Err: err}
	}
	return nil
}
