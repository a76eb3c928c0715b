package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// recordColumns are read by every record query, in scan order.
var recordColumns = []any{
	"nct_id", "brief_title", "official_title", "acronym",
	"status", "phase", "study_type",
	"conditions", "interventions",
	"brief_summary", "detailed_description",
	"eligibility_criteria", "eligibility_sex", "min_age", "max_age",
	"min_age_years", "max_age_years", "healthy_volunteers",
	"enrollment_count", "enrollment_type",
	"start_date", "completion_date", "last_update_date",
	"lead_sponsor", "lead_sponsor_class", "locations",
	"canonical_text", "content_hash", "eligibility_hash",
	"embedding_version", "embedding_hash", "embedding_status",
	"embedding_attempts", "embedding_error", "embedded_at",
	"eligibility_state", "eligibility_parsed", "eligibility_model",
	"eligibility_schema_version", "eligibility_extracted_hash",
	"eligibility_extracted_at", "eligibility_attempts", "eligibility_error",
	"ingested_at", "updated_at",
}

// columns returns the record columns, with the embedding column appended when vector is set.
func columns(vector bool) []any {
	if !vector {
		return recordColumns
	}
	cols := make([]any, 0, len(recordColumns)+1)
	cols = append(cols, recordColumns...)
	return append(cols, "embedding")
}

// Upsert inserts a record or refreshes its source attributes, keyed on nct_id.
// Vector and extraction payloads are never written here. A changed content hash resets
// the embedding status and error; a changed eligibility hash resets the extraction state to the
// state the incoming record carries.
func (s *Store) Upsert(ctx context.Context, rec *trial.Record) error {
	row, err := upsertRow(rec)
	if err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}

	update := goqu.Record{"updated_at": goqu.L("now()")}
	for col := range row {
		switch col {
		case "nct_id", "eligibility_state":
		default:
			update[col] = goqu.L("EXCLUDED." + col)
		}
	}
	update["embedding_status"] = goqu.L(
		"CASE WHEN trials.content_hash <> EXCLUDED.content_hash THEN ? ELSE trials.embedding_status END",
		string(trial.EmbeddingPending))
	update["embedding_attempts"] = goqu.L(
		"CASE WHEN trials.content_hash <> EXCLUDED.content_hash THEN 0 ELSE trials.embedding_attempts END")
	update["embedding_error"] = goqu.L(
		"CASE WHEN trials.content_hash <> EXCLUDED.content_hash THEN '' ELSE trials.embedding_error END")
	update["eligibility_state"] = goqu.L(
		"CASE WHEN trials.eligibility_hash <> EXCLUDED.eligibility_hash THEN EXCLUDED.eligibility_state ELSE trials.eligibility_state END")
	update["eligibility_attempts"] = goqu.L(
		"CASE WHEN trials.eligibility_hash <> EXCLUDED.eligibility_hash THEN 0 ELSE trials.eligibility_attempts END")

	ds := s.q.Insert(table).Prepared(true).
		Rows(row).
		OnConflict(goqu.DoUpdate("nct_id", update))
	if _, err := s.exec(ctx, db.OpUpsert, ds); err != nil {
		return err
	}
	return nil
}

func upsertRow(rec *trial.Record) (goqu.Record, error) {
	conditions, err := jsonText(nonNil(rec.Conditions))
	if err != nil {
		return nil, err
	}
	interventions, err := jsonText(nonNil(rec.Interventions))
	if err != nil {
		return nil, err
	}
	locations, err := jsonText(nonNil(rec.Locations))
	if err != nil {
		return nil, err
	}
	state := rec.Extraction.State
	if state == "" {
		state = eligibility.StatePending
	}

	return goqu.Record{
		"nct_id":               rec.NCTID,
		"brief_title":          rec.BriefTitle,
		"official_title":       rec.OfficialTitle,
		"acronym":              rec.Acronym,
		"status":               string(rec.Status),
		"phase":                string(rec.Phase),
		"study_type":           string(rec.StudyType),
		"conditions":           conditions,
		"primary_condition":    rec.PrimaryCondition(),
		"interventions":        interventions,
		"brief_summary":        rec.BriefSummary,
		"detailed_description": rec.DetailedDescription,
		"eligibility_criteria": rec.EligibilityCriteria,
		"eligibility_sex":      rec.EligibilitySex,
		"min_age":              rec.MinAge,
		"max_age":              rec.MaxAge,
		"min_age_years":        nullable(rec.MinAgeYears),
		"max_age_years":        nullable(rec.MaxAgeYears),
		"healthy_volunteers":   nullable(rec.HealthyVolunteers),
		"enrollment_count":     nullable(rec.EnrollmentCount),
		"enrollment_type":      rec.EnrollmentType,
		"start_date":           nullable(rec.StartDate),
		"completion_date":      nullable(rec.CompletionDate),
		"last_update_date":     nullable(rec.LastUpdate),
		"lead_sponsor":         rec.Sponsor,
		"lead_sponsor_class":   string(rec.SponsorClass),
		"locations":            locations,
		"canonical_text":       rec.CanonicalText,
		"content_hash":         rec.ContentHash,
		"eligibility_hash":     rec.EligibilityHash,
		"eligibility_state":    string(state),
	}, nil
}

// Get returns one record including its vector.
func (s *Store) Get(ctx context.Context, nctID string) (trial.Record, error) {
	ds := s.from().Select(columns(true)...).Where(goqu.C("nct_id").Eq(nctID))
	recs, err := s.records(ctx, db.OpGet, ds, true)
	if err != nil {
		return trial.Record{}, err
	}
	if len(recs) == 0 {
		return trial.Record{}, db.ErrRecordNotFound
	}
	return recs[0], nil
}

// GetMany returns the records for ids in the order given. Missing ids are skipped.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]trial.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ds := s.from().Select(columns(false)...).Where(goqu.C("nct_id").In(ids))
	recs, err := s.records(ctx, db.OpGet, ds, false)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]trial.Record, len(recs))
	for _, r := range recs {
		byID[r.NCTID] = r
	}
	out := make([]trial.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) records(ctx context.Context, op string, ds sqlBuilder, vector bool) ([]trial.Record, error) {
	rows, err := s.query(ctx, op, ds)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []trial.Record
	for rows.Next() {
		rec, err := scanRecord(rows, vector)
		if err != nil {
			return nil, &db.Error{Op: op, Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: op, Err: err}
	}
	return out, nil
}

func scanRecord(rows *sql.Rows, vector bool) (trial.Record, error) {
	var (
		r                                       trial.Record
		status, phase, studyType, sponsorClass  string
		conditions, interventions, locations    []byte
		minYears, maxYears                      sql.NullFloat64
		healthy                                 sql.NullBool
		enrollment                              sql.NullInt64
		start, completion, lastUpdate, embedded sql.NullTime
		embStatus, extState                     string
		parsed                                  []byte
		extractedAt                             sql.NullTime
		vec                                     nullVector
	)
	dest := []any{
		&r.NCTID, &r.BriefTitle, &r.OfficialTitle, &r.Acronym,
		&status, &phase, &studyType,
		&conditions, &interventions,
		&r.BriefSummary, &r.DetailedDescription,
		&r.EligibilityCriteria, &r.EligibilitySex, &r.MinAge, &r.MaxAge,
		&minYears, &maxYears, &healthy,
		&enrollment, &r.EnrollmentType,
		&start, &completion, &lastUpdate,
		&r.Sponsor, &sponsorClass, &locations,
		&r.CanonicalText, &r.ContentHash, &r.EligibilityHash,
		&r.Embedding.Version, &r.Embedding.Hash, &embStatus,
		&r.Embedding.Attempts, &r.Embedding.Error, &embedded,
		&extState, &parsed, &r.Extraction.Model,
		&r.Extraction.SchemaVersion, &r.Extraction.SourceHash,
		&extractedAt, &r.Extraction.Attempts, &r.Extraction.Error,
		&r.IngestedAt, &r.UpdatedAt,
	}
	if vector {
		dest = append(dest, &vec)
	}
	if err := rows.Scan(dest...); err != nil {
		return trial.Record{}, fmt.Errorf("scan record: %w", err)
	}

	r.Status = trial.Status(status)
	r.Phase = trial.Phase(phase)
	r.StudyType = trial.StudyType(studyType)
	r.SponsorClass = trial.SponsorClass(sponsorClass)
	r.Embedding.Status = trial.EmbeddingStatus(embStatus)
	r.Extraction.State = eligibility.State(extState)

	if err := decodeJSON(conditions, &r.Conditions); err != nil {
		return trial.Record{}, fmt.Errorf("decode conditions: %w", err)
	}
	if err := decodeJSON(interventions, &r.Interventions); err != nil {
		return trial.Record{}, fmt.Errorf("decode interventions: %w", err)
	}
	if err := decodeJSON(locations, &r.Locations); err != nil {
		return trial.Record{}, fmt.Errorf("decode locations: %w", err)
	}
	if err := decodeJSON(parsed, &r.Extraction.Payload); err != nil {
		return trial.Record{}, fmt.Errorf("decode extraction: %w", err)
	}

	r.MinAgeYears = floatPtr(minYears)
	r.MaxAgeYears = floatPtr(maxYears)
	if healthy.Valid {
		r.HealthyVolunteers = &healthy.Bool
	}
	if enrollment.Valid {
		n := int(enrollment.Int64)
		r.EnrollmentCount = &n
	}
	r.StartDate = timePtr(start)
	r.CompletionDate = timePtr(completion)
	r.LastUpdate = timePtr(lastUpdate)
	r.Embedding.EmbeddedAt = timePtr(embedded)
	r.Extraction.ExtractedAt = timePtr(extractedAt)
	if vec.valid {
		r.Embedding.Vector = vec.v.Slice()
	}
	return r, nil
}

// nullVector scans a nullable vector column.
type nullVector struct {
	v     pgvector.Vector
	valid bool
}

func (n *nullVector) Scan(src any) error {
	if src == nil {
		n.valid = false
		return nil
	}
	n.valid = true
	return n.v.Scan(src)
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(b), nil
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// nullable turns a nil pointer into SQL NULL and dereferences the rest.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// requireRow maps an update that matched no row to db.ErrRecordNotFound.
func requireRow(n int64) error {
	if n == 0 {
		return db.ErrRecordNotFound
	}
	return nil
}
