package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewStoreWithDB(conn, 3), mock
}

func columnNames(vector bool) []string {
	cols := columns(vector)
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.(string)
	}
	return out
}

// recordRow renders a full record row in column order.
func recordRow(id string, vector bool) []driver.Value {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	row := []driver.Value{
		id, "Brief", "Official", "",
		"RECRUITING", "PHASE2", "INTERVENTIONAL",
		[]byte(`["Melanoma","Skin Cancer"]`), []byte(`[{"type":"DRUG","name":"Drug A"}]`),
		"summary", "",
		"Inclusion: adults", "ALL", "18 Years", "",
		18.0, nil, true,
		int64(120), "ESTIMATED",
		now, nil, now,
		"Acme", "INDUSTRY", []byte(`[]`),
		"canonical", "hash-1", "elig-1",
		"m@3", "hash-1", "CURRENT",
		int64(1), "", now,
		"EXTRACTED", []byte(`{"criteria":{"sex":"ALL","min_age_years":18,"max_age_years":null,"inclusion":["adults"],"exclusion":[],"flagged_terms":[]}}`), "model",
		"v1", "elig-1",
		now, int64(1), "",
		now, now,
	}
	if vector {
		row = append(row, []byte("[0.1,0.2,0.3]"))
	}
	return row
}

func TestGet_ScansFullRecord(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM "trials" WHERE \("nct_id" = \$1\)`).
		WithArgs("NCT001").
		WillReturnRows(sqlmock.NewRows(columnNames(true)).AddRow(recordRow("NCT001", true)...))

	rec, err := s.Get(context.Background(), "NCT001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.NCTID != "NCT001" || rec.Status != trial.StatusRecruiting {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Conditions) != 2 || rec.PrimaryCondition() != "Melanoma" {
		t.Errorf("conditions = %v", rec.Conditions)
	}
	if rec.MinAgeYears == nil || *rec.MinAgeYears != 18 || rec.MaxAgeYears != nil {
		t.Errorf("ages = %v/%v", rec.MinAgeYears, rec.MaxAgeYears)
	}
	if rec.EnrollmentCount == nil || *rec.EnrollmentCount != 120 {
		t.Errorf("enrollment = %v", rec.EnrollmentCount)
	}
	if rec.CompletionDate != nil {
		t.Errorf("completion = %v, want nil", rec.CompletionDate)
	}
	if len(rec.Embedding.Vector) != 3 {
		t.Errorf("vector = %v", rec.Embedding.Vector)
	}
	if rec.Extraction.State != eligibility.StateExtracted || rec.Extraction.Payload.Criteria == nil {
		t.Errorf("extraction = %+v", rec.Extraction)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM "trials"`).WillReturnRows(sqlmock.NewRows(columnNames(true)))

	_, err := s.Get(context.Background(), "NCT404")
	if !errors.Is(err, db.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestGetMany_PreservesOrder(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM "trials" WHERE \("nct_id" IN`).
		WillReturnRows(sqlmock.NewRows(columnNames(false)).
			AddRow(recordRow("NCT001", false)...).
			AddRow(recordRow("NCT002", false)...))

	recs, err := s.GetMany(context.Background(), []string{"NCT002", "NCT003", "NCT001"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(recs) != 2 || recs[0].NCTID != "NCT002" || recs[1].NCTID != "NCT001" {
		t.Fatalf("order = %v", ids(recs))
	}
}

func TestUpsert_OnConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "trials" .* ON CONFLICT \(nct_id\) DO UPDATE SET .*eligibility_state"?=CASE WHEN.*embedding_error"?=CASE WHEN trials.content_hash <> EXCLUDED.content_hash THEN '' ELSE trials.embedding_error END`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &trial.Record{
		NCTID: "NCT001", Status: trial.StatusRecruiting, Phase: trial.Phase2,
		StudyType: trial.StudyTypeInterventional, SponsorClass: trial.SponsorIndustry,
		Conditions: []string{"Melanoma"}, CanonicalText: "t", ContentHash: "h",
	}
	if err := s.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUpsert_WrapsDriverError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "trials"`).WillReturnError(errors.New("connection reset"))

	err := s.Upsert(context.Background(), &trial.Record{NCTID: "NCT001"})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpUpsert {
		t.Fatalf("err = %v, want db.Error{Op: UPSERT}", err)
	}
}

func TestSaveEmbedding_StaleHashIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "trials" SET .* WHERE \(\("nct_id" = \$\d+\) AND \("content_hash" = \$\d+\)\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SaveEmbedding(context.Background(), "NCT001", trial.EmbeddingState{
		Vector: []float32{1, 0, 0}, Version: "m@3", Hash: "old",
	})
	if !errors.Is(err, db.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestMarkEmbeddingFailed(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "trials" SET .*embedding_attempts \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkEmbeddingFailed(context.Background(), "NCT001", "boom"); err != nil {
		t.Fatalf("MarkEmbeddingFailed: %v", err)
	}
}

func TestSaveExtraction(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "trials" SET .*"eligibility_parsed".* WHERE \(\("nct_id" = \$\d+\) AND \("eligibility_hash" = \$\d+\)\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := s.SaveExtraction(context.Background(), "NCT001", eligibility.Extraction{
		State:   eligibility.StateNeedsReview,
		Payload: eligibility.Payload{RawResponse: "{}", Issues: []string{"missing key"}},
		Model:   "m", SchemaVersion: "v1", SourceHash: "h", ExtractedAt: &now, Attempts: 3,
	})
	if err != nil {
		t.Fatalf("SaveExtraction: %v", err)
	}
}

func TestSaveExtraction_StaleHashIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "trials" SET .* AND \("eligibility_hash" = \$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SaveExtraction(context.Background(), "NCT001", eligibility.Extraction{
		State: eligibility.StateExtracted, SchemaVersion: "v1", SourceHash: "old",
	})
	if !errors.Is(err, db.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestCount(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "trials" WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	set, _ := filter.New(map[string][]string{"status": {"RECRUITING"}})
	n, err := s.Count(context.Background(), set)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 7 {
		t.Errorf("count = %d, want 7", n)
	}
}

func TestList_ExcludesAndOrders(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`"nct_id" NOT IN .* ORDER BY "last_update_date" DESC NULLS LAST, "nct_id" ASC LIMIT .* OFFSET`).
		WillReturnRows(sqlmock.NewRows(columnNames(false)).AddRow(recordRow("NCT009", false)...))

	set, _ := filter.New(map[string][]string{"q": {"melanoma"}})
	recs, err := s.List(context.Background(), set, db.ListOptions{Exclude: []string{"NCT001"}, Offset: 20, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].NCTID != "NCT009" {
		t.Errorf("records = %v", ids(recs))
	}
}

func TestNearestNeighbors(t *testing.T) {
	s, mock := newMockStore(t)
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT "nct_id", 1 - \(embedding <=> \$1\) AS "similarity", "last_update_date", .* AS "keyword_hit" FROM "trials"`).
		WillReturnRows(sqlmock.NewRows([]string{"nct_id", "similarity", "last_update_date", "keyword_hit"}).
			AddRow("NCT001", 0.93, updated, true).
			AddRow("NCT002", 0.81, nil, false))

	set, _ := filter.New(map[string][]string{"q": {"melanoma"}, "phase": {"PHASE3"}})
	cands, err := s.NearestNeighbors(context.Background(), set, []float32{1, 0, 0}, "m@3", 200)
	if err != nil {
		t.Fatalf("NearestNeighbors: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("candidates = %d, want 2", len(cands))
	}
	if !cands[0].KeywordHit || cands[1].KeywordHit {
		t.Errorf("keyword hits = %v/%v", cands[0].KeywordHit, cands[1].KeywordHit)
	}
	if cands[0].LastUpdate == nil || cands[1].LastUpdate != nil {
		t.Errorf("last updates = %v/%v", cands[0].LastUpdate, cands[1].LastUpdate)
	}
}

func TestGroupCount_RejectsUnknownDimension(t *testing.T) {
	s, mock := newMockStore(t)
	_, err := s.GroupCount(context.Background(), filter.Set{}, filter.Key("conditions; DROP"))
	if !errors.Is(err, domain.ErrInjectionGuard) {
		t.Fatalf("err = %v, want ErrInjectionGuard", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected store call: %v", err)
	}
}

func TestGroupCount(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT primary_condition AS "code", COUNT\(\*\) AS "n" FROM "trials" GROUP BY 1`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "n"}).AddRow("Melanoma", 4).AddRow("", 1))

	counts, err := s.GroupCount(context.Background(), filter.Set{}, filter.KeyCondition)
	if err != nil {
		t.Fatalf("GroupCount: %v", err)
	}
	if len(counts) != 2 || counts[0].Count != 4 || counts[1].Code != "" {
		t.Errorf("counts = %+v", counts)
	}
}

func TestEnrollmentStats(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\("enrollment_count"\), AVG\("enrollment_count"\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "min", "max", "sum"}).
			AddRow(3, 40.0, 10, 80, 120))

	st, err := s.EnrollmentStats(context.Background(), filter.Set{})
	if err != nil {
		t.Fatalf("EnrollmentStats: %v", err)
	}
	if st.Reported != 3 || st.Sum != 120 || *st.Min != 10 || *st.Max != 80 || *st.Avg != 40 {
		t.Errorf("stats = %+v", st)
	}
}

func ids(recs []trial.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.NCTID
	}
	return out
}
