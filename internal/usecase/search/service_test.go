package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/db/memory"
	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/search/mode"
	"github.com/kailas-cloud/trialdex/internal/domain/search/request"
	"github.com/kailas-cloud/trialdex/internal/domain/search/result"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

const testVersion = "test-model@3"

// --- Mocks ---

type mockEmbedder struct {
	vec     []float32
	err     error
	release chan struct{}
	calls   int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

// --- Helpers ---

func month(y int, m time.Month) *time.Time {
	t := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

type fixture struct {
	rec trial.Record
	vec []float32
}

// seedStore loads five trials:
//
//	NCT00000001 lung cancer, RECRUITING, vector [1 0 0], updated 2024-01
//	NCT00000002 melanoma, COMPLETED, vector [0.9 0.1 0], updated 2023-01
//	NCT00000003 lung cancer, RECRUITING, no vector, updated 2024-06
//	NCT00000004 diabetes, RECRUITING, vector [0 1 0], updated 2022-01
//	NCT00000005 lung cancer, O'Brien sponsor, RECRUITING, no vector, update unknown
func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	fixtures := []fixture{
		{trial.Record{NCTID: "NCT00000001", BriefTitle: "Immunotherapy after surgery",
			Conditions: []string{"Lung Cancer"}, Status: trial.StatusRecruiting, LastUpdate: month(2024, 1)},
			[]float32{1, 0, 0}},
		{trial.Record{NCTID: "NCT00000002", BriefTitle: "Melanoma vaccine",
			Conditions: []string{"Melanoma"}, Status: trial.StatusCompleted, LastUpdate: month(2023, 1)},
			[]float32{0.9, 0.1, 0}},
		{trial.Record{NCTID: "NCT00000003", BriefTitle: "Lung cancer screening with CT",
			Conditions: []string{"Lung Cancer"}, Status: trial.StatusRecruiting, LastUpdate: month(2024, 6)},
			nil},
		{trial.Record{NCTID: "NCT00000004", BriefTitle: "Metformin dosing",
			Conditions: []string{"Type 2 Diabetes"}, Status: trial.StatusRecruiting, LastUpdate: month(2022, 1)},
			[]float32{0, 1, 0}},
		{trial.Record{NCTID: "NCT00000005", BriefTitle: "Lung cancer survivorship",
			Sponsor: "O'Brien Foundation", Conditions: []string{"Lung Cancer"}, Status: trial.StatusRecruiting},
			nil},
	}
	for i := range fixtures {
		rec := fixtures[i].rec
		rec.ContentHash = "h:" + rec.NCTID
		if err := store.Upsert(ctx, &rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if fixtures[i].vec == nil {
			continue
		}
		st := trial.EmbeddingState{Vector: fixtures[i].vec, Version: testVersion, Hash: rec.ContentHash}
		if err := store.SaveEmbedding(ctx, rec.NCTID, st); err != nil {
			t.Fatalf("save embedding: %v", err)
		}
	}
	return store
}

func newService(store *memory.Store, emb *mockEmbedder) *Service {
	return New(store, emb, Config{Version: testVersion}, zap.NewNop())
}

func mustRequest(t *testing.T, params map[string][]string, page, size int) request.Request {
	t.Helper()
	set, err := filter.New(params)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	req, err := request.New(set, page, size)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return req
}

func ids(p result.Page) []string {
	out := make([]string, len(p.Items))
	for i, h := range p.Items {
		out[i] = h.Record.NCTID
	}
	return out
}

func assertIDs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

// --- Tests ---

func TestSearch_HybridMergeOrder(t *testing.T) {
	svc := newService(seedStore(t), &mockEmbedder{vec: []float32{1, 0, 0}})
	page, err := svc.Search(context.Background(), mustRequest(t, map[string][]string{"q": {"lung cancer"}}, 1, 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Mode != mode.Hybrid || page.Degraded {
		t.Errorf("mode = %q degraded = %v", page.Mode, page.Degraded)
	}
	// |V| = 3, |K| = 3, |V ∩ K| = 1.
	if page.Total != 5 {
		t.Errorf("Total = %d, want 5", page.Total)
	}
	assertIDs(t, ids(page), []string{"NCT00000001", "NCT00000002", "NCT00000004", "NCT00000003", "NCT00000005"})

	wantSources := []result.MatchSource{
		result.MatchBoth, result.MatchVector, result.MatchVector, result.MatchKeyword, result.MatchKeyword,
	}
	for i, h := range page.Items {
		if h.Source != wantSources[i] {
			t.Errorf("item %d source = %q, want %q", i, h.Source, wantSources[i])
		}
		if (h.Similarity != nil) != (i < 3) {
			t.Errorf("item %d similarity presence = %v", i, h.Similarity != nil)
		}
	}
}

func TestSearch_Deterministic(t *testing.T) {
	svc := newService(seedStore(t), &mockEmbedder{vec: []float32{1, 0, 0}})
	req := mustRequest(t, map[string][]string{"q": {"lung cancer"}}, 1, 20)
	first, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 5 {
		again, err := svc.Search(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertIDs(t, ids(again), ids(first))
	}
}

func TestSearch_PagesPartitionTheMergedSequence(t *testing.T) {
	svc := newService(seedStore(t), &mockEmbedder{vec: []float32{1, 0, 0}})
	params := map[string][]string{"q": {"lung cancer"}}

	var all []string
	for p := 1; p <= 3; p++ {
		page, err := svc.Search(context.Background(), mustRequest(t, params, p, 2))
		if err != nil {
			t.Fatalf("page %d: %v", p, err)
		}
		if page.Total != 5 {
			t.Errorf("page %d Total = %d, want 5", p, page.Total)
		}
		all = append(all, ids(page)...)
	}
	assertIDs(t, all, []string{"NCT00000001", "NCT00000002", "NCT00000004", "NCT00000003", "NCT00000005"})

	past, err := svc.Search(context.Background(), mustRequest(t, params, 4, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(past.Items) != 0 || past.Items == nil {
		t.Errorf("page past the end = %v, want empty non-nil", past.Items)
	}
}

func TestSearch_StatusFilterWithText(t *testing.T) {
	svc := newService(seedStore(t), &mockEmbedder{vec: []float32{1, 0, 0}})
	req := mustRequest(t, map[string][]string{"q": {"lung cancer"}, "status": {"recruiting"}}, 1, 20)
	page, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 4 {
		t.Errorf("Total = %d, want 4", page.Total)
	}
	assertIDs(t, ids(page), []string{"NCT00000001", "NCT00000004", "NCT00000003", "NCT00000005"})
	for _, h := range page.Items {
		if h.Record.Status != trial.StatusRecruiting {
			t.Errorf("%s has status %s", h.Record.NCTID, h.Record.Status)
		}
	}
}

func TestSearch_DegradesWhenEmbeddingFails(t *testing.T) {
	emb := &mockEmbedder{err: domain.NewTransient("embedding", errors.New("503"))}
	svc := newService(seedStore(t), emb)
	page, err := svc.Search(context.Background(), mustRequest(t, map[string][]string{"q": {"lung cancer"}}, 1, 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !page.Degraded || page.Mode != mode.Keyword {
		t.Errorf("mode = %q degraded = %v, want keyword degraded", page.Mode, page.Degraded)
	}
	if page.Total != 3 {
		t.Errorf("Total = %d, want 3", page.Total)
	}
	assertIDs(t, ids(page), []string{"NCT00000003", "NCT00000001", "NCT00000005"})
	for _, h := range page.Items {
		if h.Similarity != nil {
			t.Errorf("%s carries a similarity in keyword mode", h.Record.NCTID)
		}
	}
}

func TestSearch_TimeoutDiscardsLateEmbedding(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0, 0}, release: make(chan struct{})}
	svc := New(seedStore(t), emb, Config{Version: testVersion, QueryTimeout: 20 * time.Millisecond}, zap.NewNop())
	defer close(emb.release)

	_, err := svc.Search(context.Background(), mustRequest(t, map[string][]string{"q": {"lung cancer"}}, 1, 20))
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestSearch_QuoteInTextIsPlainData(t *testing.T) {
	svc := newService(seedStore(t), &mockEmbedder{vec: []float32{0, 0, 1}})
	page, err := svc.Search(context.Background(), mustRequest(t, map[string][]string{"q": {"O'Brien"}}, 1, 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, h := range page.Items {
		if h.Record.NCTID == "NCT00000005" {
			found = true
			if h.Source != result.MatchKeyword {
				t.Errorf("source = %q, want keyword", h.Source)
			}
		}
	}
	if !found {
		t.Errorf("O'Brien trial missing from %v", ids(page))
	}
}

func TestSearch_BrowseWithoutText(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0, 0}}
	svc := newService(seedStore(t), emb)
	page, err := svc.Search(context.Background(), mustRequest(t, nil, 1, 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Mode != mode.Browse {
		t.Errorf("mode = %q, want browse", page.Mode)
	}
	if page.Total != 5 {
		t.Errorf("Total = %d, want 5", page.Total)
	}
	assertIDs(t, ids(page), []string{"NCT00000003", "NCT00000001", "NCT00000002", "NCT00000004", "NCT00000005"})
	if emb.calls != 0 {
		t.Errorf("embedder called %d times without free text", emb.calls)
	}
	for _, h := range page.Items {
		if h.Source != result.MatchFilter {
			t.Errorf("source = %q, want filter", h.Source)
		}
	}
}

func TestSearch_ZeroResults(t *testing.T) {
	svc := newService(seedStore(t), &mockEmbedder{vec: []float32{1, 0, 0}})
	req := mustRequest(t, map[string][]string{"status": {"WITHDRAWN"}}, 1, 20)
	page, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 0 || page.Items == nil || len(page.Items) != 0 {
		t.Errorf("got total %d items %v, want empty page", page.Total, page.Items)
	}
}

func TestGet(t *testing.T) {
	svc := newService(seedStore(t), &mockEmbedder{})

	rec, err := svc.Get(context.Background(), " nct00000003 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.NCTID != "NCT00000003" {
		t.Errorf("NCTID = %q", rec.NCTID)
	}

	if _, err := svc.Get(context.Background(), "NCT09999999"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
