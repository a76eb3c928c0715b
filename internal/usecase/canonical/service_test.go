package canonical

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/db/memory"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
	"github.com/kailas-cloud/trialdex/internal/transport/ctgov"
)

// --- Mocks ---

type mockFeed struct {
	pages  []ctgov.Page
	calls  int
	tokens []string
	sizes  []int
	err    error
}

func (m *mockFeed) FetchPage(_ context.Context, token string, size int) (ctgov.Page, error) {
	m.tokens = append(m.tokens, token)
	m.sizes = append(m.sizes, size)
	if m.err != nil {
		return ctgov.Page{}, m.err
	}
	if m.calls >= len(m.pages) {
		return ctgov.Page{}, nil
	}
	p := m.pages[m.calls]
	m.calls++
	return p, nil
}

type failingRepo struct {
	inner   Repository
	failIDs map[string]bool
}

func (r *failingRepo) Upsert(ctx context.Context, rec *trial.Record) error {
	if r.failIDs[rec.NCTID] {
		return errors.New("connection reset")
	}
	return r.inner.Upsert(ctx, rec)
}

// --- Tests ---

func TestIngest_PagesUntilTokenExhausted(t *testing.T) {
	feed := &mockFeed{pages: []ctgov.Page{
		{Studies: []ctgov.Study{study("NCT00000001", "a"), study("NCT00000002", "b")}, NextPageToken: "p2"},
		{Studies: []ctgov.Study{study("NCT00000003", "c"), study("", "no id")}},
	}}
	store := memory.NewStore()
	rep, err := New(feed, store, zap.NewNop()).WithPageSize(2).Ingest(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rep.Fetched != 4 || rep.Upserted != 3 || rep.Rejected != 1 || rep.Failed != 0 || rep.Pages != 2 {
		t.Errorf("report = %+v", rep)
	}
	if len(feed.tokens) != 2 || feed.tokens[0] != "" || feed.tokens[1] != "p2" {
		t.Errorf("tokens = %q", feed.tokens)
	}
	if n, _ := store.Count(context.Background(), filter.Set{}); n != 3 {
		t.Errorf("stored = %d, want 3", n)
	}
}

func TestIngest_StopsOnEmptyPage(t *testing.T) {
	feed := &mockFeed{pages: []ctgov.Page{{NextPageToken: "ignored"}}}
	rep, err := New(feed, memory.NewStore(), zap.NewNop()).Ingest(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rep.Fetched != 0 || feed.calls != 1 {
		t.Errorf("report = %+v, calls = %d", rep, feed.calls)
	}
}

func TestIngest_ReingestionUpsertsOnIdentity(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	first := &mockFeed{pages: []ctgov.Page{{Studies: []ctgov.Study{study("NCT00000001", "First title")}}}}
	second := &mockFeed{pages: []ctgov.Page{{Studies: []ctgov.Study{study("NCT00000001", "Second title")}}}}

	if _, err := New(first, store, zap.NewNop()).Ingest(ctx, Options{}); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if _, err := New(second, store, zap.NewNop()).Ingest(ctx, Options{}); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if n, _ := store.Count(ctx, filter.Set{}); n != 1 {
		t.Fatalf("stored = %d, want 1", n)
	}
	rec, err := store.Get(ctx, "NCT00000001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.BriefTitle != "Second title" {
		t.Errorf("BriefTitle = %q", rec.BriefTitle)
	}
}

func TestIngest_LimitTruncates(t *testing.T) {
	var studies []ctgov.Study
	for i := 1; i <= 5; i++ {
		studies = append(studies, study(fmt.Sprintf("NCT%08d", i), "t"))
	}
	feed := &mockFeed{pages: []ctgov.Page{{Studies: studies, NextPageToken: "more"}}}
	rep, err := New(feed, memory.NewStore(), zap.NewNop()).WithPageSize(100).Ingest(context.Background(), Options{Limit: 3})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rep.Fetched != 3 || rep.Upserted != 3 {
		t.Errorf("report = %+v", rep)
	}
	if feed.sizes[0] != 3 {
		t.Errorf("requested page size = %d, want 3", feed.sizes[0])
	}
	if feed.calls != 1 {
		t.Errorf("calls = %d, want 1", feed.calls)
	}
}

func TestIngest_UpsertFailureDoesNotAbort(t *testing.T) {
	feed := &mockFeed{pages: []ctgov.Page{{Studies: []ctgov.Study{
		study("NCT00000001", "a"), study("NCT00000002", "b"), study("NCT00000003", "c"),
	}}}}
	repo := &failingRepo{inner: memory.NewStore(), failIDs: map[string]bool{"NCT00000002": true}}
	rep, err := New(feed, repo, zap.NewNop()).WithConcurrency(2).Ingest(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rep.Upserted != 2 || rep.Failed != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestIngest_FeedErrorSurfaces(t *testing.T) {
	cause := errors.New("feed down")
	_, err := New(&mockFeed{err: cause}, memory.NewStore(), zap.NewNop()).Ingest(context.Background(), Options{})
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want %v", err, cause)
	}
}
