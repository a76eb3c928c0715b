// Package memory is an in-process trial store with the same semantics as the Postgres
// store. It backs local development and the usecase tests.
package memory

import (
	"context"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	"github.com/kailas-cloud/trialdex/internal/domain/facet"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/search/result"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// Store keeps records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]trial.Record
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]trial.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// EnsureSchema is a no-op.
func (s *Store) EnsureSchema(context.Context) error { return nil }

// WaitForReady returns immediately.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// Upsert inserts a record or refreshes its source attributes, keyed on NCTID.
func (s *Store) Upsert(_ context.Context, rec *trial.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	in := clone(*rec)
	if in.Extraction.State == "" {
		in.Extraction.State = eligibility.StatePending
	}

	prev, ok := s.records[in.NCTID]
	if !ok {
		in.Embedding = trial.EmbeddingState{Status: trial.EmbeddingPending}
		in.Extraction = eligibility.Extraction{State: in.Extraction.State}
		in.IngestedAt = now
		in.UpdatedAt = now
		s.records[in.NCTID] = in
		return nil
	}

	in.Embedding = prev.Embedding
	if prev.ContentHash != in.ContentHash {
		in.Embedding.Status = trial.EmbeddingPending
		in.Embedding.Attempts = 0
		in.Embedding.Error = ""
	}
	state := in.Extraction.State
	in.Extraction = prev.Extraction
	if prev.EligibilityHash != in.EligibilityHash {
		in.Extraction.State = state
		in.Extraction.Attempts = 0
	}
	in.IngestedAt = prev.IngestedAt
	in.UpdatedAt = now
	s.records[in.NCTID] = in
	return nil
}

// Get returns one record.
func (s *Store) Get(_ context.Context, nctID string) (trial.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[nctID]
	if !ok {
		return trial.Record{}, db.ErrRecordNotFound
	}
	return clone(rec), nil
}

// GetMany returns the records for ids in the order given. Missing ids are skipped.
func (s *Store) GetMany(_ context.Context, ids []string) ([]trial.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]trial.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

// PendingEmbeddings returns up to limit records after afterID whose vector is missing or stale.
func (s *Store) PendingEmbeddings(_ context.Context, version, afterID string, limit int) ([]trial.Record, error) {
	return s.pending(afterID, limit, func(r *trial.Record) bool { return r.NeedsEmbedding(version) }), nil
}

// PendingExtractions returns up to limit records after afterID whose extraction is pending or stale.
func (s *Store) PendingExtractions(_ context.Context, schemaVersion, afterID string, limit int) ([]trial.Record, error) {
	return s.pending(afterID, limit, func(r *trial.Record) bool {
		return r.Extraction.NeedsRun(r.EligibilityHash, schemaVersion)
	}), nil
}

func (s *Store) pending(afterID string, limit int, stale func(*trial.Record) bool) []trial.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sortedIDs()
	var out []trial.Record
	for _, id := range ids {
		if id <= afterID {
			continue
		}
		rec := s.records[id]
		if !stale(&rec) {
			continue
		}
		out = append(out, clone(rec))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// SaveEmbedding stores a current vector while the record still carries st.Hash.
func (s *Store) SaveEmbedding(_ context.Context, nctID string, st trial.EmbeddingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[nctID]
	if !ok || rec.ContentHash != st.Hash {
		return db.ErrRecordNotFound
	}
	at := s.now()
	if st.EmbeddedAt != nil {
		at = *st.EmbeddedAt
	}
	rec.Embedding = trial.EmbeddingState{
		Vector:     slices.Clone(st.Vector),
		Version:    st.Version,
		Hash:       st.Hash,
		Status:     trial.EmbeddingCurrent,
		Attempts:   rec.Embedding.Attempts + 1,
		EmbeddedAt: &at,
	}
	s.records[nctID] = rec
	return nil
}

// MarkEmbeddingFailed records a failed attempt without touching any stored vector.
func (s *Store) MarkEmbeddingFailed(_ context.Context, nctID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[nctID]
	if !ok {
		return db.ErrRecordNotFound
	}
	rec.Embedding.Status = trial.EmbeddingFailed
	rec.Embedding.Attempts++
	rec.Embedding.Error = reason
	s.records[nctID] = rec
	return nil
}

// SaveExtraction persists an extraction outcome computed at the record's current
// eligibility hash.
func (s *Store) SaveExtraction(_ context.Context, nctID string, ext eligibility.Extraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[nctID]
	if !ok || rec.EligibilityHash != ext.SourceHash {
		return db.ErrRecordNotFound
	}
	payload := rec.Extraction.Payload
	if ext.Payload.Criteria != nil || ext.Payload.RawResponse != "" || len(ext.Payload.Issues) > 0 {
		payload = ext.Payload
	}
	rec.Extraction = ext
	rec.Extraction.Payload = payload
	s.records[nctID] = rec
	return nil
}

// Count returns the number of records satisfying the set, free text included.
func (s *Store) Count(_ context.Context, set filter.Set) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if matches(&rec, set) {
			n++
		}
	}
	return n, nil
}

// List returns records satisfying the set ordered by last update desc (unknown last), then id.
func (s *Store) List(_ context.Context, set filter.Set, opts db.ListOptions) ([]trial.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	excluded := make(map[string]struct{}, len(opts.Exclude))
	for _, id := range opts.Exclude {
		excluded[id] = struct{}{}
	}
	var all []trial.Record
	for id, rec := range s.records {
		if _, skip := excluded[id]; skip {
			continue
		}
		if matches(&rec, set) {
			all = append(all, rec)
		}
	}
	sort.Slice(all, func(i, j int) bool { return newerFirst(all[i].LastUpdate, all[j].LastUpdate, all[i].NCTID, all[j].NCTID) })

	start := min(max(opts.Offset, 0), len(all))
	end := len(all)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, len(all))
	}
	out := make([]trial.Record, 0, end-start)
	for _, rec := range all[start:end] {
		out = append(out, clone(rec))
	}
	return out, nil
}

// NearestNeighbors returns the k most cosine-similar records with a current vector of
// version among those satisfying the structured part of the set.
func (s *Store) NearestNeighbors(
	_ context.Context, set filter.Set, vec []float32, version string, k int,
) ([]result.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []result.Candidate
	for _, rec := range s.records {
		e := rec.Embedding
		if len(e.Vector) == 0 || e.Status != trial.EmbeddingCurrent || e.Version != version || e.Hash != rec.ContentHash {
			continue
		}
		if !matchesStructured(&rec, set) {
			continue
		}
		out = append(out, result.Candidate{
			ID:         rec.NCTID,
			Similarity: cosine(vec, e.Vector),
			LastUpdate: rec.LastUpdate,
			KeywordHit: set.HasQuery() && matchesKeyword(&rec, set.Query()),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// GroupCount counts records satisfying the set per value of dim.
func (s *Store) GroupCount(_ context.Context, set filter.Set, dim filter.Key) ([]facet.Count, error) {
	if _, ok := groupers[dim]; !ok {
		return nil, &domain.InjectionGuardViolation{Key: string(dim)}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, rec := range s.records {
		if matches(&rec, set) {
			counts[groupers[dim](&rec)]++
		}
	}
	return sortedCounts(counts, 0), nil
}

// TopSponsors returns the n lead sponsors with the most matching records.
func (s *Store) TopSponsors(_ context.Context, set filter.Set, n int) ([]facet.Count, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range s.records {
		if rec.Sponsor != "" && matches(&rec, set) {
			counts[rec.Sponsor]++
		}
	}
	return sortedCounts(counts, n), nil
}

// TopInterventions returns the n intervention names studied by the most matching records.
func (s *Store) TopInterventions(_ context.Context, set filter.Set, n int) ([]facet.Count, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range s.records {
		if !matches(&rec, set) {
			continue
		}
		seen := make(map[string]struct{})
		for _, name := range rec.InterventionNames() {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			counts[name]++
		}
	}
	return sortedCounts(counts, n), nil
}

// EnrollmentStats summarizes enrollment counts over matching records.
func (s *Store) EnrollmentStats(_ context.Context, set filter.Set) (facet.EnrollmentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st facet.EnrollmentStats
	for _, rec := range s.records {
		if rec.EnrollmentCount == nil || !matches(&rec, set) {
			continue
		}
		v := *rec.EnrollmentCount
		st.Reported++
		st.Sum += int64(v)
		if st.Min == nil || v < *st.Min {
			lo := v
			st.Min = &lo
		}
		if st.Max == nil || v > *st.Max {
			hi := v
			st.Max = &hi
		}
	}
	if st.Reported > 0 {
		avg := float64(st.Sum) / float64(st.Reported)
		st.Avg = &avg
	}
	return st, nil
}

var groupers = map[filter.Key]func(*trial.Record) string{
	filter.KeyStatus:       func(r *trial.Record) string { return string(r.Status) },
	filter.KeyPhase:        func(r *trial.Record) string { return string(r.Phase) },
	filter.KeyStudyType:    func(r *trial.Record) string { return string(r.StudyType) },
	filter.KeySponsorClass: func(r *trial.Record) string { return string(r.SponsorClass) },
	filter.KeyCondition:    func(r *trial.Record) string { return r.PrimaryCondition() },
	filter.KeyStartYear: func(r *trial.Record) string {
		if y := r.StartYear(); y != 0 {
			return strconv.Itoa(y)
		}
		return ""
	},
}

func matches(r *trial.Record, set filter.Set) bool {
	if !matchesStructured(r, set) {
		return false
	}
	return !set.HasQuery() || matchesKeyword(r, set.Query())
}

func matchesStructured(r *trial.Record, set filter.Set) bool {
	for _, key := range filter.EnumKeys {
		codes := set.Enum(key)
		if len(codes) > 0 && !slices.Contains(codes, groupers[key](r)) {
			return false
		}
	}
	if conds := set.Conditions(); len(conds) > 0 {
		hit := false
		for _, c := range conds {
			if anyContains(r.Conditions, c) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if years := set.Years(); !years.IsZero() {
		y := r.StartYear()
		if y == 0 || (years.From != 0 && y < years.From) || (years.To != 0 && y > years.To) {
			return false
		}
	}
	return true
}

func matchesKeyword(r *trial.Record, q string) bool {
	for _, field := range []string{r.BriefTitle, r.OfficialTitle, r.Sponsor, r.NCTID} {
		if containsFold(field, q) {
			return true
		}
	}
	return anyContains(r.Conditions, q)
}

func anyContains(values []string, sub string) bool {
	for _, v := range values {
		if containsFold(v, sub) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func newerFirst(a, b *time.Time, idA, idB string) bool {
	switch {
	case a != nil && b != nil && !a.Equal(*b):
		return a.After(*b)
	case a != nil && b == nil:
		return true
	case a == nil && b != nil:
		return false
	}
	return idA < idB
}

func sortedCounts(counts map[string]int, limit int) []facet.Count {
	out := make([]facet.Count, 0, len(counts))
	for code, n := range counts {
		out = append(out, facet.Count{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (s *Store) sortedIDs() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// clone copies the slices a caller could mutate.
func clone(r trial.Record) trial.Record {
	r.Conditions = slices.Clone(r.Conditions)
	r.Interventions = slices.Clone(r.Interventions)
	r.Locations = slices.Clone(r.Locations)
	r.Embedding.Vector = slices.Clone(r.Embedding.Vector)
	return r
}
