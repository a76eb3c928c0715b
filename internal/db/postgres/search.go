package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/search/result"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// Count returns the number of records satisfying the set, free text included.
func (s *Store) Count(ctx context.Context, set filter.Set) (int, error) {
	ds := s.from().Select(goqu.COUNT("*")).Where(predicate(set)...)
	rows, err := s.query(ctx, db.OpCount, ds)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, &db.Error{Op: db.OpCount, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	return n, nil
}

// List returns records satisfying the set, free text included, ordered by last update
// (newest first, unknown last) then nct_id.
func (s *Store) List(ctx context.Context, set filter.Set, opts db.ListOptions) ([]trial.Record, error) {
	where := predicate(set)
	if len(opts.Exclude) > 0 {
		where = append(where, goqu.C("nct_id").NotIn(opts.Exclude))
	}
	ds := s.from().Select(columns(false)...).
		Where(where...).
		Order(goqu.C("last_update_date").Desc().NullsLast(), goqu.C("nct_id").Asc()).
		Offset(uint(max(opts.Offset, 0)))
	if opts.Limit > 0 {
		ds = ds.Limit(uint(opts.Limit))
	}
	return s.records(ctx, db.OpList, ds, false)
}

// NearestNeighbors returns the k records closest to vec by cosine similarity among those
// satisfying the structured part of the set and carrying a current vector of version.
// Each candidate reports whether it also matches the set's free text.
func (s *Store) NearestNeighbors(
	ctx context.Context, set filter.Set, vec []float32, version string, k int,
) ([]result.Candidate, error) {
	if k <= 0 {
		return nil, nil
	}
	target := pgvector.NewVector(vec)

	hit := goqu.L("FALSE")
	if kw := keyword(set); kw != nil {
		hit = goqu.L("(?)", kw)
	}

	where := append(structured(set),
		goqu.C("embedding").IsNotNull(),
		goqu.C("embedding_status").Eq(string(trial.EmbeddingCurrent)),
		goqu.C("embedding_version").Eq(version),
		goqu.C("embedding_hash").Eq(goqu.I("content_hash")),
	)
	ds := s.from().
		Select(
			goqu.C("nct_id"),
			goqu.L("1 - (embedding <=> ?)", target).As("similarity"),
			goqu.C("last_update_date"),
			hit.As("keyword_hit"),
		).
		Where(where...).
		Order(goqu.L("embedding <=> ?", target).Asc(), goqu.C("nct_id").Asc()).
		Limit(uint(k))

	rows, err := s.query(ctx, db.OpNearest, ds)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []result.Candidate
	for rows.Next() {
		var (
			c          result.Candidate
			lastUpdate sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Similarity, &lastUpdate, &c.KeywordHit); err != nil {
			return nil, &db.Error{Op: db.OpNearest, Err: fmt.Errorf("scan candidate: %w", err)}
		}
		c.LastUpdate = timePtr(lastUpdate)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpNearest, Err: err}
	}
	return out, nil
}
