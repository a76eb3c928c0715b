package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/facet"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
)

// groupExprs are the single-valued grouping expressions per facet dimension.
// They contain no user input.
var groupExprs = map[filter.Key]string{
	filter.KeyStatus:       "status",
	filter.KeyPhase:        "phase",
	filter.KeyStudyType:    "study_type",
	filter.KeySponsorClass: "lead_sponsor_class",
	filter.KeyCondition:    "primary_condition",
	filter.KeyStartYear:    "COALESCE(EXTRACT(YEAR FROM start_date)::int::text, '')",
}

// GroupCount counts records satisfying the set per value of dim.
// Every record lands in exactly one group; records without a value group under "".
func (s *Store) GroupCount(ctx context.Context, set filter.Set, dim filter.Key) ([]facet.Count, error) {
	expr, ok := groupExprs[dim]
	if !ok {
		return nil, &domain.InjectionGuardViolation{Key: string(dim)}
	}
	ds := s.from().
		Select(goqu.L(expr).As("code"), goqu.COUNT("*").As("n")).
		Where(predicate(set)...).
		GroupBy(goqu.L("1"))
	return s.counts(ctx, ds)
}

// TopSponsors returns the n lead sponsors with the most records satisfying the set.
func (s *Store) TopSponsors(ctx context.Context, set filter.Set, n int) ([]facet.Count, error) {
	where := append(predicate(set), goqu.C("lead_sponsor").Neq(""))
	ds := s.from().
		Select(goqu.C("lead_sponsor").As("code"), goqu.COUNT("*").As("n")).
		Where(where...).
		GroupBy(goqu.L("1")).
		Order(goqu.L("2").Desc(), goqu.L("1").Asc()).
		Limit(uint(n))
	return s.counts(ctx, ds)
}

// TopInterventions returns the n intervention names studied by the most records
// satisfying the set. A record counts once per distinct name.
func (s *Store) TopInterventions(ctx context.Context, set filter.Set, n int) ([]facet.Count, error) {
	where := append(predicate(set), goqu.L("iv.value->>'name' <> ''"))
	ds := s.from().
		CrossJoin(goqu.L("LATERAL jsonb_array_elements(interventions) AS iv(value)")).
		Select(goqu.L("iv.value->>'name'").As("code"), goqu.L("COUNT(DISTINCT nct_id)").As("n")).
		Where(where...).
		GroupBy(goqu.L("1")).
		Order(goqu.L("2").Desc(), goqu.L("1").Asc()).
		Limit(uint(n))
	return s.counts(ctx, ds)
}

// EnrollmentStats summarizes enrollment counts over records satisfying the set.
func (s *Store) EnrollmentStats(ctx context.Context, set filter.Set) (facet.EnrollmentStats, error) {
	ds := s.from().
		Select(
			goqu.COUNT("enrollment_count"),
			goqu.AVG("enrollment_count"),
			goqu.MIN("enrollment_count"),
			goqu.MAX("enrollment_count"),
			goqu.L("COALESCE(SUM(enrollment_count), 0)"),
		).
		Where(predicate(set)...)
	rows, err := s.query(ctx, db.OpStats, ds)
	if err != nil {
		return facet.EnrollmentStats{}, err
	}
	defer func() { _ = rows.Close() }()

	var (
		st     facet.EnrollmentStats
		avg    sql.NullFloat64
		lo, hi sql.NullInt64
	)
	if rows.Next() {
		if err := rows.Scan(&st.Reported, &avg, &lo, &hi, &st.Sum); err != nil {
			return facet.EnrollmentStats{}, &db.Error{Op: db.OpStats, Err: fmt.Errorf("scan stats: %w", err)}
		}
	}
	if err := rows.Err(); err != nil {
		return facet.EnrollmentStats{}, &db.Error{Op: db.OpStats, Err: err}
	}
	st.Avg = floatPtr(avg)
	if lo.Valid {
		v := int(lo.Int64)
		st.Min = &v
	}
	if hi.Valid {
		v := int(hi.Int64)
		st.Max = &v
	}
	return st, nil
}

func (s *Store) counts(ctx context.Context, ds *goqu.SelectDataset) ([]facet.Count, error) {
	rows, err := s.query(ctx, db.OpGroup, ds)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []facet.Count
	for rows.Next() {
		var c facet.Count
		if err := rows.Scan(&c.Code, &c.Count); err != nil {
			return nil, &db.Error{Op: db.OpGroup, Err: fmt.Errorf("scan count: %w", err)}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpGroup, Err: err}
	}
	return out, nil
}
