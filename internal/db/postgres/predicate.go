package postgres

import (
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
)

// enumColumns maps enum filter keys to their columns.
var enumColumns = map[filter.Key]string{
	filter.KeyStatus:       "status",
	filter.KeyPhase:        "phase",
	filter.KeyStudyType:    "study_type",
	filter.KeySponsorClass: "lead_sponsor_class",
}

// keywordColumns are the scalar text columns searched by free text.
var keywordColumns = []string{"brief_title", "official_title", "lead_sponsor", "nct_id"}

// conditionMatch matches a pattern against each element of the conditions array.
// The column is never cast to text, so punctuation inside the JSON encoding cannot
// produce false positives.
const conditionMatch = "EXISTS (SELECT 1 FROM jsonb_array_elements_text(conditions) AS c(value) WHERE c.value ILIKE ?)"

// structured translates the non-text part of a predicate set into bound expressions.
func structured(set filter.Set) []exp.Expression {
	var where []exp.Expression
	for _, key := range filter.EnumKeys {
		if codes := set.Enum(key); len(codes) > 0 {
			where = append(where, goqu.C(enumColumns[key]).In(codes))
		}
	}

	if conds := set.Conditions(); len(conds) > 0 {
		ors := make([]exp.Expression, 0, len(conds))
		for _, c := range conds {
			ors = append(ors, goqu.L(conditionMatch, containsPattern(c)))
		}
		where = append(where, goqu.Or(ors...))
	}

	if years := set.Years(); !years.IsZero() {
		if years.From != 0 {
			where = append(where, goqu.C("start_date").Gte(yearStart(years.From)))
		}
		if years.To != 0 {
			where = append(where, goqu.C("start_date").Lt(yearStart(years.To+1)))
		}
	}
	return where
}

// keyword returns the free-text predicate, or nil when the set carries no text.
func keyword(set filter.Set) exp.Expression {
	if !set.HasQuery() {
		return nil
	}
	pattern := containsPattern(set.Query())
	ors := make([]exp.Expression, 0, len(keywordColumns)+1)
	for _, col := range keywordColumns {
		ors = append(ors, goqu.C(col).ILike(pattern))
	}
	ors = append(ors, goqu.L(conditionMatch, pattern))
	return goqu.Or(ors...)
}

// predicate is the full predicate of a set: structured filters and free text.
func predicate(set filter.Set) []exp.Expression {
	where := structured(set)
	if kw := keyword(set); kw != nil {
		where = append(where, kw)
	}
	return where
}

// containsPattern builds an ILIKE substring pattern with LIKE metacharacters escaped.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
