package filter

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// Limits on a single predicate set.
const (
	// MaxValuesPerKey is the maximum number of values per filter key.
	MaxValuesPerKey = 32
	// MaxValueLength is the maximum length of a condition value.
	MaxValueLength = 256
	// MaxQueryLength is the maximum allowed free-text query length.
	MaxQueryLength = 4096
)

// Key is a recognized filter dimension. Nothing outside this set can reach a store.
type Key string

// Filter keys.
const (
	KeyStatus       Key = "status"
	KeyPhase        Key = "phase"
	KeyStudyType    Key = "study_type"
	KeySponsorClass Key = "sponsor_class"
	KeyCondition    Key = "condition"
	KeyStartYear    Key = "start_year"
	KeyQuery        Key = "q"
)

// Raw parameter names accepted by New in addition to the keys above.
const (
	ParamStartYearFrom = "start_year_from"
	ParamStartYearTo   = "start_year_to"
)

// Field returns the enumerated trial field behind k, or "" for non-enum keys.
func (k Key) Field() trial.Field {
	switch k {
	case KeyStatus:
		return trial.FieldStatus
	case KeyPhase:
		return trial.FieldPhase
	case KeyStudyType:
		return trial.FieldStudyType
	case KeySponsorClass:
		return trial.FieldSponsorClass
	default:
		return ""
	}
}

// EnumKeys lists the multi-valued enum keys in a stable order.
var EnumKeys = []Key{KeyStatus, KeyPhase, KeyStudyType, KeySponsorClass}

// YearRange is an inclusive start-year range; a zero bound is open.
type YearRange struct {
	From int
	To   int
}

// IsZero reports whether the range has no bounds.
func (r YearRange) IsZero() bool { return r.From == 0 && r.To == 0 }

// Set is the request-scoped Search Filter Predicate Set. Values are typed and validated
// at construction; stores bind them as query parameters.
type Set struct {
	enums      map[Key][]string
	conditions []string
	years      YearRange
	query      string
}

// New builds a Set from raw request parameters. A key outside the recognized set fails
// with *domain.InjectionGuardViolation; a malformed value with *domain.ValidationError.
func New(params map[string][]string) (Set, error) {
	var s Set
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		values := nonEmpty(params[name])
		var err error
		switch Key(name) {
		case KeyStatus, KeyPhase, KeyStudyType, KeySponsorClass:
			s, err = s.WithEnum(Key(name), values...)
		case KeyCondition:
			s, err = s.WithConditions(values...)
		case KeyQuery:
			s, err = s.WithQuery(strings.Join(values, " "))
		case KeyStartYear:
			var y int
			if y, err = parseYear(name, values); err == nil && y != 0 {
				s.years = YearRange{From: y, To: y}
			}
		default:
			switch name {
			case ParamStartYearFrom:
				s.years.From, err = parseYear(name, values)
			case ParamStartYearTo:
				s.years.To, err = parseYear(name, values)
			default:
				return Set{}, &domain.InjectionGuardViolation{Key: name}
			}
		}
		if err != nil {
			return Set{}, err
		}
	}

	if s.years.From != 0 && s.years.To != 0 && s.years.From > s.years.To {
		return Set{}, domain.NewValidationError(string(KeyStartYear), "from %d is after to %d", s.years.From, s.years.To)
	}
	return s, nil
}

// WithEnum returns a copy restricted to the given codes of an enum key.
func (s Set) WithEnum(key Key, codes ...string) (Set, error) {
	field := key.Field()
	if field == "" {
		return Set{}, &domain.InjectionGuardViolation{Key: string(key)}
	}
	if len(codes) > MaxValuesPerKey {
		return Set{}, domain.NewValidationError(string(key), "too many values (max %d)", MaxValuesPerKey)
	}
	normalized := make([]string, 0, len(codes))
	for _, c := range codes {
		code := strings.ToUpper(strings.TrimSpace(c))
		if !trial.IsCode(field, code) {
			return Set{}, domain.NewValidationError(string(key), "unknown code %q", c)
		}
		normalized = append(normalized, code)
	}
	out := s.clone()
	if len(normalized) == 0 {
		delete(out.enums, key)
		return out, nil
	}
	out.enums[key] = dedupe(normalized)
	return out, nil
}

// WithConditions returns a copy restricted to records listing any of the conditions.
func (s Set) WithConditions(conditions ...string) (Set, error) {
	if len(conditions) > MaxValuesPerKey {
		return Set{}, domain.NewValidationError(string(KeyCondition), "too many values (max %d)", MaxValuesPerKey)
	}
	out := s.clone()
	cleaned := make([]string, 0, len(conditions))
	for _, c := range conditions {
		c = strings.Join(strings.Fields(c), " ")
		if c == "" {
			continue
		}
		if len(c) > MaxValueLength {
			return Set{}, domain.NewValidationError(string(KeyCondition), "value too long (max %d)", MaxValueLength)
		}
		cleaned = append(cleaned, c)
	}
	out.conditions = dedupe(cleaned)
	return out, nil
}

// WithYears returns a copy restricted to a start-year range.
func (s Set) WithYears(r YearRange) (Set, error) {
	if r.From < 0 || r.To < 0 || (r.From != 0 && r.To != 0 && r.From > r.To) {
		return Set{}, domain.NewValidationError(string(KeyStartYear), "invalid range %d..%d", r.From, r.To)
	}
	out := s.clone()
	out.years = r
	return out, nil
}

// WithQuery returns a copy carrying free text.
func (s Set) WithQuery(q string) (Set, error) {
	q = strings.TrimSpace(q)
	if len(q) > MaxQueryLength {
		return Set{}, domain.NewValidationError(string(KeyQuery), "query too long (max %d chars)", MaxQueryLength)
	}
	out := s.clone()
	out.query = q
	return out, nil
}

// Without returns a copy with one dimension cleared.
func (s Set) Without(key Key) Set {
	out := s.clone()
	switch key {
	case KeyCondition:
		out.conditions = nil
	case KeyStartYear:
		out.years = YearRange{}
	case KeyQuery:
		out.query = ""
	default:
		delete(out.enums, key)
	}
	return out
}

// Enum returns the codes selected for an enum key.
func (s Set) Enum(key Key) []string { return s.enums[key] }

// Conditions returns the condition values.
func (s Set) Conditions() []string { return s.conditions }

// Years returns the start-year range.
func (s Set) Years() YearRange { return s.years }

// Query returns the free text.
func (s Set) Query() string { return s.query }

// HasQuery reports whether free text is present.
func (s Set) HasQuery() bool { return s.query != "" }

func (s Set) clone() Set {
	out := Set{
		enums:      make(map[Key][]string, len(s.enums)),
		conditions: s.conditions,
		years:      s.years,
		query:      s.query,
	}
	for k, v := range s.enums {
		out.enums[k] = v
	}
	return out
}

func parseYear(name string, values []string) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	if len(values) > 1 {
		return 0, domain.NewValidationError(name, "expected a single year")
	}
	y, err := strconv.Atoi(values[0])
	if err != nil || y < 1900 || y > 2200 {
		return 0, domain.NewValidationError(name, "invalid year %q", values[0])
	}
	return y, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
