package eligibility

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/kailas-cloud/trialdex/internal/domain"
)

// SchemaVersion identifies the output schema and prompt the validator accepts.
const SchemaVersion = "v1"

// maxAgeYears bounds plausible age limits.
const maxAgeYears = 150

var requiredKeys = []string{"sex", "min_age_years", "max_age_years", "inclusion", "exclusion", "flagged_terms"}

// Parse decodes an extraction response and validates it structurally against the schema.
// source is the criteria text the response was produced from; flagged terms must occur in it.
// Failures are returned as *domain.SchemaViolation listing every issue found.
func Parse(raw, source string) (Criteria, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Criteria{}, &domain.SchemaViolation{Issues: []string{"response is not a JSON object: " + err.Error()}}
	}

	v := validator{fields: fields}
	for _, k := range requiredKeys {
		if _, ok := fields[k]; !ok {
			v.addf("missing required key %q", k)
		}
	}

	var c Criteria
	c.Sex = v.sex("sex")
	c.MinAgeYears = v.age("min_age_years")
	c.MaxAgeYears = v.age("max_age_years")
	if c.MinAgeYears != nil && c.MaxAgeYears != nil && *c.MinAgeYears > *c.MaxAgeYears {
		v.addf("min_age_years (%g) exceeds max_age_years (%g)", *c.MinAgeYears, *c.MaxAgeYears)
	}
	c.AcceptsHealthyVolunteers = v.optionalBool("accepts_healthy_volunteers")
	c.Inclusion = v.stringList("inclusion")
	c.Exclusion = v.stringList("exclusion")
	c.FlaggedTerms = v.flaggedTerms("flagged_terms", source)
	c.InclusionSummary = v.optionalString("inclusion_summary")
	c.ExclusionSummary = v.optionalString("exclusion_summary")

	if len(v.issues) > 0 {
		return Criteria{}, &domain.SchemaViolation{Issues: v.issues}
	}
	return c, nil
}

type validator struct {
	fields map[string]json.RawMessage
	issues []string
}

func (v *validator) addf(format string, args ...any) {
	v.issues = append(v.issues, fmt.Sprintf(format, args...))
}

// value returns the raw field and whether it is present and not JSON null.
func (v *validator) value(key string) (json.RawMessage, bool) {
	raw, ok := v.fields[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func (v *validator) sex(key string) Sex {
	raw, ok := v.value(key)
	if !ok {
		if _, present := v.fields[key]; present {
			v.addf("%s must be one of ALL, FEMALE, MALE, got null", key)
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		v.addf("%s must be a string", key)
		return ""
	}
	switch sex := Sex(strings.ToUpper(strings.TrimSpace(s))); sex {
	case SexAll, SexFemale, SexMale:
		return sex
	default:
		v.addf("%s must be one of ALL, FEMALE, MALE, got %q", key, s)
		return ""
	}
}

func (v *validator) age(key string) *float64 {
	raw, ok := v.value(key)
	if !ok {
		return nil
	}
	// Strings such as "18" are rejected: ages are numeric or explicit null.
	if len(raw) > 0 && raw[0] == '"' {
		v.addf("%s must be a number or null, got a string", key)
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		v.addf("%s must be a number or null", key)
		return nil
	}
	if f < 0 || f > maxAgeYears {
		v.addf("%s must be between 0 and %d, got %g", key, maxAgeYears, f)
		return nil
	}
	return &f
}

func (v *validator) optionalBool(key string) *bool {
	raw, ok := v.value(key)
	if !ok {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		v.addf("%s must be a boolean or null", key)
		return nil
	}
	return &b
}

func (v *validator) optionalString(key string) string {
	raw, ok := v.value(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		v.addf("%s must be a string", key)
		return ""
	}
	return strings.TrimSpace(s)
}

func (v *validator) stringList(key string) []string {
	raw, ok := v.value(key)
	if !ok {
		if _, present := v.fields[key]; present {
			v.addf("%s must be a list, got null", key)
		}
		return nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		v.addf("%s must be a list of strings", key)
		return nil
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			v.addf("%s[%d] is empty", key, i)
			continue
		}
		out = append(out, it)
	}
	return out
}

func (v *validator) flaggedTerms(key, source string) []FlaggedTerm {
	raw, ok := v.value(key)
	if !ok {
		if _, present := v.fields[key]; present {
			v.addf("%s must be a list, got null", key)
		}
		return nil
	}
	var terms []FlaggedTerm
	if err := json.Unmarshal(raw, &terms); err != nil {
		v.addf("%s must be a list of {term, category, constraint} objects", key)
		return nil
	}
	out := make([]FlaggedTerm, 0, len(terms))
	for i, t := range terms {
		t.Term = strings.TrimSpace(t.Term)
		valid := true
		if t.Term == "" {
			v.addf("%s[%d].term is empty", key, i)
			valid = false
		} else if !groundedIn(t.Term, source) {
			v.addf("%s[%d].term %q does not appear in the criteria text", key, i, t.Term)
			valid = false
		}
		if t.Category != CategoryBiomarker && t.Category != CategoryPriorTreatment {
			v.addf("%s[%d].category must be biomarker or prior_treatment, got %q", key, i, t.Category)
			valid = false
		}
		if t.Constraint != ConstraintRequired && t.Constraint != ConstraintExcluded {
			v.addf("%s[%d].constraint must be required or excluded, got %q", key, i, t.Constraint)
			valid = false
		}
		if valid {
			out = append(out, t)
		}
	}
	return out
}

// groundedIn reports whether a term shares a significant token with the source text.
func groundedIn(term, source string) bool {
	src := strings.ToLower(source)
	if strings.Contains(src, strings.ToLower(term)) {
		return true
	}
	tokens := strings.FieldsFunc(strings.ToLower(term), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if len([]rune(tok)) >= 3 && strings.Contains(src, tok) {
			return true
		}
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
