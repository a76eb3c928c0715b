package eligibility

import (
	"time"
	"unicode"
)

// State is the lifecycle state of an eligibility extraction.
type State string

// Extraction states.
const (
	StatePending     State = "PENDING"
	StateExtracted   State = "EXTRACTED"
	StateNeedsReview State = "NEEDS_REVIEW"
	StateSkipped     State = "SKIPPED"
)

// Sex is the sex restriction stated by the criteria.
type Sex string

// Sex values.
const (
	SexAll    Sex = "ALL"
	SexFemale Sex = "FEMALE"
	SexMale   Sex = "MALE"
)

// Category classifies a flagged term.
type Category string

// Category values.
const (
	CategoryBiomarker      Category = "biomarker"
	CategoryPriorTreatment Category = "prior_treatment"
)

// Constraint tells whether a flagged term is required or disqualifying.
type Constraint string

// Constraint values.
const (
	ConstraintRequired Constraint = "required"
	ConstraintExcluded Constraint = "excluded"
)

// FlaggedTerm is a biomarker or prior-treatment term lifted verbatim from the criteria text.
type FlaggedTerm struct {
	Term       string     `json:"term"`
	Category   Category   `json:"category"`
	Constraint Constraint `json:"constraint"`
}

// Criteria is the structured attribute set extracted from free-text eligibility criteria.
// Absent information stays nil or empty.
type Criteria struct {
	Sex                      Sex           `json:"sex"`
	MinAgeYears              *float64      `json:"min_age_years"`
	MaxAgeYears              *float64      `json:"max_age_years"`
	AcceptsHealthyVolunteers *bool         `json:"accepts_healthy_volunteers"`
	Inclusion                []string      `json:"inclusion"`
	Exclusion                []string      `json:"exclusion"`
	FlaggedTerms             []FlaggedTerm `json:"flagged_terms"`
	InclusionSummary         string        `json:"inclusion_summary,omitempty"`
	ExclusionSummary         string        `json:"exclusion_summary,omitempty"`
}

// Payload is the persisted body of an extraction. NEEDS_REVIEW keeps the last raw
// response and its validation issues instead of criteria.
type Payload struct {
	Criteria    *Criteria `json:"criteria,omitempty"`
	RawResponse string    `json:"raw_response,omitempty"`
	Issues      []string  `json:"issues,omitempty"`
}

// Extraction is the current extraction owned by a trial record, with provenance.
type Extraction struct {
	State         State
	Payload       Payload
	Model         string
	SchemaVersion string
	// SourceHash is the eligibility-text hash the extraction was computed at.
	SourceHash  string
	ExtractedAt *time.Time
	Attempts    int
	Error       string
}

// NeedsRun reports whether an extraction must be (re)computed for the given
// eligibility-text hash and schema version.
func (e Extraction) NeedsRun(hash, schemaVersion string) bool {
	if e.State == "" || e.State == StatePending {
		return true
	}
	return e.SourceHash != hash || e.SchemaVersion != schemaVersion
}

// MinCriteriaChars is the fewest non-space characters worth sending for extraction.
const MinCriteriaChars = 20

// TooShort reports whether criteria text has fewer than MinCriteriaChars non-space characters.
func TooShort(text string) bool {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
			if n >= MinCriteriaChars {
				return false
			}
		}
	}
	return true
}

// InitialState is the extraction state a freshly ingested criteria text starts in.
func InitialState(criteria string) State {
	if TooShort(criteria) {
		return StateSkipped
	}
	return StatePending
}
