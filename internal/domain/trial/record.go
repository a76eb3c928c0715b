package trial

import (
	"time"

	"github.com/kailas-cloud/trialdex/internal/domain/eligibility"
)

// Intervention is one studied intervention.
type Intervention struct {
	Type string `json:"type,omitempty"`
	Name string `json:"name"`
}

// Location is one trial site.
type Location struct {
	Facility string   `json:"facility,omitempty"`
	City     string   `json:"city,omitempty"`
	State    string   `json:"state,omitempty"`
	Country  string   `json:"country,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
}

// Record is the canonical internal representation of one registry entry.
// NCTID is the identity; every ingestion pass upserts on it.
type Record struct {
	NCTID         string
	BriefTitle    string
	OfficialTitle string
	Acronym       string

	Status    Status
	Phase     Phase
	StudyType StudyType

	Conditions    []string
	Interventions []Intervention

	BriefSummary        string
	DetailedDescription string

	// EligibilityCriteria is the source free text. Extraction never rewrites it.
	EligibilityCriteria string
	EligibilitySex      string
	MinAge              string
	MaxAge              string
	MinAgeYears         *float64
	MaxAgeYears         *float64
	HealthyVolunteers   *bool

	EnrollmentCount *int
	EnrollmentType  string

	StartDate      *time.Time
	CompletionDate *time.Time
	LastUpdate     *time.Time

	Sponsor      string
	SponsorClass SponsorClass
	Locations    []Location

	CanonicalText   string
	ContentHash     string
	EligibilityHash string

	Embedding  EmbeddingState
	Extraction eligibility.Extraction

	IngestedAt time.Time
	UpdatedAt  time.Time
}

// PrimaryCondition returns the first listed condition, or "" when none is listed.
func (r *Record) PrimaryCondition() string {
	if len(r.Conditions) == 0 {
		return ""
	}
	return r.Conditions[0]
}

// StartYear returns the start year, or 0 when the start date is unknown.
func (r *Record) StartYear() int {
	if r.StartDate == nil {
		return 0
	}
	return r.StartDate.Year()
}

// InterventionNames returns the non-empty intervention names in source order.
func (r *Record) InterventionNames() []string {
	names := make([]string, 0, len(r.Interventions))
	for _, iv := range r.Interventions {
		if iv.Name != "" {
			names = append(names, iv.Name)
		}
	}
	return names
}

// EmbeddingStatus is the lifecycle state of a record's vector.
type EmbeddingStatus string

// EmbeddingStatus values.
const (
	EmbeddingPending EmbeddingStatus = "PENDING"
	EmbeddingCurrent EmbeddingStatus = "CURRENT"
	EmbeddingFailed  EmbeddingStatus = "EMBEDDING_FAILED"
)

// EmbeddingState is the vector owned by a record together with its version tag and the
// content hash it was computed at.
type EmbeddingState struct {
	Vector     []float32
	Version    string
	Hash       string
	Status     EmbeddingStatus
	Attempts   int
	Error      string
	EmbeddedAt *time.Time
}

// NeedsEmbedding reports whether the stored vector is missing or stale for version.
func (r *Record) NeedsEmbedding(version string) bool {
	return r.Embedding.Status != EmbeddingCurrent ||
		r.Embedding.Hash != r.ContentHash ||
		r.Embedding.Version != version
}
