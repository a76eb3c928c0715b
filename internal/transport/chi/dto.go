package chi

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	domfacet "github.com/kailas-cloud/trialdex/internal/domain/facet"
	"github.com/kailas-cloud/trialdex/internal/domain/search/result"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
	healthuc "github.com/kailas-cloud/trialdex/internal/usecase/health"
	matchuc "github.com/kailas-cloud/trialdex/internal/usecase/match"
)

// ErrorCode is the machine-readable error code of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	ErrorCodeValidationFailed       ErrorCode = "validation_failed"
	ErrorCodeInjectionGuard         ErrorCode = "injection_guard_violation"
	ErrorCodeNotFound               ErrorCode = "not_found"
	ErrorCodeTimeout                ErrorCode = "timeout"
	ErrorCodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	ErrorCodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Coded is an enum value with its display label.
type Coded struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// TrialSummary is one search result row.
type TrialSummary struct {
	NCTID              string               `json:"nct_id"`
	BriefTitle         string               `json:"brief_title"`
	Status             Coded                `json:"status"`
	Phase              Coded                `json:"phase"`
	StudyType          Coded                `json:"study_type"`
	Conditions         []string             `json:"conditions"`
	Interventions      []trial.Intervention `json:"interventions"`
	LeadSponsor        string               `json:"lead_sponsor,omitempty"`
	SponsorClass       Coded                `json:"sponsor_class"`
	EnrollmentCount    *int                 `json:"enrollment_count"`
	StartDate          *string              `json:"start_date"`
	LastUpdate         *string              `json:"last_update"`
	LocationsSummary   *string              `json:"locations_summary"`
	EligibilitySummary *string              `json:"eligibility_summary"`
	Similarity         *float64             `json:"similarity"`
	MatchSource        result.MatchSource   `json:"match_source,omitempty"`
}

// SearchResponse is the body of GET /api/v1/trials.
type SearchResponse struct {
	Items    []TrialSummary `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Mode     string         `json:"mode"`
	Degraded bool           `json:"degraded"`
}

// ExtractionResponse is the eligibility extraction attached to a trial.
type ExtractionResponse struct {
	State         eligibility.State     `json:"state"`
	Criteria      *eligibility.Criteria `json:"criteria,omitempty"`
	Issues        []string              `json:"issues,omitempty"`
	Model         string                `json:"model,omitempty"`
	SchemaVersion string                `json:"schema_version,omitempty"`
	ExtractedAt   *time.Time            `json:"extracted_at,omitempty"`
	Attempts      int                   `json:"attempts"`
}

// TrialResponse is the full record returned by GET /api/v1/trials/{nctID}.
type TrialResponse struct {
	NCTID               string               `json:"nct_id"`
	BriefTitle          string               `json:"brief_title"`
	OfficialTitle       string               `json:"official_title,omitempty"`
	Acronym             string               `json:"acronym,omitempty"`
	Status              Coded                `json:"status"`
	Phase               Coded                `json:"phase"`
	StudyType           Coded                `json:"study_type"`
	Conditions          []string             `json:"conditions"`
	Interventions       []trial.Intervention `json:"interventions"`
	BriefSummary        string               `json:"brief_summary,omitempty"`
	DetailedDescription string               `json:"detailed_description,omitempty"`
	EligibilityCriteria string               `json:"eligibility_criteria,omitempty"`
	EligibilitySex      string               `json:"eligibility_sex,omitempty"`
	MinAge              string               `json:"eligibility_min_age,omitempty"`
	MaxAge              string               `json:"eligibility_max_age,omitempty"`
	HealthyVolunteers   *bool                `json:"healthy_volunteers"`
	EnrollmentCount     *int                 `json:"enrollment_count"`
	EnrollmentType      string               `json:"enrollment_type,omitempty"`
	StartDate           *string              `json:"start_date"`
	CompletionDate      *string              `json:"completion_date"`
	LastUpdate          *string              `json:"last_update"`
	LeadSponsor         string               `json:"lead_sponsor,omitempty"`
	SponsorClass        Coded                `json:"sponsor_class"`
	Locations           []trial.Location     `json:"locations"`
	Extraction          ExtractionResponse   `json:"eligibility_extraction"`
}

// BucketResponse is one facet bucket.
type BucketResponse struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// EnrollmentResponse summarizes enrollment counts.
type EnrollmentResponse struct {
	Reported int      `json:"reported"`
	Avg      *float64 `json:"avg"`
	Min      *int     `json:"min"`
	Max      *int     `json:"max"`
	Sum      int64    `json:"total"`
}

// LandscapeResponse is the body of GET /api/v1/landscape.
type LandscapeResponse struct {
	Total            int                         `json:"total"`
	Facets           map[string][]BucketResponse `json:"facets"`
	TopSponsors      []BucketResponse            `json:"top_sponsors"`
	TopInterventions []BucketResponse            `json:"top_interventions"`
	Enrollment       EnrollmentResponse          `json:"enrollment"`
}

// MatchItem is one matched trial with its score.
type MatchItem struct {
	TrialSummary
	MatchScore float64 `json:"match_score"`
}

// MatchResponse is the body of GET /api/v1/match.
type MatchResponse struct {
	Patient MatchPatient `json:"patient"`
	Results []MatchItem  `json:"results"`
}

// MatchPatient echoes the normalized patient profile.
type MatchPatient struct {
	Age       int    `json:"age"`
	Sex       string `json:"sex"`
	Condition string `json:"condition"`
	Country   string `json:"country,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     healthuc.Status                 `json:"status"`
	Checks     map[string]healthuc.CheckResult `json:"checks"`
	TrialCount *int                            `json:"trial_count"`
	Version    string                          `json:"version"`
}

func summaryFromRecord(rec *trial.Record) TrialSummary {
	s := TrialSummary{
		NCTID:           rec.NCTID,
		BriefTitle:      rec.BriefTitle,
		Status:          Coded{Code: string(rec.Status), Label: rec.Status.Label()},
		Phase:           Coded{Code: string(rec.Phase), Label: rec.Phase.Label()},
		StudyType:       Coded{Code: string(rec.StudyType), Label: rec.StudyType.Label()},
		Conditions:      nonNil(rec.Conditions),
		Interventions:   nonNil(rec.Interventions),
		LeadSponsor:     rec.Sponsor,
		SponsorClass:    Coded{Code: string(rec.SponsorClass), Label: rec.SponsorClass.Label()},
		EnrollmentCount: rec.EnrollmentCount,
		StartDate:       dateString(rec.StartDate),
		LastUpdate:      dateString(rec.LastUpdate),
	}
	if sum := locationsSummary(rec.Locations); sum != "" {
		s.LocationsSummary = &sum
	}
	if c := rec.Extraction.Payload.Criteria; rec.Extraction.State == eligibility.StateExtracted && c != nil && c.InclusionSummary != "" {
		sum := c.InclusionSummary
		s.EligibilitySummary = &sum
	}
	return s
}

func hitToSummary(h *result.Hit) TrialSummary {
	s := summaryFromRecord(&h.Record)
	s.Similarity = h.Similarity
	s.MatchSource = h.Source
	return s
}

func pageToResponse(p *result.Page) SearchResponse {
	items := make([]TrialSummary, len(p.Items))
	for i := range p.Items {
		items[i] = hitToSummary(&p.Items[i])
	}
	return SearchResponse{
		Items:    items,
		Total:    p.Total,
		Page:     p.Page,
		PageSize: p.PageSize,
		Mode:     string(p.Mode),
		Degraded: p.Degraded,
	}
}

func trialToResponse(rec *trial.Record) TrialResponse {
	ext := rec.Extraction
	return TrialResponse{
		NCTID:               rec.NCTID,
		BriefTitle:          rec.BriefTitle,
		OfficialTitle:       rec.OfficialTitle,
		Acronym:             rec.Acronym,
		Status:              Coded{Code: string(rec.Status), Label: rec.Status.Label()},
		Phase:               Coded{Code: string(rec.Phase), Label: rec.Phase.Label()},
		StudyType:           Coded{Code: string(rec.StudyType), Label: rec.StudyType.Label()},
		Conditions:          nonNil(rec.Conditions),
		Interventions:       nonNil(rec.Interventions),
		BriefSummary:        rec.BriefSummary,
		DetailedDescription: rec.DetailedDescription,
		EligibilityCriteria: rec.EligibilityCriteria,
		EligibilitySex:      rec.EligibilitySex,
		MinAge:              rec.MinAge,
		MaxAge:              rec.MaxAge,
		HealthyVolunteers:   rec.HealthyVolunteers,
		EnrollmentCount:     rec.EnrollmentCount,
		EnrollmentType:      rec.EnrollmentType,
		StartDate:           dateString(rec.StartDate),
		CompletionDate:      dateString(rec.CompletionDate),
		LastUpdate:          dateString(rec.LastUpdate),
		LeadSponsor:         rec.Sponsor,
		SponsorClass:        Coded{Code: string(rec.SponsorClass), Label: rec.SponsorClass.Label()},
		Locations:           nonNil(rec.Locations),
		Extraction: ExtractionResponse{
			State:         ext.State,
			Criteria:      ext.Payload.Criteria,
			Issues:        ext.Payload.Issues,
			Model:         ext.Model,
			SchemaVersion: ext.SchemaVersion,
			ExtractedAt:   ext.ExtractedAt,
			Attempts:      ext.Attempts,
		},
	}
}

func bucketsToResponse(bs []domfacet.Bucket) []BucketResponse {
	out := make([]BucketResponse, len(bs))
	for i, b := range bs {
		out[i] = BucketResponse{Code: b.Code, Label: b.Label, Count: b.Count}
	}
	return out
}

func facetsToResponse(f domfacet.Facets) map[string][]BucketResponse {
	out := make(map[string][]BucketResponse, len(f))
	for dim, bs := range f {
		out[string(dim)] = bucketsToResponse(bs)
	}
	return out
}

func landscapeToResponse(l *domfacet.Landscape) LandscapeResponse {
	return LandscapeResponse{
		Total:            l.Total,
		Facets:           facetsToResponse(l.Facets),
		TopSponsors:      bucketsToResponse(l.TopSponsors),
		TopInterventions: bucketsToResponse(l.TopInterventions),
		Enrollment: EnrollmentResponse{
			Reported: l.Enrollment.Reported,
			Avg:      l.Enrollment.Avg,
			Min:      l.Enrollment.Min,
			Max:      l.Enrollment.Max,
			Sum:      l.Enrollment.Sum,
		},
	}
}

func matchesToResponse(p matchuc.Patient, ms []matchuc.Match) MatchResponse {
	results := make([]MatchItem, len(ms))
	for i := range ms {
		results[i] = MatchItem{TrialSummary: summaryFromRecord(&ms[i].Record), MatchScore: ms[i].Score}
	}
	return MatchResponse{
		Patient: MatchPatient{Age: p.Age, Sex: string(p.Sex), Condition: p.Condition, Country: p.Country},
		Results: results,
	}
}

// locationsSummary renders "N sites in A, B, C" with up to three distinct countries.
func locationsSummary(locs []trial.Location) string {
	if len(locs) == 0 {
		return ""
	}
	var countries []string
	seen := make(map[string]struct{})
	for _, l := range locs {
		if l.Country == "" {
			continue
		}
		if _, ok := seen[l.Country]; ok {
			continue
		}
		seen[l.Country] = struct{}{}
		countries = append(countries, l.Country)
	}
	sites := "sites"
	if len(locs) == 1 {
		sites = "site"
	}
	if len(countries) == 0 {
		return fmt.Sprintf("%d %s", len(locs), sites)
	}
	return fmt.Sprintf("%d %s in %s", len(locs), sites, strings.Join(countries[:min(3, len(countries))], ", "))
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
