package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
	"github.com/kailas-cloud/trialdex/internal/transport/ctgov"
)

var nctIDPattern = regexp.MustCompile(`^NCT\d{8}$`)

// Normalize maps a raw study to a canonical record with its canonical text and hashes.
// A study without a registry identifier is rejected with a *domain.ValidationError.
func Normalize(raw ctgov.Study) (trial.Record, error) {
	p := raw.ProtocolSection
	id := strings.ToUpper(strings.TrimSpace(p.Identification.NCTID))
	if id == "" {
		return trial.Record{}, domain.NewValidationError("nctId", "missing registry identifier")
	}
	if !nctIDPattern.MatchString(id) {
		return trial.Record{}, domain.NewValidationError("nctId", "malformed registry identifier %q", id)
	}

	elig := p.Eligibility
	rec := trial.Record{
		NCTID:         id,
		BriefTitle:    collapse(p.Identification.BriefTitle),
		OfficialTitle: collapse(p.Identification.OfficialTitle),
		Acronym:       collapse(p.Identification.Acronym),

		Status:    trial.ParseStatus(p.Status.OverallStatus),
		Phase:     trial.ParsePhase(p.Design.Phases...),
		StudyType: trial.ParseStudyType(p.Design.StudyType),

		Conditions:    conditions(p.Conditions.Conditions),
		Interventions: interventions(p.ArmsInterventions.Interventions),

		BriefSummary:        strings.TrimSpace(p.Description.BriefSummary),
		DetailedDescription: strings.TrimSpace(p.Description.DetailedDescription),

		EligibilityCriteria: elig.EligibilityCriteria,
		EligibilitySex:      strings.ToUpper(strings.TrimSpace(elig.Sex)),
		MinAge:              strings.TrimSpace(elig.MinimumAge),
		MaxAge:              strings.TrimSpace(elig.MaximumAge),
		MinAgeYears:         ParseAge(elig.MinimumAge),
		MaxAgeYears:         ParseAge(elig.MaximumAge),
		HealthyVolunteers:   elig.HealthyVolunteers,

		EnrollmentCount: p.Design.EnrollmentInfo.Count,
		EnrollmentType:  strings.ToUpper(strings.TrimSpace(p.Design.EnrollmentInfo.Type)),

		StartDate:      ParseDate(p.Status.StartDateStruct.Date),
		CompletionDate: ParseDate(p.Status.CompletionDateStruct.Date),
		LastUpdate:     ParseDate(p.Status.LastUpdatePostDateStruct.Date),

		Sponsor:      collapse(p.SponsorCollabs.LeadSponsor.Name),
		SponsorClass: trial.ParseSponsorClass(p.SponsorCollabs.LeadSponsor.Class),
		Locations:    locations(p.ContactsLocations.Locations),
	}

	rec.CanonicalText = CanonicalText(&rec)
	rec.ContentHash = Hash(rec.CanonicalText)
	rec.EligibilityHash = EligibilityHash(rec.EligibilityCriteria)
	rec.Extraction.State = eligibility.InitialState(rec.EligibilityCriteria)
	return rec, nil
}

// CanonicalText builds the deterministic text blob that is embedded and hashed.
// Enrollment, dates, status, sponsor and locations are not part of it.
func CanonicalText(r *trial.Record) string {
	parts := make([]string, 0, 6)
	add := func(prefix, s string) {
		if s = collapse(s); s != "" {
			parts = append(parts, prefix+s)
		}
	}
	add("", r.BriefTitle)
	if !strings.EqualFold(collapse(r.OfficialTitle), collapse(r.BriefTitle)) {
		add("", r.OfficialTitle)
	}
	add("Conditions: ", strings.Join(r.Conditions, ", "))
	add("Interventions: ", strings.Join(r.InterventionNames(), ", "))
	add("", r.BriefSummary)
	add("Eligibility: ", r.EligibilityCriteria)
	return strings.Join(parts, "\n")
}

// Hash returns the hex SHA-256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// EligibilityHash hashes whitespace-normalized criteria text; empty text has no hash.
func EligibilityHash(criteria string) string {
	c := collapse(criteria)
	if c == "" {
		return ""
	}
	return Hash(c)
}

// ParseDate accepts "YYYY-MM-DD" and "YYYY-MM" (day 01). Anything else is unknown.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// unitsPerYear converts registry age units to years by division.
var unitsPerYear = map[string]float64{
	"year":   1,
	"month":  12,
	"week":   365.25 / 7,
	"day":    365.25,
	"hour":   365.25 * 24,
	"minute": 365.25 * 24 * 60,
}

// ParseAge converts a registry age such as "18 Years" or "6 Months" to years.
// "N/A", blanks and unknown units yield nil.
func ParseAge(s string) *float64 {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return nil
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || n < 0 {
		return nil
	}
	per, ok := unitsPerYear[strings.TrimSuffix(fields[1], "s")]
	if !ok {
		return nil
	}
	years := n / per
	return &years
}

func conditions(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = collapse(c)
		key := strings.ToLower(c)
		if c == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func interventions(raw []ctgov.Intervention) []trial.Intervention {
	out := make([]trial.Intervention, 0, len(raw))
	for _, iv := range raw {
		name := collapse(iv.Name)
		if name == "" {
			continue
		}
		out = append(out, trial.Intervention{Type: strings.ToUpper(strings.TrimSpace(iv.Type)), Name: name})
	}
	return out
}

func locations(raw []ctgov.Location) []trial.Location {
	out := make([]trial.Location, 0, len(raw))
	for _, l := range raw {
		loc := trial.Location{
			Facility: collapse(l.Facility),
			City:     collapse(l.City),
			State:    collapse(l.State),
			Country:  collapse(l.Country),
		}
		if l.GeoPoint != nil {
			lat, lon := l.GeoPoint.Lat, l.GeoPoint.Lon
			loc.Lat, loc.Lon = &lat, &lon
		}
		out = append(out, loc)
	}
	return out
}

// collapse trims s and folds internal whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
