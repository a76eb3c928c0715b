package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
)

// Limits on a match request.
const (
	DefaultLimit = 20
	MaxLimit     = 100
	maxAge       = 150
	// oversample is how many candidates are screened per requested match.
	oversample = 3
	// DefaultQueryTimeout bounds one Match call.
	DefaultQueryTimeout = 5 * time.Second
)

// Scores by the evidence a match was screened on.
const (
	ScoreExtracted = 0.9
	ScoreSource    = 0.5
)

// Patient is a minimal patient profile.
type Patient struct {
	Age       int
	Sex       eligibility.Sex
	Condition string
	Country   string
	Limit     int
}

// Match is one trial the patient appears eligible for.
type Match struct {
	Record trial.Record
	Score  float64
}

// Service screens open trials against a patient profile.
type Service struct {
	repo    Repository
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a match service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, timeout: DefaultQueryTimeout, logger: logger}
}

// WithQueryTimeout sets the per-request deadline.
func (s *Service) WithQueryTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Match returns recruiting or not-yet-recruiting trials for the patient's condition that
// the patient is not screened out of. Trials with extracted criteria are screened on the
// extracted age bounds and sex; others on the registry's own sex and age fields.
func (s *Service) Match(ctx context.Context, p Patient) ([]Match, error) {
	p, err := normalize(p)
	if err != nil {
		return nil, err
	}

	set, err := filter.Set{}.WithEnum(filter.KeyStatus,
		string(trial.StatusRecruiting), string(trial.StatusNotYetRecruiting))
	if err != nil {
		return nil, err
	}
	if set, err = set.WithConditions(p.Condition); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	candidates, err := s.repo.List(ctx, set, db.ListOptions{Limit: p.Limit * oversample})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: list candidates: %w", domain.ErrTimeout, s.timeout, err)
		}
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	out := make([]Match, 0, p.Limit)
	for i := range candidates {
		rec := &candidates[i]
		score, ok := screen(rec, p)
		if !ok || !inCountry(rec, p.Country) {
			continue
		}
		out = append(out, Match{Record: *rec, Score: score})
		if len(out) == p.Limit {
			break
		}
	}
	s.logger.Debug("patient matched",
		zap.String("condition", p.Condition),
		zap.Int("screened", len(candidates)),
		zap.Int("matched", len(out)),
	)
	return out, nil
}

func normalize(p Patient) (Patient, error) {
	if p.Age < 0 || p.Age > maxAge {
		return p, domain.NewValidationError("age", "must be between 0 and %d, got %d", maxAge, p.Age)
	}
	switch sex := eligibility.Sex(strings.ToUpper(strings.TrimSpace(string(p.Sex)))); sex {
	case eligibility.SexFemale, eligibility.SexMale:
		p.Sex = sex
	default:
		return p, domain.NewValidationError("sex", "must be male or female, got %q", p.Sex)
	}
	p.Condition = strings.TrimSpace(p.Condition)
	if p.Condition == "" {
		return p, domain.NewValidationError("condition", "must not be empty")
	}
	p.Country = strings.TrimSpace(p.Country)
	switch {
	case p.Limit == 0:
		p.Limit = DefaultLimit
	case p.Limit < 0 || p.Limit > MaxLimit:
		return p, domain.NewValidationError("limit", "must be between 1 and %d, got %d", MaxLimit, p.Limit)
	}
	return p, nil
}

// screen reports whether the patient passes the record's age and sex restrictions and
// how much the verdict can be trusted.
func screen(rec *trial.Record, p Patient) (float64, bool) {
	age := float64(p.Age)
	ext := rec.Extraction
	if ext.State == eligibility.StateExtracted && ext.Payload.Criteria != nil {
		c := ext.Payload.Criteria
		if !withinAge(age, c.MinAgeYears, c.MaxAgeYears) {
			return 0, false
		}
		if c.Sex != "" && c.Sex != eligibility.SexAll && c.Sex != p.Sex {
			return 0, false
		}
		return ScoreExtracted, true
	}

	if !withinAge(age, rec.MinAgeYears, rec.MaxAgeYears) {
		return 0, false
	}
	if sex := eligibility.Sex(strings.ToUpper(rec.EligibilitySex)); sex != "" && sex != eligibility.SexAll && sex != p.Sex {
		return 0, false
	}
	return ScoreSource, true
}

func withinAge(age float64, minYears, maxYears *float64) bool {
	if minYears != nil && age < *minYears {
		return false
	}
	return maxYears == nil || age <= *maxYears
}

// inCountry reports whether a trial lists a site in country. Trials without listed sites
// are kept.
func inCountry(rec *trial.Record, country string) bool {
	if country == "" || len(rec.Locations) == 0 {
		return true
	}
	for _, loc := range rec.Locations {
		if strings.EqualFold(loc.Country, country) {
			return true
		}
	}
	return false
}
