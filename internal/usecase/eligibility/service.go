// Package eligibility turns free-text eligibility criteria into validated structured attributes.
package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain"
	dombatch "github.com/kailas-cloud/trialdex/internal/domain/batch"
	domelig "github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
	"github.com/kailas-cloud/trialdex/internal/metrics"
	"github.com/kailas-cloud/trialdex/internal/retry"
	"github.com/kailas-cloud/trialdex/internal/worker"
)

// Defaults for the extraction pass.
const (
	DefaultMaxCorrections = 2
	DefaultConcurrency    = 4
	DefaultPageSize       = 100
)

// Config configures the extractor.
type Config struct {
	// Provider labels metrics and logs, e.g. "anthropic".
	Provider       string
	SchemaVersion  string
	// MaxCorrections bounds the corrective turns after an invalid reply. Zero selects
	// DefaultMaxCorrections; a negative value disables corrections.
	MaxCorrections int
	Concurrency    int
	PageSize       int
	Retry          retry.Config
}

// Service runs eligibility extraction with validation, corrective turns and provenance.
type Service struct {
	caller Caller
	repo   Repository
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates an extraction service.
func New(caller Caller, repo Repository, cfg Config, logger *zap.Logger) *Service {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = domelig.SchemaVersion
	}
	switch {
	case cfg.MaxCorrections == 0:
		cfg.MaxCorrections = DefaultMaxCorrections
	case cfg.MaxCorrections < 0:
		cfg.MaxCorrections = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Service{caller: caller, repo: repo, cfg: cfg, logger: logger, now: time.Now}
}

// Extract produces the extraction for the record's current criteria text without persisting it.
//
// The returned Extraction is always meaningful. A non-nil error accompanies NEEDS_REVIEW
// (*domain.SchemaViolation) and provider failures (state stays PENDING).
func (s *Service) Extract(ctx context.Context, rec *trial.Record) (domelig.Extraction, error) {
	ext := domelig.Extraction{
		Model:         s.caller.Model(),
		SchemaVersion: s.cfg.SchemaVersion,
		SourceHash:    rec.EligibilityHash,
		Attempts:      rec.Extraction.Attempts,
	}

	if domelig.TooShort(rec.EligibilityCriteria) {
		ext.State = domelig.StateSkipped
		ext.ExtractedAt = s.stamp()
		return ext, nil
	}

	source := truncateRunes(rec.EligibilityCriteria, MaxCriteriaRunes)
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: userPrompt(source)},
	}

	calls := 0
	defer func() {
		metrics.ExtractionAttempts.WithLabelValues(s.cfg.Provider).Observe(float64(calls))
	}()

	for turn := 0; ; turn++ {
		raw, err := s.complete(ctx, messages, &calls)
		ext.Attempts = rec.Extraction.Attempts + calls
		if err != nil {
			ext.State = domelig.StatePending
			ext.Error = err.Error()
			return ext, fmt.Errorf("extract %s: %w", rec.NCTID, err)
		}

		criteria, err := domelig.Parse(stripCodeFences(raw), source)
		if err == nil {
			ext.State = domelig.StateExtracted
			ext.Payload = domelig.Payload{Criteria: &criteria}
			ext.ExtractedAt = s.stamp()
			return ext, nil
		}

		var violation *domain.SchemaViolation
		if !errors.As(err, &violation) {
			violation = &domain.SchemaViolation{Issues: []string{err.Error()}}
		}
		if turn >= s.cfg.MaxCorrections {
			ext.State = domelig.StateNeedsReview
			ext.Payload = domelig.Payload{RawResponse: raw, Issues: violation.Issues}
			ext.Error = violation.Error()
			ext.ExtractedAt = s.stamp()
			return ext, fmt.Errorf("extract %s after %d corrections: %w", rec.NCTID, turn, violation)
		}

		s.logger.Debug("Extraction failed validation, correcting",
			zap.String("nct_id", rec.NCTID),
			zap.Int("turn", turn+1),
			zap.Strings("issues", violation.Issues),
		)
		messages = append(messages,
			domain.Message{Role: domain.RoleAssistant, Content: raw},
			domain.Message{Role: domain.RoleUser, Content: correctionPrompt(violation.Issues)},
		)
	}
}

// Process extracts one record and persists the outcome before returning.
func (s *Service) Process(ctx context.Context, rec trial.Record) dombatch.Result {
	ext, err := s.Extract(ctx, &rec)
	if ctx.Err() != nil {
		return dombatch.NewFailed(rec.NCTID, ctx.Err())
	}
	if saveErr := s.repo.SaveExtraction(ctx, rec.NCTID, ext); saveErr != nil {
		if errors.Is(saveErr, db.ErrRecordNotFound) {
			// Eligibility text changed mid-extraction; the next pass picks up the new hash.
			s.logger.Info("Discarded stale extraction", zap.String("nct_id", rec.NCTID))
			return dombatch.NewSkipped(rec.NCTID)
		}
		s.logger.Error("Save extraction failed", zap.String("nct_id", rec.NCTID), zap.Error(saveErr))
		return dombatch.NewFailed(rec.NCTID, fmt.Errorf("save extraction: %w", saveErr))
	}
	metrics.ExtractionOutcomesTotal.WithLabelValues(s.cfg.Provider, string(ext.State)).Inc()

	switch ext.State {
	case domelig.StateExtracted:
		return dombatch.NewOK(rec.NCTID)
	case domelig.StateSkipped:
		return dombatch.NewSkipped(rec.NCTID)
	case domelig.StateNeedsReview:
		s.logger.Warn("Extraction needs review", zap.String("nct_id", rec.NCTID), zap.Error(err))
		return dombatch.NewNeedsReview(rec.NCTID, err)
	default:
		s.logger.Warn("Extraction failed", zap.String("nct_id", rec.NCTID), zap.Error(err))
		return dombatch.NewFailed(rec.NCTID, err)
	}
}

// Run is the extraction pass: it keyset-pages records needing extraction through the
// worker pool, one record per unit.
func (s *Service) Run(ctx context.Context) (dombatch.Report, error) {
	var rep dombatch.Report
	after := ""
	for {
		page, err := s.repo.PendingExtractions(ctx, s.cfg.SchemaVersion, after, s.cfg.PageSize)
		if err != nil {
			return rep, fmt.Errorf("list pending extractions: %w", err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].NCTID

		results, err := worker.Run(ctx, s.cfg.Concurrency, page, s.Process)
		for _, r := range results {
			if r.ID() != "" {
				rep.Add(r)
			}
		}
		if err != nil {
			return rep, fmt.Errorf("extraction pass: %w", err)
		}

		s.logger.Info("Extracted page",
			zap.String("after", after),
			zap.Int("processed", rep.Processed),
			zap.Int("needs_review", rep.NeedsReview),
			zap.Int("failed", rep.Failed),
		)
		if len(page) < s.cfg.PageSize {
			break
		}
	}
	return rep, nil
}

// complete calls the model, retrying transient failures. calls counts every request made.
func (s *Service) complete(ctx context.Context, messages []domain.Message, calls *int) (string, error) {
	var raw string
	err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		*calls++
		var err error
		raw, err = s.caller.Complete(ctx, messages)
		return err
	},
		retry.If(domain.IsTransient),
		retry.OnRetry(func(attempt int, err error, delay time.Duration) {
			s.logger.Warn("Extraction call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	)
	if err != nil && !domain.IsTransient(err) && !errors.Is(err, domain.ErrExtractionProviderError) {
		// Deadlines and cancellations surface as transient so the record stays PENDING.
		err = domain.NewTransient("extraction", err)
	}
	return raw, err
}

func (s *Service) stamp() *time.Time {
	t := s.now().UTC()
	return &t
}
