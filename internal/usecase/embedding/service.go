// Package embedding keeps one current vector per trial record.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain"
	dombatch "github.com/kailas-cloud/trialdex/internal/domain/batch"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
	"github.com/kailas-cloud/trialdex/internal/retry"
	"github.com/kailas-cloud/trialdex/internal/worker"
)

// Defaults for the embedding pass.
const (
	DefaultBatchSize     = 64
	DefaultMaxInputChars = 8000
	DefaultConcurrency   = 4
)

// Config configures the embedding service.
type Config struct {
	Model      string
	Dimensions int
	// BatchSize bounds the inputs sent in one provider call and the records handed to one worker.
	BatchSize     int
	MaxInputChars int
	Concurrency   int
	Retry         retry.Config
}

// Service computes, combines and persists record vectors.
type Service struct {
	provider domain.BatchEmbedder
	repo     Repository
	cfg      Config
	version  string
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an embedding service.
func New(provider domain.BatchEmbedder, repo Repository, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Service{
		provider: provider,
		repo:     repo,
		cfg:      cfg,
		version:  domain.VersionTag(cfg.Model, cfg.Dimensions),
		logger:   logger,
		now:      time.Now,
	}
}

// Version returns the version tag stamped on every vector this service writes.
func (s *Service) Version() string { return s.version }

// EnsureEmbedding returns the record's vector, computing and persisting it only when the
// stored one is missing or stale. rec.Embedding is updated in place.
func (s *Service) EnsureEmbedding(ctx context.Context, rec *trial.Record) ([]float32, error) {
	if !rec.NeedsEmbedding(s.version) && len(rec.Embedding.Vector) > 0 {
		return rec.Embedding.Vector, nil
	}

	outs := s.embed(ctx, []trial.Record{*rec})
	if err := outs[0].err; err != nil {
		return nil, err
	}
	if outs[0].stale {
		return nil, fmt.Errorf("record %s changed while embedding: %w", rec.NCTID, domain.ErrTransientService)
	}
	rec.Embedding = outs[0].state
	return outs[0].state.Vector, nil
}

// EmbedBatch embeds and persists every record. Failures are isolated per provider call:
// records of a failed call are marked EMBEDDING_FAILED and the rest continue.
func (s *Service) EmbedBatch(ctx context.Context, records []trial.Record) []dombatch.Result {
	outs := s.embed(ctx, records)
	results := make([]dombatch.Result, len(records))
	for i, o := range outs {
		id := records[i].NCTID
		switch {
		case o.err != nil:
			results[i] = dombatch.NewFailed(id, o.err)
		case o.stale:
			results[i] = dombatch.NewSkipped(id)
		default:
			results[i] = dombatch.NewOK(id)
		}
	}
	return results
}

// Run is the embedding pass: it keyset-pages stale records by identifier and hands one
// batch per worker to the pool. Records failed in this pass are retried on the next one.
func (s *Service) Run(ctx context.Context) (dombatch.Report, error) {
	var rep dombatch.Report
	pageSize := s.cfg.BatchSize * s.cfg.Concurrency
	after := ""
	for {
		page, err := s.repo.PendingEmbeddings(ctx, s.version, after, pageSize)
		if err != nil {
			return rep, fmt.Errorf("list pending embeddings: %w", err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].NCTID

		var batches [][]trial.Record
		for start := 0; start < len(page); start += s.cfg.BatchSize {
			batches = append(batches, page[start:min(start+s.cfg.BatchSize, len(page))])
		}
		results, err := worker.Run(ctx, s.cfg.Concurrency, batches, s.EmbedBatch)
		for _, batch := range results {
			for _, r := range batch {
				rep.Add(r)
			}
		}
		if err != nil {
			return rep, fmt.Errorf("embedding pass: %w", err)
		}

		s.logger.Info("Embedded page",
			zap.String("version", s.version),
			zap.String("after", after),
			zap.Int("processed", rep.Processed),
			zap.Int("failed", rep.Failed),
		)
		if len(page) < pageSize {
			break
		}
	}
	return rep, nil
}

type outcome struct {
	state trial.EmbeddingState
	stale bool
	err   error
}

type piece struct {
	record int
	text   string
}

// embed chunks every record, calls the provider in slices of BatchSize inputs and
// persists each record whose chunks all came back.
func (s *Service) embed(ctx context.Context, records []trial.Record) []outcome {
	outs := make([]outcome, len(records))
	vectors := make([][][]float32, len(records))
	weights := make([][]int, len(records))

	var pieces []piece
	for i := range records {
		chunks := splitText(records[i].CanonicalText, s.cfg.MaxInputChars)
		if len(chunks) == 0 {
			outs[i].err = domain.NewValidationError("canonical_text", "empty for %s", records[i].NCTID)
			continue
		}
		for _, c := range chunks {
			pieces = append(pieces, piece{record: i, text: c})
			weights[i] = append(weights[i], utf8.RuneCountInString(c))
		}
	}

	for start := 0; start < len(pieces); start += s.cfg.BatchSize {
		call := pieces[start:min(start+s.cfg.BatchSize, len(pieces))]
		texts := make([]string, len(call))
		for j, p := range call {
			texts[j] = p.text
		}

		res, err := s.callProvider(ctx, texts)
		for j, p := range call {
			if outs[p.record].err != nil {
				continue
			}
			if err != nil {
				outs[p.record].err = err
				continue
			}
			vectors[p.record] = append(vectors[p.record], res.Embeddings[j])
		}
	}

	for i := range records {
		if outs[i].err == nil {
			outs[i] = s.persist(ctx, &records[i], vectors[i], weights[i])
		}
		if outs[i].err != nil {
			s.markFailed(ctx, records[i].NCTID, outs[i].err)
		}
	}
	return outs
}

func (s *Service) callProvider(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var res domain.BatchEmbeddingResult
	err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		var err error
		res, err = s.provider.BatchEmbed(ctx, texts)
		if err == nil && len(res.Embeddings) != len(texts) {
			err = fmt.Errorf("got %d vectors for %d inputs: %w", len(res.Embeddings), len(texts), domain.ErrEmbeddingProviderError)
		}
		return err
	},
		retry.If(domain.IsTransient),
		retry.OnRetry(func(attempt int, err error, delay time.Duration) {
			s.logger.Warn("Embedding call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("inputs", len(texts)),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	)
	return res, err
}

func (s *Service) persist(ctx context.Context, rec *trial.Record, vectors [][]float32, weights []int) outcome {
	for _, v := range vectors {
		if len(v) != s.cfg.Dimensions {
			return outcome{err: fmt.Errorf(
				"vector has %d dimensions, want %d: %w", len(v), s.cfg.Dimensions, domain.ErrEmbeddingProviderError,
			)}
		}
	}
	vec := combine(vectors, weights)
	if vec == nil {
		return outcome{err: fmt.Errorf("zero vector for %s: %w", rec.NCTID, domain.ErrEmbeddingProviderError)}
	}

	at := s.now().UTC()
	st := trial.EmbeddingState{
		Vector:     vec,
		Version:    s.version,
		Hash:       rec.ContentHash,
		Status:     trial.EmbeddingCurrent,
		Attempts:   rec.Embedding.Attempts + 1,
		EmbeddedAt: &at,
	}
	if err := s.repo.SaveEmbedding(ctx, rec.NCTID, st); err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			// Content changed or the record is gone; the next pass picks up the new hash.
			s.logger.Info("Discarded stale embedding", zap.String("nct_id", rec.NCTID))
			return outcome{stale: true}
		}
		return outcome{err: fmt.Errorf("save embedding: %w", err)}
	}
	return outcome{state: st}
}

func (s *Service) markFailed(ctx context.Context, id string, cause error) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Warn("Embedding failed", zap.String("nct_id", id), zap.Error(cause))
	if err := s.repo.MarkEmbeddingFailed(ctx, id, cause.Error()); err != nil {
		s.logger.Error("Mark embedding failed", zap.String("nct_id", id), zap.Error(err))
	}
}
