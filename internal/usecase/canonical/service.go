package canonical

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	dombatch "github.com/kailas-cloud/trialdex/internal/domain/batch"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
	"github.com/kailas-cloud/trialdex/internal/metrics"
	"github.com/kailas-cloud/trialdex/internal/worker"
)

// DefaultPageSize is the feed page size used when none is configured.
const DefaultPageSize = 100

// Options bounds one ingestion pass.
type Options struct {
	// Limit stops the pass after this many fetched studies. Zero means no limit.
	Limit int
}

// Report tallies an ingestion pass.
type Report struct {
	Fetched  int
	Upserted int
	Rejected int
	Failed   int
	Pages    int
}

// Service runs the ingestion pass: fetch, normalize, upsert.
type Service struct {
	feed        Feed
	repo        Repository
	pageSize    int
	concurrency int
	logger      *zap.Logger
}

// New creates an ingestion service.
func New(feed Feed, repo Repository, logger *zap.Logger) *Service {
	return &Service{feed: feed, repo: repo, pageSize: DefaultPageSize, concurrency: 8, logger: logger}
}

// WithPageSize configures the feed page size.
func (s *Service) WithPageSize(n int) *Service {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// WithConcurrency configures the number of concurrent upserts.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Ingest pages through the feed until an empty page, a missing next token or the limit.
// Per-record failures are counted and logged; only feed and context errors end the pass early.
func (s *Service) Ingest(ctx context.Context, opts Options) (Report, error) {
	var rep Report
	token := ""
	for {
		size := s.pageSize
		if opts.Limit > 0 {
			size = min(size, opts.Limit-rep.Fetched)
		}

		page, err := s.feed.FetchPage(ctx, token, size)
		if err != nil {
			return rep, fmt.Errorf("fetch page %d: %w", rep.Pages+1, err)
		}
		if len(page.Studies) == 0 {
			break
		}
		rep.Pages++

		studies := page.Studies
		if opts.Limit > 0 && rep.Fetched+len(studies) > opts.Limit {
			studies = studies[:opts.Limit-rep.Fetched]
		}
		rep.Fetched += len(studies)

		records := make([]trial.Record, 0, len(studies))
		for i := range studies {
			rec, err := Normalize(studies[i])
			if err != nil {
				rep.Rejected++
				metrics.IngestRecordsTotal.WithLabelValues("rejected").Inc()
				s.logger.Warn("Rejected study",
					zap.Int("page", rep.Pages),
					zap.Int("index", i),
					zap.Error(err),
				)
				continue
			}
			records = append(records, rec)
		}

		results, err := worker.Run(ctx, s.concurrency, records, s.upsert)
		for _, res := range results {
			switch res.Status() {
			case dombatch.StatusOK:
				rep.Upserted++
			case dombatch.StatusFailed:
				rep.Failed++
			}
		}
		if err != nil {
			return rep, fmt.Errorf("ingest pass: %w", err)
		}

		s.logger.Info("Ingested page",
			zap.Int("page", rep.Pages),
			zap.Int("fetched", rep.Fetched),
			zap.Int("upserted", rep.Upserted),
		)

		if page.NextPageToken == "" || (opts.Limit > 0 && rep.Fetched >= opts.Limit) {
			break
		}
		token = page.NextPageToken
	}
	return rep, nil
}

func (s *Service) upsert(ctx context.Context, rec trial.Record) dombatch.Result {
	if err := s.repo.Upsert(ctx, &rec); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Upsert failed", zap.String("nct_id", rec.NCTID), zap.Error(err))
		}
		metrics.IngestRecordsTotal.WithLabelValues("failed").Inc()
		return dombatch.NewFailed(rec.NCTID, err)
	}
	metrics.IngestRecordsTotal.WithLabelValues("upserted").Inc()
	return dombatch.NewOK(rec.NCTID)
}
