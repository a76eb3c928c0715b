package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/trialdex/internal/db"
	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/search/mode"
	"github.com/kailas-cloud/trialdex/internal/domain/search/request"
	"github.com/kailas-cloud/trialdex/internal/domain/search/result"
	"github.com/kailas-cloud/trialdex/internal/domain/trial"
	"github.com/kailas-cloud/trialdex/internal/metrics"
)

// Defaults for Config fields left zero.
const (
	DefaultTopK         = 200
	DefaultQueryTimeout = 5 * time.Second
)

// Config tunes the query path.
type Config struct {
	// TopK bounds the vector candidate set.
	TopK int
	// QueryTimeout bounds one whole search request.
	QueryTimeout time.Duration
	// Version is the embedding version tag query vectors are compared against.
	Version string
}

// Service answers hybrid, keyword and browse queries over the trial store.
type Service struct {
	repo   Repository
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates a search service.
func New(repo Repository, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &Service{repo: repo, embed: embed, cfg: cfg, logger: logger}
}

// Search returns one ranked page for req. Free text is answered by merging vector
// candidates with the keyword set; without it every record satisfying the filters is
// paged by last update. A query embedding failure degrades to keyword-only ranking.
func (s *Service) Search(ctx context.Context, req request.Request) (result.Page, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	page, err := s.search(ctx, req)
	m := string(page.Mode)
	if m == "" {
		m = string(mode.Browse)
		if req.Filters().HasQuery() {
			m = string(mode.Hybrid)
		}
	}
	metrics.SearchDuration.WithLabelValues(m).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.SearchRequestsTotal.WithLabelValues(m, "timeout").Inc()
			return result.Page{}, fmt.Errorf("%w after %s: %w", domain.ErrTimeout, s.cfg.QueryTimeout, err)
		}
		metrics.SearchRequestsTotal.WithLabelValues(m, "error").Inc()
		return result.Page{}, err
	}
	metrics.SearchRequestsTotal.WithLabelValues(m, "ok").Inc()
	if page.Degraded {
		metrics.SearchDegradedTotal.Inc()
	}
	return page, nil
}

func (s *Service) search(ctx context.Context, req request.Request) (result.Page, error) {
	set := req.Filters()
	if !set.HasQuery() {
		return s.browse(ctx, req, mode.Browse, result.MatchFilter)
	}

	// The embedding runs beside the keyword count; a reply arriving after the deadline
	// is dropped on the buffered channel.
	embedded := make(chan queryVector, 1)
	go func() {
		res, err := s.embed.Embed(ctx, set.Query())
		embedded <- queryVector{vec: res.Embedding, err: err}
	}()

	kwCount, err := s.repo.Count(ctx, set)
	if err != nil {
		return result.Page{Mode: mode.Hybrid}, fmt.Errorf("count keyword matches: %w", err)
	}

	var qv queryVector
	select {
	case <-ctx.Done():
		return result.Page{Mode: mode.Hybrid}, fmt.Errorf("embed query: %w", ctx.Err())
	case qv = <-embedded:
	}
	if err := ctx.Err(); err != nil {
		return result.Page{Mode: mode.Hybrid}, fmt.Errorf("embed query: %w", err)
	}
	vec, embErr := qv.vec, qv.err

	if embErr != nil || len(vec) == 0 {
		if embErr == nil {
			embErr = fmt.Errorf("%w: empty query vector", domain.ErrEmbeddingProviderError)
		}
		s.logger.Warn("query embedding failed, answering keyword-only",
			zap.String("query", set.Query()), zap.Error(embErr))
		page, err := s.browse(ctx, req, mode.Keyword, result.MatchKeyword)
		page.Degraded = err == nil
		return page, err
	}
	return s.hybrid(ctx, req, vec, kwCount)
}

// hybrid merges vector candidates (held in memory) with the keyword-only remainder
// (fetched from the store, vector ids excluded).
func (s *Service) hybrid(ctx context.Context, req request.Request, vec []float32, kwCount int) (result.Page, error) {
	set := req.Filters()
	cands, err := s.repo.NearestNeighbors(ctx, set, vec, s.cfg.Version, s.cfg.TopK)
	if err != nil {
		return result.Page{Mode: mode.Hybrid}, fmt.Errorf("nearest neighbors: %w", err)
	}
	ranked := rankCandidates(cands)
	page := result.Page{
		Total:    len(ranked) + kwCount - keywordHits(ranked),
		Page:     req.Page(),
		PageSize: req.PageSize(),
		Mode:     mode.Hybrid,
		Items:    []result.Hit{},
	}

	w := cut(ranked, req.Offset(), req.PageSize())
	if len(w.vector) > 0 {
		recs, err := s.repo.GetMany(ctx, candidateIDs(w.vector))
		if err != nil {
			return page, fmt.Errorf("load vector candidates: %w", err)
		}
		byID := make(map[string]trial.Record, len(recs))
		for _, r := range recs {
			byID[r.NCTID] = r
		}
		for _, c := range w.vector {
			rec, ok := byID[c.ID]
			if !ok {
				continue
			}
			sim := c.Similarity
			src := result.MatchVector
			if c.KeywordHit {
				src = result.MatchBoth
			}
			page.Items = append(page.Items, result.Hit{Record: rec, Similarity: &sim, Source: src})
		}
	}

	if w.restLimit > 0 && kwCount > keywordHits(ranked) {
		rest, err := s.repo.List(ctx, set, db.ListOptions{
			Exclude: candidateIDs(ranked),
			Offset:  w.restOffset,
			Limit:   w.restLimit,
		})
		if err != nil {
			return page, fmt.Errorf("list keyword matches: %w", err)
		}
		for _, rec := range rest {
			page.Items = append(page.Items, result.Hit{Record: rec, Source: result.MatchKeyword})
		}
	}
	return page, nil
}

// browse pages every record satisfying the set (free text included) by last update.
func (s *Service) browse(
	ctx context.Context, req request.Request, m mode.Mode, src result.MatchSource,
) (result.Page, error) {
	set := req.Filters()
	page := result.Page{Page: req.Page(), PageSize: req.PageSize(), Mode: m, Items: []result.Hit{}}

	var recs []trial.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.Count(gctx, set)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		page.Total = n
		return nil
	})
	g.Go(func() error {
		var err error
		recs, err = s.repo.List(gctx, set, db.ListOptions{Offset: req.Offset(), Limit: req.PageSize()})
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return result.Page{Mode: m}, err
	}
	for _, rec := range recs {
		page.Items = append(page.Items, result.Hit{Record: rec, Source: src})
	}
	return page, nil
}

// Get returns one full record.
func (s *Service) Get(ctx context.Context, nctID string) (trial.Record, error) {
	id := strings.ToUpper(strings.TrimSpace(nctID))
	if id == "" {
		return trial.Record{}, domain.NewValidationError("nct_id", "must not be empty")
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			return trial.Record{}, fmt.Errorf("trial %s: %w", id, domain.ErrNotFound)
		}
		return trial.Record{}, fmt.Errorf("get trial: %w", err)
	}
	return rec, nil
}

type queryVector struct {
	vec []float32
	err error
}
