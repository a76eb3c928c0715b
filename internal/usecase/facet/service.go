package facet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/trialdex/internal/domain"
	domfacet "github.com/kailas-cloud/trialdex/internal/domain/facet"
	"github.com/kailas-cloud/trialdex/internal/domain/search/filter"
)

// Defaults for Config fields left zero.
const (
	DefaultConditionLimit = 10
	DefaultTopN           = 10
	DefaultQueryTimeout   = 5 * time.Second
)

// Config tunes facet output.
type Config struct {
	// ConditionLimit is the number of named condition buckets before the tail is folded.
	ConditionLimit int
	// TopN bounds the landscape sponsor and intervention rankings.
	TopN int
	// QueryTimeout bounds one Facets or Landscape call.
	QueryTimeout time.Duration
}

// Service computes dashboard facets and the condition landscape.
type Service struct {
	repo   Repository
	cfg    Config
	logger *zap.Logger
}

// New creates a facet service.
func New(repo Repository, cfg Config, logger *zap.Logger) *Service {
	if cfg.ConditionLimit <= 0 {
		cfg.ConditionLimit = DefaultConditionLimit
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &Service{repo: repo, cfg: cfg, logger: logger}
}

// Facets counts every dashboard dimension concurrently. Each dimension is counted under
// the set minus its own restriction, so a selected value never hides its siblings.
func (s *Service) Facets(ctx context.Context, set filter.Set) (domfacet.Facets, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	f, err := s.facets(ctx, set)
	if err != nil {
		return nil, s.deadline(ctx, err)
	}
	return f, nil
}

func (s *Service) facets(ctx context.Context, set filter.Set) (domfacet.Facets, error) {
	var mu sync.Mutex
	out := make(domfacet.Facets, len(domfacet.Dimensions))

	g, gctx := errgroup.WithContext(ctx)
	for _, dim := range domfacet.Dimensions {
		g.Go(func() error {
			counts, err := s.repo.GroupCount(gctx, set.Without(dim), dim)
			if err != nil {
				return fmt.Errorf("facet %s: %w", dim, err)
			}
			b := buckets(dim, counts, s.cfg.ConditionLimit)
			mu.Lock()
			out[dim] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Landscape summarizes the records satisfying set: total, facets, leading sponsors and
// interventions, and enrollment statistics.
func (s *Service) Landscape(ctx context.Context, set filter.Set) (domfacet.Landscape, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	var land domfacet.Landscape

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.Count(gctx, set)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		land.Total = n
		return nil
	})
	g.Go(func() error {
		f, err := s.facets(gctx, set)
		if err != nil {
			return err
		}
		land.Facets = f
		return nil
	})
	g.Go(func() error {
		counts, err := s.repo.TopSponsors(gctx, set, s.cfg.TopN)
		if err != nil {
			return fmt.Errorf("top sponsors: %w", err)
		}
		land.TopSponsors = labelled(counts)
		return nil
	})
	g.Go(func() error {
		counts, err := s.repo.TopInterventions(gctx, set, s.cfg.TopN)
		if err != nil {
			return fmt.Errorf("top interventions: %w", err)
		}
		land.TopInterventions = labelled(counts)
		return nil
	})
	g.Go(func() error {
		st, err := s.repo.EnrollmentStats(gctx, set)
		if err != nil {
			return fmt.Errorf("enrollment stats: %w", err)
		}
		land.Enrollment = st
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("landscape failed", zap.Error(err))
		return domfacet.Landscape{}, s.deadline(ctx, err)
	}
	return land, nil
}

// deadline reports err as domain.ErrTimeout when the request ran out of time.
func (s *Service) deadline(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", domain.ErrTimeout, s.cfg.QueryTimeout, err)
	}
	return err
}
