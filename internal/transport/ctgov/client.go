// Package ctgov reads the ClinicalTrials.gov v2 studies feed.
package ctgov

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/retry"
)

const (
	service = "ctgov"

	// DefaultBaseURL is the public v2 API root.
	DefaultBaseURL = "https://clinicaltrials.gov/api/v2"
	// MaxPageSize is the largest page the feed serves.
	MaxPageSize = 1000

	defaultTimeout = 60 * time.Second
	maxErrorBody   = 512
)

// Config configures the feed client.
type Config struct {
	BaseURL           string
	RequestsPerSecond float64
	Retry             retry.Config
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client pages through the studies endpoint under a token-bucket rate limit.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   retry.Config
	logger  *zap.Logger
}

// NewClient creates a feed client.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		retry:   cfg.Retry,
		logger:  logger,
	}
}

// FetchPage returns one page of studies. An empty token asks for the first page.
func (c *Client) FetchPage(ctx context.Context, pageToken string, pageSize int) (Page, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		return Page{}, domain.NewValidationError("page_size", "must be 1..%d, got %d", MaxPageSize, pageSize)
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("fields", "protocolSection")
	q.Set("pageSize", strconv.Itoa(pageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	endpoint := c.baseURL + "/studies?" + q.Encode()

	var page Page
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var err error
		page, err = c.get(ctx, endpoint)
		return err
	},
		retry.If(domain.IsTransient),
		retry.OnRetry(func(attempt int, err error, delay time.Duration) {
			c.logger.Warn("Feed request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return Page{}, fmt.Errorf("fetch studies page: %w", err)
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Page{}, err
		}
		return Page{}, domain.NewTransient(service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, body)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return Page{}, domain.NewTransient(service, fmt.Errorf("%w: %w", domain.ErrRateLimited, statusErr))
		case resp.StatusCode >= 500:
			return Page{}, domain.NewTransient(service, statusErr)
		default:
			return Page{}, statusErr
		}
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}
