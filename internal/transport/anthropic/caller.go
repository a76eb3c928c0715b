// Package anthropic calls the Anthropic Messages API for eligibility extraction.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/domain"
)

const (
	service          = "anthropic"
	defaultMaxTokens = 2048
)

// Messager is the subset of the SDK messages service the caller needs.
type Messager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config configures the caller.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// Caller sends a conversation to Claude and returns the text of the reply.
type Caller struct {
	messages  Messager
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// NewCaller creates a caller backed by the SDK client.
func NewCaller(cfg *Config) *Caller {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	c := anthropic.NewClient(opts...)
	return NewCallerWithMessager(&c.Messages, cfg)
}

// NewCallerWithMessager creates a caller over an existing messages service.
func NewCallerWithMessager(m Messager, cfg *Config) *Caller {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{messages: m, model: cfg.Model, maxTokens: int64(maxTokens), logger: logger}
}

// Model returns the configured model name.
func (c *Caller) Model() string { return c.model }

// Complete sends the conversation at temperature 0. System turns become the system prompt.
func (c *Caller) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
	}
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case domain.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := c.messages.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%s: empty reply (stop reason %q): %w", service, resp.StopReason, domain.ErrExtractionProviderError)
	}
	return text, nil
}

// classifyError separates retryable transport failures from permanent provider errors.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", service, err)
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		// No HTTP status: connection reset, DNS failure and the like.
		return domain.NewTransient(service, err)
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return domain.NewTransient(service, fmt.Errorf("%w: %w", domain.ErrRateLimited, err))
	case apiErr.StatusCode >= 500 || apiErr.StatusCode == 529:
		return domain.NewTransient(service, err)
	default:
		return fmt.Errorf("%s: status %d: %w: %w", service, apiErr.StatusCode, domain.ErrExtractionProviderError, err)
	}
}
