package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/domain"
)

const serviceChat = "chat"

// ChatCaller asks an OpenAI-compatible chat model for a JSON object.
type ChatCaller struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewChatCaller creates a chat-completion JSON caller.
func NewChatCaller(cfg *Config) *ChatCaller {
	return &ChatCaller{
		client:    newClient(cfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Model returns the configured model name.
func (c *ChatCaller) Model() string { return c.model }

// Complete sends the conversation in JSON mode and returns the first choice's text.
func (c *ChatCaller) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens: c.maxTokens,
		// go-openai drops a zero temperature; the smallest float keeps decoding greedy.
		Temperature:    math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyError(serviceChat, domain.ErrExtractionProviderError, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices: %w", domain.ErrExtractionProviderError)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.Join(errors.New("chat response is empty"), domain.ErrExtractionProviderError)
	}
	return text, nil
}
