// Package grok is a client for the xAI Grok chat completions API.
package grok

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// Name is the display name of this backend.
const Name = "Grok"

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl is a Grok backend speaking the OpenAI-compatible API.
type Impl struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    zerolog.Logger
}

// New creates a new Grok client.
func New(logger zerolog.Logger, cfg models.GrokConfig) *Impl {
	return NewWithClient(logger, &http.Client{Timeout: 60 * time.Second}, cfg)
}

// NewWithClient creates a new Grok client with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, cfg models.GrokConfig) *Impl {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = httpClient

	return &Impl{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// Name returns the display name of the backend.
func (s *Impl) Name() string {
	return Name
}

// Complete sends prompt as a single user message and returns the first choice.
func (s *Impl) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("grok API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("grok returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("grok returned empty content")
	}

	s.logger.Debug().
		Str("model", resp.Model).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("grok completion received")

	return content, nil
}
