// Package nanogpt is a client for the NanoGPT chat API.
package nanogpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/rs/zerolog"
)

// Name is the display name of this backend.
const Name = "NanoGPT"

// infoStart and infoEnd delimit the metadata trailer of a reply.
const (
	infoStart = "<NanoGPT>"
	infoEnd   = "</NanoGPT>"
)

// maxBody caps how much of a response body is read.
const maxBody = 4 << 20

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl is a NanoGPT backend.
type Impl struct {
	httpClient HTTPClient
	cfg        models.NanoGPTConfig
	logger     zerolog.Logger
}

// New creates a new NanoGPT client. The dispatcher bounds each call with its
// own deadline, so the HTTP client timeout is only a backstop.
func New(logger zerolog.Logger, cfg models.NanoGPTConfig) *Impl {
	return NewWithClient(logger, &http.Client{Timeout: 60 * time.Second}, cfg)
}

// NewWithClient creates a new NanoGPT client with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, cfg models.NanoGPTConfig) *Impl {
	return &Impl{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
	}
}

// Name returns the display name of the backend.
func (s *Impl) Name() string {
	return Name
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type talkRequest struct {
	Prompt   string    `json:"prompt"`
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

// Complete sends prompt to /talk-to-gpt and returns the answer text.
func (s *Impl) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(talkRequest{
		Prompt:   prompt,
		Model:    s.cfg.Model,
		Messages: []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	data, err := s.post(ctx, "/talk-to-gpt", body)
	if err != nil {
		return "", err
	}

	answer, info := parseReply(string(data))
	if answer == "" {
		return "", fmt.Errorf("nanogpt returned an empty answer")
	}

	if info != nil {
		s.logger.Debug().
			Float64("cost", info.Cost).
			Int("input_tokens", info.InputTokens).
			Int("output_tokens", info.OutputTokens).
			Msg("nanogpt usage")
	}

	return answer, nil
}

// Balance returns the account balance from /check-nano-balance.
func (s *Impl) Balance(ctx context.Context) (*models.Balance, error) {
	data, err := s.post(ctx, "/check-nano-balance", []byte("{}"))
	if err != nil {
		return nil, err
	}

	var balance models.Balance
	if err := json.Unmarshal(data, &balance); err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	return &balance, nil
}

func (s *Impl) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	url := s.cfg.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nanogpt API returned status %d", resp.StatusCode)
	}

	return data, nil
}

// parseReply splits "answer<NanoGPT>{json}</NanoGPT>" into the trimmed answer
// and its metadata. A malformed or absent trailer yields nil info.
func parseReply(body string) (string, *models.NanoGPTInfo) {
	idx := strings.Index(body, infoStart)
	if idx < 0 {
		return strings.TrimSpace(body), nil
	}

	answer := strings.TrimSpace(body[:idx])
	trailer := body[idx+len(infoStart):]
	end := strings.Index(trailer, infoEnd)
	if end < 0 {
		return answer, nil
	}

	var info models.NanoGPTInfo
	if err := json.Unmarshal([]byte(trailer[:end]), &info); err != nil {
		return answer, nil
	}
	return answer, &info
}
