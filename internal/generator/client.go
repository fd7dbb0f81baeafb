// Package generator produces story titles and speech transcripts through a
// chat-completion API. Calls block while retrying, so they belong inside
// the deferred job, never on a trigger path.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"babbel_syncer/internal/domain"
)

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	TitlePrompt    string
	SpeechPrompt   string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	model          string
	titlePrompt    string
	speechPrompt   string
	maxAttempts    int
	initialBackoff time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		titlePrompt:    cfg.TitlePrompt,
		speechPrompt:   cfg.SpeechPrompt,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		logger:         logger.With("component", "generator"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate produces the requested kind of text from the source content.
// It retries transient failures with doubling backoff before giving up.
func (c *Client) Generate(ctx context.Context, source string, kind domain.GenerationKind) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("generator API key is not configured")
	}

	prompt := c.titlePrompt
	if kind == domain.KindSpeech {
		prompt = c.speechPrompt
	}

	var text string
	var err error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		text, err = c.complete(ctx, prompt, source)
		if err == nil {
			return text, nil
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("generation failed, retrying",
			"kind", kind,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("response contains no completion")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	return backoff
}
