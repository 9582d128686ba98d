// Package llm is a small chat-completions client for text and image prompts.
// Calls are made once; the media pipeline treats a failure as an empty stage.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/config"
)

var (
	ErrNotConfigured = errors.New("llm not configured")
	ErrAPIError      = errors.New("llm API error")
	ErrEmptyResponse = errors.New("llm returned empty content")
)

const defaultHTTPTimeout = 25 * time.Second

// Client wraps an OpenAI-compatible chat completion endpoint.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg config.LLMConfig, logger zerolog.Logger) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "llm").Logger(),
	}
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.cfg.APIKey != "" && c.cfg.BaseURL != ""
}

// Complete sends a system instruction and a user message.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(system)},
			{Role: "user", Content: strings.TrimSpace(user)},
		},
		Temperature: 0.3,
	}
	return c.send(ctx, payload, "complete")
}

// Vision sends a prompt with an inline base64 image.
func (c *Client) Vision(ctx context.Context, system, prompt string, img []byte, mimeType string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	if len(img) == 0 {
		return "", fmt.Errorf("llm vision: image required")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img)

	payload := chatRequest{
		Model: c.cfg.VisionModel,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(system)},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: strings.TrimSpace(prompt)},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			}},
		},
		Temperature: 0,
	}
	return c.send(ctx, payload, "vision")
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) send(ctx context.Context, payload chatRequest, op string) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm %s: encode body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("llm %s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm %s: http error (timeout=%s): %w", op, c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm %s: read body: %w", op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: %s status %d: %s", ErrAPIError, op, resp.StatusCode, snippet(string(body)))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("llm %s: decode response: %w", op, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrAPIError, op, strings.TrimSpace(completion.Error.Message))
	}

	c.logger.Debug().
		Str("op", op).
		Str("model", completion.Model).
		Int("prompt_tokens", completion.Usage.PromptTokens).
		Int("completion_tokens", completion.Usage.CompletionTokens).
		Int("total_tokens", completion.Usage.TotalTokens).
		Dur("elapsed", time.Since(start)).
		Msg("LLM usage")

	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if text := strings.TrimSpace(choice.Text); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("llm %s: %w", op, ErrEmptyResponse)
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const limit = 160
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
