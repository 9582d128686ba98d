// Package lens turns a reverse-image lookup into title search candidates.
package lens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/config"
)

var (
	ErrNotConfigured = errors.New("reverse image lookup not configured")
	ErrAPIError      = errors.New("reverse image lookup API error")
)

const maxResponseBytes = 2 << 20

// Client posts images to a reverse-image search service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg config.LensConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSpace(cfg.BaseURL),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		logger: logger.With().Str("component", "lens").Logger(),
	}
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.baseURL != ""
}

// Lookup uploads img and returns the free-text strings the service found.
func (c *Client) Lookup(ctx context.Context, img []byte, ext, lang string) ([]string, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpg"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "image."+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	if lang != "" {
		if err := w.WriteField("lang", lang); err != nil {
			return nil, fmt.Errorf("failed to write field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Reverse image request failed")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Reverse image API error")
		return nil, fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return ParseResponse(data)
}

// ParseResponse accepts the shapes reverse-image services return: a bare
// string list, or an object holding a list of strings or of objects with
// a title/name/text field.
func ParseResponse(data []byte) ([]string, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var out []string
	switch v := raw.(type) {
	case []interface{}:
		out = collectStrings(v)
	case map[string]interface{}:
		for _, key := range []string{"candidates", "results", "titles", "visual_matches", "matches", "items"} {
			if list, ok := v[key].([]interface{}); ok {
				out = append(out, collectStrings(list)...)
			}
		}
		for _, key := range []string{"best_guess", "title"} {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out, nil
}

func collectStrings(list []interface{}) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]interface{}:
			for _, key := range []string{"title", "name", "text"} {
				if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
					break
				}
			}
		}
	}
	return out
}
