package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/config"
	"github.com/diarybot/diarybot/internal/media"
)

var (
	ErrAPIKeyMissing = errors.New("TMDB API key is not configured")
	ErrUnauthorized  = errors.New("TMDB API unauthorized")
	ErrAPIError      = errors.New("TMDB API error")
	ErrRateLimited   = errors.New("TMDB API rate limited")
)

// Client is a TMDB API client.
type Client struct {
	httpClient *http.Client
	config     config.TMDBConfig
	logger     zerolog.Logger
	authOnce   sync.Once
	authFailed atomic.Bool
}

// NewClient creates a new TMDB client.
func NewClient(cfg config.TMDBConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		config: cfg,
		logger: logger.With().Str("component", "tmdb").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "tmdb"
}

// IsConfigured returns true if an API key or read access token is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != "" || c.config.ReadAccessToken != ""
}

// SearchMulti searches movies and TV series by free text. Person hits are skipped.
func (c *Client) SearchMulti(ctx context.Context, query, language string) ([]media.CandidateRecord, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	if language != "" {
		params.Set("language", language)
	}

	var response SearchMultiResponse
	if err := c.doRequest(ctx, c.config.BaseURL+"/search/multi", params, &response); err != nil {
		return nil, err
	}

	results := make([]media.CandidateRecord, 0, len(response.Results))
	for _, r := range response.Results {
		if rec, ok := c.toCandidate(r, ""); ok {
			results = append(results, rec)
		}
	}

	c.logger.Debug().
		Str("query", query).
		Str("language", language).
		Int("results", len(results)).
		Msg("Multi search completed")

	return results, nil
}

// SearchPerson searches people by name.
func (c *Client) SearchPerson(ctx context.Context, name, language string) ([]PersonResult, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	params := url.Values{}
	params.Set("query", name)
	params.Set("include_adult", "false")
	if language != "" {
		params.Set("language", language)
	}

	var response SearchPersonResponse
	if err := c.doRequest(ctx, c.config.BaseURL+"/search/person", params, &response); err != nil {
		return nil, err
	}

	people := make([]PersonResult, 0, len(response.Results))
	for _, p := range response.Results {
		if !p.Adult {
			people = append(people, p)
		}
	}
	return people, nil
}

// DiscoverByCast returns movies featuring all of the given people, most popular first.
func (c *Client) DiscoverByCast(ctx context.Context, personIDs []int, language string) ([]media.CandidateRecord, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}
	if len(personIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(personIDs))
	for i, id := range personIDs {
		ids[i] = strconv.Itoa(id)
	}

	params := url.Values{}
	params.Set("with_cast", strings.Join(ids, ","))
	params.Set("sort_by", "popularity.desc")
	params.Set("include_adult", "false")
	if language != "" {
		params.Set("language", language)
	}

	var response DiscoverMovieResponse
	if err := c.doRequest(ctx, c.config.BaseURL+"/discover/movie", params, &response); err != nil {
		return nil, err
	}

	results := make([]media.CandidateRecord, 0, len(response.Results))
	for _, r := range response.Results {
		if rec, ok := c.toCandidate(r, media.KindMovie); ok {
			results = append(results, rec)
		}
	}

	c.logger.Debug().
		Ints("cast", personIDs).
		Int("results", len(results)).
		Msg("Discover by cast completed")

	return results, nil
}

// GetImageURL returns the full URL for an image path.
func (c *Client) GetImageURL(path string, size string) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s%s", c.config.ImageBaseURL, size, path)
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	// Rejected credentials stay rejected until restart.
	if c.authFailed.Load() {
		return ErrUnauthorized
	}
	if c.config.ReadAccessToken == "" {
		params.Set("api_key", c.config.APIKey)
	}
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.ReadAccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.ReadAccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", endpoint).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			c.authFailed.Store(true)
			c.authOnce.Do(func() {
				c.logger.Error().
					Int("status", resp.StatusCode).
					Str("message", errResp.StatusMessage).
					Msg("TMDB rejected credentials, title search is disabled until restart with a valid key")
			})
			return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		case http.StatusTooManyRequests:
			c.logger.Warn().Str("url", endpoint).Msg("TMDB rate limited")
			return ErrRateLimited
		default:
			c.logger.Warn().
				Int("status", resp.StatusCode).
				Str("message", errResp.StatusMessage).
				Msg("TMDB API error")
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// toCandidate converts a search hit. kind overrides media_type for
// endpoints that do not report it.
func (c *Client) toCandidate(r MultiResult, kind media.Kind) (media.CandidateRecord, bool) {
	if kind == "" {
		switch r.MediaType {
		case "movie":
			kind = media.KindMovie
		case "tv":
			kind = media.KindTV
		default:
			return media.CandidateRecord{}, false
		}
	}

	rec := media.CandidateRecord{
		Kind:             kind,
		ID:               r.ID,
		Overview:         r.Overview,
		Popularity:       r.Popularity,
		VoteAverage:      r.VoteAverage,
		VoteCount:        r.VoteCount,
		OriginalLanguage: r.OriginalLanguage,
		Adult:            r.Adult,
	}

	date := r.ReleaseDate
	if kind == media.KindTV {
		rec.Title, rec.OriginalTitle, date = r.Name, r.OriginalName, r.FirstAirDate
	} else {
		rec.Title, rec.OriginalTitle = r.Title, r.OriginalTitle
	}
	if rec.Title == "" {
		rec.Title = firstNonEmpty(r.Title, r.Name, rec.OriginalTitle)
	}
	if len(date) >= 4 {
		rec.Year = date[:4]
	}
	if r.PosterPath != nil {
		rec.PosterPath = *r.PosterPath
	}

	return rec, rec.Title != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
