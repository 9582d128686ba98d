package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

var ErrAPIError = errors.New("web search API error")

const opensearchLimit = 5

// provider is a JSON HTTP endpoint with its own timeout.
type provider struct {
	name       string
	httpClient *http.Client
	logger     zerolog.Logger
}

func newProvider(name string, timeoutSeconds int, logger zerolog.Logger) provider {
	return provider{
		name:       name,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		logger:     logger,
	}
}

func (p provider) getJSON(ctx context.Context, endpoint string, params url.Values, headers map[string]string, result interface{}) error {
	reqURL := endpoint
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		reqURL = endpoint + sep + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "diarybot/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn().Err(err).Str("provider", p.name).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn().Str("provider", p.name).Int("status", resp.StatusCode).Msg("Web search API error")
		return fmt.Errorf("%w: %s status %d", ErrAPIError, p.name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", p.name, err)
	}
	return nil
}

// opensearch returns article titles from one encyclopedia language edition.
func (p provider) opensearch(ctx context.Context, endpoint, query string) ([]string, error) {
	params := url.Values{}
	params.Set("action", "opensearch")
	params.Set("search", query)
	params.Set("limit", fmt.Sprintf("%d", opensearchLimit))
	params.Set("namespace", "0")
	params.Set("format", "json")

	var raw []json.RawMessage
	if err := p.getJSON(ctx, endpoint, params, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) < 2 {
		return nil, nil
	}

	var titles []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return nil, fmt.Errorf("failed to decode opensearch titles: %w", err)
	}

	out := make([]string, 0, len(titles))
	for _, t := range titles {
		if cleaned := cleanEncyclopediaTitle(t); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// brave queries the free web search tier.
func (p provider) brave(ctx context.Context, endpoint, apiKey, query string) ([]string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", "10")

	var resp braveResponse
	if err := p.getJSON(ctx, endpoint, params, map[string]string{"X-Subscription-Token": apiKey}, &resp); err != nil {
		return nil, err
	}

	var out []string
	for _, r := range resp.Web.Results {
		out = append(out, titleFromHeadline(stripHTML(r.Title))...)
		out = append(out, quotedTitles(stripHTML(r.Description))...)
	}
	return out, nil
}

type serpTitled struct {
	Title string `json:"title"`
	Name  string `json:"name"`
}

type serpResponse struct {
	KnowledgeGraph serpTitled   `json:"knowledge_graph"`
	AnswerBox      serpTitled   `json:"answer_box"`
	MovieResults   []serpTitled `json:"movie_results"`
	TVResults      []serpTitled `json:"tv_results"`
	OrganicResults []serpTitled `json:"organic_results"`
}

// serp queries the paid web search tier.
func (p provider) serp(ctx context.Context, endpoint, apiKey, query, hl string) ([]string, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", apiKey)
	if hl != "" {
		params.Set("hl", hl)
	}

	var resp serpResponse
	if err := p.getJSON(ctx, endpoint, params, nil, &resp); err != nil {
		return nil, err
	}

	var out []string
	add := func(t serpTitled) {
		title := t.Title
		if title == "" {
			title = t.Name
		}
		if title != "" {
			out = append(out, titleFromHeadline(stripHTML(title))...)
		}
	}

	add(resp.KnowledgeGraph)
	add(resp.AnswerBox)
	for _, r := range resp.MovieResults {
		add(r)
	}
	for _, r := range resp.TVResults {
		add(r)
	}
	for _, r := range resp.OrganicResults {
		add(r)
	}
	return out, nil
}

var (
	disambiguation = regexp.MustCompile(`(?i)\s*\(([^)]*?)(?:film|movie|tv series|series|miniseries|фильм|сериал|мультфильм|телесериал|фільм|серіал|мультфільм)[^)]*\)\s*$`)
	yearOnly       = regexp.MustCompile(`(?:19|20)\d{2}`)
	headlineSplit  = regexp.MustCompile(`\s+[|—–-]\s+|:\s+|\s+\.\.\.`)
	quoted         = regexp.MustCompile(`[«"“]([^»"”]{2,80})[»"”]`)
)

// cleanEncyclopediaTitle turns "Deep Blue Sea (1999 film)" into "Deep Blue Sea 1999".
func cleanEncyclopediaTitle(t string) string {
	t = strings.TrimSpace(t)
	m := disambiguation.FindStringSubmatchIndex(t)
	if m == nil {
		return t
	}
	base := strings.TrimSpace(t[:m[0]])
	if year := yearOnly.FindString(t[m[0]:]); year != "" {
		return base + " " + year
	}
	return base
}

// titleFromHeadline keeps the leading segment of a page title such as
// "Inception (2010) - IMDb".
func titleFromHeadline(h string) []string {
	h = strings.TrimSpace(h)
	if h == "" {
		return nil
	}
	parts := headlineSplit.Split(h, -1)
	head := strings.TrimSpace(parts[0])
	if head == "" {
		return nil
	}
	return []string{head}
}

func quotedTitles(s string) []string {
	var out []string
	for _, m := range quoted.FindAllStringSubmatch(s, 3) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// stripHTML drops markup such as <strong> highlights from snippets.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
