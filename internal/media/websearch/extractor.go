// Package websearch derives alternate title queries from encyclopedia and
// web search results when a direct title search finds nothing.
package websearch

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/config"
	"github.com/diarybot/diarybot/internal/media"
	"github.com/diarybot/diarybot/internal/media/mediaquery"
)

const (
	MaxCandidates = 15

	maxResultRunes = 85
	maxResultWords = 12
)

// Source tags.
const (
	SourceEpisode    = "episode"
	SourceSerpAPI    = "serpapi"
	SourceWikipedia  = "wikipedia"
	SourceBrave      = "brave"
	SourceOriginal   = "original"
	SourcePaidDenied = "serpapi-denied"
)

var blockedTerms = []string{
	"watch", "stream", "torrent", "download", "netflix", "hd", "1080p", "720p", "full movie",
	"online", "free", "смотреть", "онлайн", "скачать", "торрент", "бесплатно", "дивитися",
}

// Extractor runs the cost-ordered web candidate waterfall.
type Extractor struct {
	wiki     provider
	braveP   provider
	serpP    provider
	wikiCfg  config.WikipediaConfig
	braveCfg config.BraveConfig
	serpCfg  config.SerpAPIConfig
	logger   zerolog.Logger
}

func NewExtractor(wiki config.WikipediaConfig, brave config.BraveConfig, serp config.SerpAPIConfig, logger zerolog.Logger) *Extractor {
	log := logger.With().Str("component", "web-candidates").Logger()
	return &Extractor{
		wiki:     newProvider("wikipedia", wiki.Timeout, log),
		braveP:   newProvider("brave", brave.Timeout, log),
		serpP:    newProvider("serpapi", serp.Timeout, log),
		wikiCfg:  wiki,
		braveCfg: brave,
		serpCfg:  serp,
		logger:   log,
	}
}

// Candidates returns up to 15 title-like strings for query and a "+"
// joined tag of the tiers that contributed. The paid tier is only tried
// when charger is non-nil, an API key is configured and the free tiers
// found nothing. The original query is always the last resort entry.
func (e *Extractor) Candidates(ctx context.Context, query string, charger media.Charger) ([]string, string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ""
	}

	q := mediaquery.Parse(query)
	search := q.Normalized
	if search == "" {
		search = mediaquery.Normalize(query)
	}

	var (
		tiers   []string
		episode []string
		paid    []string
		free    []string
	)

	if season, ep, ok := mediaquery.ExtractEpisode(query); ok {
		title := mediaquery.StripYear(mediaquery.StripEpisode(mediaquery.Normalize(query)), q.Year)
		if title != "" {
			episode = EpisodeVariants(title, season, ep)
			tiers = append(tiers, SourceEpisode)
		}
	}

	wiki := e.fromWikipedia(ctx, search)
	if len(wiki) > 0 {
		tiers = append(tiers, SourceWikipedia)
	}
	brave := e.fromBrave(ctx, search)
	if len(brave) > 0 {
		tiers = append(tiers, SourceBrave)
	}
	free = append(wiki, brave...)

	if len(free) == 0 && charger != nil && e.serpCfg.APIKey != "" {
		var tag string
		paid, tag = e.fromSerp(ctx, search, charger)
		if tag != "" {
			tiers = append(tiers, tag)
		}
	}

	all := make([]string, 0, len(episode)+len(paid)+len(free)+1)
	all = append(all, episode...)
	all = append(all, paid...)
	all = append(all, free...)
	all = append(all, query)
	tiers = append(tiers, SourceOriginal)

	out := Finalize(all, q.Year, query)

	e.logger.Debug().
		Str("query", query).
		Strs("candidates", out).
		Strs("tiers", tiers).
		Msg("Web candidates extracted")

	return out, strings.Join(tiers, "+")
}

func (e *Extractor) fromWikipedia(ctx context.Context, query string) []string {
	if e.wikiCfg.BaseURL == "" {
		return nil
	}
	var out []string
	for _, lang := range e.wikiCfg.Languages {
		endpoint := e.wikiCfg.BaseURL
		if strings.Contains(endpoint, "%s") {
			endpoint = fmt.Sprintf(endpoint, lang)
		}
		titles, err := e.wiki.opensearch(ctx, endpoint, query)
		if err != nil {
			e.logger.Warn().Err(err).Str("language", lang).Msg("Opensearch failed")
			continue
		}
		out = append(out, filterResults(titles)...)
	}
	return out
}

func (e *Extractor) fromBrave(ctx context.Context, query string) []string {
	if e.braveCfg.APIKey == "" {
		return nil
	}
	titles, err := e.braveP.brave(ctx, e.braveCfg.BaseURL, e.braveCfg.APIKey, query)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Brave search failed")
		return nil
	}
	return filterResults(titles)
}

func (e *Extractor) fromSerp(ctx context.Context, query string, charger media.Charger) ([]string, string) {
	refund, err := charger(ctx)
	if err != nil {
		e.logger.Info().Err(err).Msg("Paid web search not charged")
		return nil, SourcePaidDenied
	}

	hl := "en"
	if hasCyrillic(query) {
		hl = "ru"
	}
	titles, err := e.serpP.serp(ctx, e.serpCfg.BaseURL, e.serpCfg.APIKey, query, hl)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Paid web search failed")
		if refund != nil {
			refund()
		}
		return nil, ""
	}

	out := filterResults(titles)
	if len(out) == 0 {
		return nil, ""
	}
	return out, SourceSerpAPI
}

// EpisodeVariants spells an episode reference the ways search engines index it.
func EpisodeVariants(title string, season, episode int) []string {
	return []string{
		fmt.Sprintf("%s S%dE%d", title, season, episode),
		fmt.Sprintf("%s season %d episode %d", title, season, episode),
		fmt.Sprintf("%s episode %d", title, episode),
		fmt.Sprintf("%s season %d", title, season),
	}
}

// Finalize de-duplicates case-insensitively, pairs each entry with a
// year variant when year is set and missing, and caps the list while
// keeping original as an entry.
func Finalize(candidates []string, year, original string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(candidates)*2)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := mediaquery.Fold(s)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	for _, c := range candidates {
		add(c)
		if year != "" && mediaquery.ExtractYear(c) == "" {
			add(c + " " + year)
		}
	}

	if len(out) <= MaxCandidates {
		return out
	}
	out = out[:MaxCandidates]

	original = strings.TrimSpace(original)
	if original == "" {
		return out
	}
	for _, c := range out {
		if mediaquery.Fold(c) == mediaquery.Fold(original) {
			return out
		}
	}
	out[len(out)-1] = original
	return out
}

// filterResults drops streaming/piracy noise and sentence-length strings.
func filterResults(titles []string) []string {
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" || Blocked(t) || mediaquery.IsBadMediaQuery(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Blocked reports results that are streaming/piracy pages or too long to be a title.
func Blocked(t string) bool {
	if utf8.RuneCountInString(t) > maxResultRunes || len(strings.Fields(t)) > maxResultWords {
		return true
	}
	padded := " " + mediaquery.Fold(t) + " "
	for _, term := range blockedTerms {
		if strings.Contains(padded, " "+term+" ") {
			return true
		}
	}
	return false
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if r >= 'А' && r <= 'я' || r == 'ё' || r == 'Ё' || r == 'і' || r == 'ї' || r == 'є' {
			return true
		}
	}
	return false
}
