// Package search looks titles up in TMDB across the configured locales.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/diarybot/diarybot/internal/media"
	"github.com/diarybot/diarybot/internal/media/mediaquery"
	"github.com/diarybot/diarybot/internal/media/safety"
	"github.com/diarybot/diarybot/internal/metadata"
	"github.com/diarybot/diarybot/internal/metadata/tmdb"
)

const (
	DefaultLimit   = 10
	maxCastMembers = 2
)

// Searcher is the title search adapter. It never returns errors: a
// failing locale contributes nothing and a total failure yields an
// empty list.
type Searcher struct {
	client    metadata.TMDBClient
	cache     metadata.SearchCache
	languages []string
	logger    zerolog.Logger
}

// NewSearcher creates a searcher. cache may be nil.
func NewSearcher(client metadata.TMDBClient, cache metadata.SearchCache, languages []string, logger zerolog.Logger) *Searcher {
	if len(languages) == 0 {
		languages = []string{"ru-RU", "en-US"}
	}
	return &Searcher{
		client:    client,
		cache:     cache,
		languages: languages,
		logger:    logger.With().Str("component", "title-search").Logger(),
	}
}

// Search runs query in every locale concurrently and returns merged,
// de-duplicated, scrubbed candidates ordered by popularity and rating.
func (s *Searcher) Search(ctx context.Context, query string, limit int) []media.CandidateRecord {
	query = strings.TrimSpace(query)
	if query == "" || mediaquery.IsBadMediaQuery(query) || !s.client.IsConfigured() {
		return nil
	}

	merged, ok := s.cached(ctx, query)
	if !ok {
		merged = s.fetch(ctx, query)
	}

	return finalize(merged, mediaquery.ExtractYear(query), limit)
}

// SearchByPeople resolves actor names to people and discovers titles
// featuring them together.
func (s *Searcher) SearchByPeople(ctx context.Context, names []string, limit int) []media.CandidateRecord {
	if !s.client.IsConfigured() || len(names) == 0 {
		return nil
	}
	if len(names) > maxCastMembers {
		names = names[:maxCastMembers]
	}
	lang := s.languages[0]

	ids := make([]int, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			people, err := s.client.SearchPerson(ctx, name, lang)
			if err != nil {
				s.logger.Warn().Err(err).Str("name", name).Msg("Person search failed")
				return nil
			}
			ids[i] = pickActor(people)
			return nil
		})
	}
	_ = g.Wait()

	found := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != 0 {
			found = append(found, id)
		}
	}
	if len(found) == 0 {
		return nil
	}

	results, err := s.client.DiscoverByCast(ctx, found, lang)
	if err != nil {
		s.logger.Warn().Err(err).Ints("cast", found).Msg("Discover by cast failed")
		results = nil
	}
	if len(results) == 0 && len(found) > 1 {
		results, err = s.client.DiscoverByCast(ctx, found[:1], lang)
		if err != nil {
			s.logger.Warn().Err(err).Ints("cast", found[:1]).Msg("Discover by cast failed")
			return nil
		}
	}

	s.logger.Debug().Strs("names", names).Int("results", len(results)).Msg("People search completed")
	return finalize(safety.Scrub(results), "", limit)
}

func (s *Searcher) cached(ctx context.Context, query string) ([]media.CandidateRecord, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, s.cacheKey(query))
}

func (s *Searcher) fetch(ctx context.Context, query string) []media.CandidateRecord {
	perLocale := make([][]media.CandidateRecord, len(s.languages))
	failed := make([]bool, len(s.languages))

	var g errgroup.Group
	for i, lang := range s.languages {
		g.Go(func() error {
			results, err := s.client.SearchMulti(ctx, query, lang)
			if err != nil {
				s.logger.Warn().Err(err).Str("query", query).Str("language", lang).Msg("Locale search failed")
				failed[i] = true
				return nil
			}
			perLocale[i] = results
			return nil
		})
	}
	_ = g.Wait()

	merged := safety.Scrub(Merge(perLocale...))

	anyOK := false
	for _, f := range failed {
		if !f {
			anyOK = true
			break
		}
	}
	if anyOK && s.cache != nil {
		s.cache.Set(ctx, s.cacheKey(query), merged)
	}

	s.logger.Debug().Str("query", query).Int("results", len(merged)).Msg("Title search completed")
	return merged
}

func (s *Searcher) cacheKey(query string) string {
	return strings.Join(s.languages, ",") + "|" + mediaquery.Fold(query)
}

// Merge concatenates result lists in order, dropping repeats by kind and
// id and by folded title and year.
func Merge(lists ...[]media.CandidateRecord) []media.CandidateRecord {
	var out []media.CandidateRecord
	seenID := make(map[string]struct{})
	seenTitle := make(map[string]struct{})

	for _, list := range lists {
		for _, c := range list {
			idKey := c.Key()
			titleKey := mediaquery.Fold(c.Title) + "|" + c.Year
			if _, ok := seenID[idKey]; ok {
				continue
			}
			if _, ok := seenTitle[titleKey]; ok {
				continue
			}
			seenID[idKey] = struct{}{}
			seenTitle[titleKey] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// FilterByYear keeps only candidates from year. It never filters a
// non-empty list down to nothing: if no candidate matches, the input is
// returned unchanged.
func FilterByYear(items []media.CandidateRecord, year string) []media.CandidateRecord {
	if year == "" || len(items) == 0 {
		return items
	}
	filtered := make([]media.CandidateRecord, 0, len(items))
	for _, c := range items {
		if c.Year == year {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return items
	}
	return filtered
}

// SortByPopularity orders candidates by 0.8*popularity + 2*vote average, descending.
func SortByPopularity(items []media.CandidateRecord) {
	sort.SliceStable(items, func(i, j int) bool {
		return preScore(items[i]) > preScore(items[j])
	})
}

func preScore(c media.CandidateRecord) float64 {
	return 0.8*c.Popularity + 2.0*c.VoteAverage
}

func finalize(items []media.CandidateRecord, year string, limit int) []media.CandidateRecord {
	out := append([]media.CandidateRecord(nil), FilterByYear(items, year)...)
	SortByPopularity(out)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func pickActor(people []tmdb.PersonResult) int {
	for _, p := range people {
		if p.KnownForDepartment == "Acting" {
			return p.ID
		}
	}
	if len(people) > 0 {
		return people[0].ID
	}
	return 0
}
