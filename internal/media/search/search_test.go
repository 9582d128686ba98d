package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarybot/diarybot/internal/media"
	"github.com/diarybot/diarybot/internal/metadata"
	"github.com/diarybot/diarybot/internal/metadata/tmdb"
)

type fakeTMDB struct {
	mu       sync.Mutex
	byLang   map[string][]media.CandidateRecord
	errLang  map[string]error
	people   map[string][]tmdb.PersonResult
	discover map[int][]media.CandidateRecord
	calls    int
}

func (f *fakeTMDB) IsConfigured() bool { return true }

func (f *fakeTMDB) SearchMulti(_ context.Context, _ string, language string) ([]media.CandidateRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := f.errLang[language]; err != nil {
		return nil, err
	}
	return f.byLang[language], nil
}

func (f *fakeTMDB) SearchPerson(_ context.Context, name, _ string) ([]tmdb.PersonResult, error) {
	return f.people[name], nil
}

func (f *fakeTMDB) DiscoverByCast(_ context.Context, ids []int, _ string) ([]media.CandidateRecord, error) {
	key := 0
	for _, id := range ids {
		key = key*1000 + id
	}
	return f.discover[key], nil
}

func newTestSearcher(client metadata.TMDBClient, cache metadata.SearchCache) *Searcher {
	return NewSearcher(client, cache, []string{"ru-RU", "en-US"}, zerolog.Nop())
}

func TestSearcher_MergesLocalesAndDedupes(t *testing.T) {
	client := &fakeTMDB{byLang: map[string][]media.CandidateRecord{
		"ru-RU": {
			{Kind: media.KindMovie, ID: 1, Title: "Начало", Year: "2010", Popularity: 80, VoteAverage: 8.8},
		},
		"en-US": {
			{Kind: media.KindMovie, ID: 1, Title: "Inception", Year: "2010", Popularity: 80, VoteAverage: 8.8},
			{Kind: media.KindTV, ID: 1, Title: "Inception Show", Year: "2012", Popularity: 5},
			{Kind: media.KindMovie, ID: 9, Title: "начало", Year: "2010", Popularity: 1},
		},
	}}

	got := newTestSearcher(client, nil).Search(context.Background(), "Inception", 10)

	require.Len(t, got, 2)
	assert.Equal(t, "Начало", got[0].Title, "first locale wins for the same id")
	assert.Equal(t, media.KindTV, got[1].Kind)
}

func TestSearcher_FailedLocaleDegrades(t *testing.T) {
	client := &fakeTMDB{
		byLang:  map[string][]media.CandidateRecord{"en-US": {{Kind: media.KindMovie, ID: 2, Title: "Deep Blue Sea", Year: "1999"}}},
		errLang: map[string]error{"ru-RU": errors.New("timeout")},
	}

	got := newTestSearcher(client, nil).Search(context.Background(), "deep blue sea", 5)
	require.Len(t, got, 1)
	assert.Equal(t, "Deep Blue Sea", got[0].Title)
}

func TestSearcher_TotalFailureIsEmpty(t *testing.T) {
	client := &fakeTMDB{errLang: map[string]error{"ru-RU": tmdb.ErrRateLimited, "en-US": tmdb.ErrAPIError}}
	assert.Empty(t, newTestSearcher(client, nil).Search(context.Background(), "Inception", 5))
}

func TestSearcher_ScrubsAndFiltersYear(t *testing.T) {
	client := &fakeTMDB{byLang: map[string][]media.CandidateRecord{
		"en-US": {
			{Kind: media.KindMovie, ID: 1, Title: "Shark Movie", Year: "2005", Popularity: 90},
			{Kind: media.KindMovie, ID: 2, Title: "Deep Blue Sea", Year: "1999", Popularity: 45},
			{Kind: media.KindMovie, ID: 3, Title: "Shark Porn", Year: "1999", Popularity: 99},
			{Kind: media.KindMovie, ID: 4, Title: "Adult", Year: "1999", Adult: true},
		},
	}}

	got := newTestSearcher(client, nil).Search(context.Background(), "фильм про акул в 1999", 5)
	require.Len(t, got, 1)
	assert.Equal(t, "Deep Blue Sea", got[0].Title)
}

func TestSearcher_SkipsBadQueries(t *testing.T) {
	client := &fakeTMDB{}
	s := newTestSearcher(client, nil)

	assert.Empty(t, s.Search(context.Background(), "", 5))
	assert.Empty(t, s.Search(context.Background(), "12345", 5))
	assert.Empty(t, s.Search(context.Background(), "trailer", 5))
	assert.Equal(t, 0, client.calls)
}

func TestSearcher_UsesCache(t *testing.T) {
	client := &fakeTMDB{byLang: map[string][]media.CandidateRecord{
		"en-US": {{Kind: media.KindMovie, ID: 1, Title: "Inception", Year: "2010"}},
	}}
	cache := metadata.NewCache(metadata.DefaultCacheConfig())
	defer cache.Close()
	s := newTestSearcher(client, cache)

	first := s.Search(context.Background(), "Inception", 5)
	second := s.Search(context.Background(), "inception", 5)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, client.calls, "second lookup served from cache")
}

func TestSearcher_Limit(t *testing.T) {
	var many []media.CandidateRecord
	for i := 1; i <= 20; i++ {
		many = append(many, media.CandidateRecord{Kind: media.KindMovie, ID: i, Title: "Title", Year: string(rune('A' + i))})
	}
	client := &fakeTMDB{byLang: map[string][]media.CandidateRecord{"en-US": many}}

	assert.Len(t, newTestSearcher(client, nil).Search(context.Background(), "Title", 3), 3)
}

func TestSearcher_SearchByPeople(t *testing.T) {
	client := &fakeTMDB{
		people: map[string][]tmdb.PersonResult{
			"Tom Hanks":  {{ID: 31, Name: "Tom Hanks", KnownForDepartment: "Acting"}},
			"Meg Ryan":   {{ID: 5, Name: "Meg Ryan (director)", KnownForDepartment: "Directing"}, {ID: 6, Name: "Meg Ryan", KnownForDepartment: "Acting"}},
			"Nobody Known": nil,
		},
		discover: map[int][]media.CandidateRecord{
			31*1000 + 6: {{Kind: media.KindMovie, ID: 858, Title: "Sleepless in Seattle", Year: "1993"}},
			31:          {{Kind: media.KindMovie, ID: 13, Title: "Forrest Gump", Year: "1994"}},
		},
	}
	s := newTestSearcher(client, nil)

	got := s.SearchByPeople(context.Background(), []string{"Tom Hanks", "Meg Ryan"}, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "Sleepless in Seattle", got[0].Title)

	got = s.SearchByPeople(context.Background(), []string{"Tom Hanks", "Nobody Known"}, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "Forrest Gump", got[0].Title)

	assert.Empty(t, s.SearchByPeople(context.Background(), []string{"Nobody Known"}, 5))
}

func TestFilterByYear_NeverEmpty(t *testing.T) {
	corpus := [][]media.CandidateRecord{
		{{Year: "1999"}},
		{{Year: "2001"}, {Year: "2002"}},
		{{Year: ""}, {Year: "1999"}, {Year: "1999"}},
	}
	for _, items := range corpus {
		for _, year := range []string{"", "1999", "2050"} {
			out := FilterByYear(items, year)
			assert.NotEmpty(t, out)
			if year != "" {
				for _, c := range out {
					if c.Year != year {
						assert.Equal(t, items, out, "non-matching items only when falling back")
					}
				}
			}
		}
	}
}

func TestSortByPopularity(t *testing.T) {
	items := []media.CandidateRecord{
		{ID: 1, Popularity: 10, VoteAverage: 5}, // 18
		{ID: 2, Popularity: 5, VoteAverage: 9},  // 22
		{ID: 3, Popularity: 20, VoteAverage: 0}, // 16
	}
	SortByPopularity(items)
	assert.Equal(t, []int{2, 1, 3}, []int{items[0].ID, items[1].ID, items[2].ID})
}
