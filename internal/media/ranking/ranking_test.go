package ranking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarybot/diarybot/internal/i18n"
	"github.com/diarybot/diarybot/internal/media"
)

var (
	deepBlueSea = media.CandidateRecord{
		Kind: media.KindMovie, ID: 8914, Title: "Deep Blue Sea", Year: "1999",
		Popularity: 45, VoteAverage: 6.5, OriginalLanguage: "en",
	}
	inception = media.CandidateRecord{
		Kind: media.KindMovie, ID: 27205, Title: "Inception", Year: "2010",
		Popularity: 80, VoteAverage: 8.8, OriginalLanguage: "en",
	}
)

func TestScore(t *testing.T) {
	withVotes := inception
	withVotes.VoteCount = 30000

	tests := []struct {
		name      string
		query     string
		candidate media.CandidateRecord
		year      string
		lang      string
		want      float64
		match     string
	}{
		{"description with year", "фильм про акул в 1999", deepBlueSea, "1999", "ru", 0.30, MatchWeak},
		{"exact with year", "Inception 2010", inception, "2010", "", 0.85, MatchExact},
		{"exact with votes", "Inception 2010", withVotes, "2010", "", 0.95, MatchExact},
		{"contains", "dark knight", media.CandidateRecord{Title: "The Dark Knight"}, "", "", 0.347, MatchContains},
		{"similar", "dark night", media.CandidateRecord{Title: "The Dark Knight"}, "", "", 0.1575, MatchSimilar},
		{"original title", "inception", media.CandidateRecord{Title: "Начало", OriginalTitle: "Inception"}, "", "", 0.55, MatchExact},
		{"language", "начало", media.CandidateRecord{Title: "Начало", OriginalLanguage: "ru"}, "", "ru", 0.60, MatchExact},
		{"clamped", "Inception", media.CandidateRecord{Title: "Inception", Year: "2010", Popularity: 900, VoteCount: 90000, OriginalLanguage: "en"}, "2010", "en", 1.0, MatchExact},
		{"episode tokens ignored", "Dark S1 E4", media.CandidateRecord{Title: "Dark"}, "", "", 0.55, MatchExact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, why := Score(tt.query, tt.candidate, tt.year, tt.lang)
			assert.InDelta(t, tt.want, got, 0.002)
			assert.Equal(t, tt.match, why.Match)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestScore_Rationale(t *testing.T) {
	_, why := Score("Inception 2010", inception, "2010", "")
	assert.Equal(t, "2010", why.Year)
	assert.True(t, why.Popular)
	assert.False(t, why.Rated)
	assert.False(t, why.Language)
}

func TestLanguageHint(t *testing.T) {
	assert.Equal(t, "ru", LanguageHint("фильм про акул"))
	assert.Equal(t, "uk", LanguageHint("фільм про акул"))
	assert.Equal(t, "", LanguageHint("film about sharks"))
}

func newTestRanker(t *testing.T) *Ranker {
	t.Helper()
	return NewRanker(i18n.MustLoad(), 0)
}

func TestFormat_LowConfidenceAsksForFact(t *testing.T) {
	r := newTestRanker(t)

	resp := r.Format("фильм про акул в 1999", []media.CandidateRecord{deepBlueSea}, "1999", "en", "search")

	assert.False(t, resp.Confident)
	assert.InDelta(t, 0.30, resp.TopScore, 0.002)
	assert.Equal(t,
		"I'm not sure yet. Closest matches:\n"+
			"1. Deep Blue Sea (1999, film) — weak title match, year 1999 matches, popular\n\n"+
			"Tell me one more fact: the year, an actor, the country or a scene detail.",
		resp.Text)
}

func TestFormat_ConfidentAnswer(t *testing.T) {
	r := newTestRanker(t)
	candidates := []media.CandidateRecord{
		{Kind: media.KindMovie, ID: 1, Title: "Inception: The Cobol Job", Year: "2010", Popularity: 3},
		inception,
		{Kind: media.KindTV, ID: 2, Title: "Dreams", Popularity: 1},
	}

	resp := r.Format("Inception 2010", candidates, "2010", "en", "search")

	require.True(t, resp.Confident)
	require.Len(t, resp.Ranked, 3)
	assert.Equal(t, "Inception", resp.Ranked[0].Title)
	assert.Equal(t, "Inception: The Cobol Job", resp.Ranked[1].Title)
	assert.Equal(t,
		"Looks like it's:\n"+
			"Inception (2010, film) — exact title match, year 2010 matches, popular\n\n"+
			"Other options:\n"+
			"2. Inception: The Cobol Job (2010, film)\n"+
			"3. Dreams (series)\n\n"+
			"Is this it? Confirm, show other options or clarify.",
		resp.Text)
}

func TestFormat_ConfidenceGate(t *testing.T) {
	r := newTestRanker(t)
	answer := i18n.MustLoad().T("en", "media.answer")

	cases := []struct {
		query      string
		candidates []media.CandidateRecord
		year       string
	}{
		{"фильм про акул в 1999", []media.CandidateRecord{deepBlueSea}, "1999"},
		{"Inception 2010", []media.CandidateRecord{inception, deepBlueSea}, "2010"},
		{"inception", []media.CandidateRecord{deepBlueSea, inception}, ""},
		{"sharks", []media.CandidateRecord{deepBlueSea}, ""},
		{"deep blue", []media.CandidateRecord{deepBlueSea}, "1999"},
		{"the dark knight", []media.CandidateRecord{{Title: "The Dark Knight", Popularity: 500, VoteCount: 30000}}, ""},
		{"blue", []media.CandidateRecord{deepBlueSea, inception}, "2010"},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			resp := r.Format(tc.query, tc.candidates, tc.year, "en", "")
			if resp.TopScore < DefaultThreshold {
				assert.False(t, resp.Confident)
				assert.NotContains(t, resp.Text, answer)
				assert.Contains(t, resp.Text, "one more fact")
			} else {
				assert.True(t, resp.Confident)
				assert.Equal(t, 1, strings.Count(resp.Text, answer))
			}
		})
	}
}

func TestFormat_ThresholdOverride(t *testing.T) {
	r := NewRanker(i18n.MustLoad(), 0.9)
	resp := r.Format("Inception 2010", []media.CandidateRecord{inception}, "2010", "en", "")
	assert.False(t, resp.Confident)
	assert.Equal(t, 0.9, r.Threshold())
}

func TestFormat_Empty(t *testing.T) {
	r := newTestRanker(t)
	resp := r.Format("anything", nil, "", "ru", "")
	assert.False(t, resp.Confident)
	assert.Equal(t, i18n.MustLoad().T("ru", "media.not_found"), resp.Text)
}

func TestFormatOptions(t *testing.T) {
	r := newTestRanker(t)

	got := r.FormatOptions("sharks", []media.CandidateRecord{deepBlueSea, inception}, "en")
	assert.Equal(t,
		"Options for \"sharks\":\n1. Deep Blue Sea (1999, film)\n2. Inception (2010, film)\n\nReply with a number to pick one.",
		got)

	assert.Equal(t, i18n.MustLoad().T("en", "media.no_options"), r.FormatOptions("x", nil, "en"))
}

func TestFormatCandidate(t *testing.T) {
	r := newTestRanker(t)
	c := media.CandidateRecord{Kind: media.KindTV, Title: "Тьма", OriginalTitle: "Dark", Year: "2017"}
	assert.Equal(t, "Тьма (Dark, 2017, сериал)", r.FormatCandidate(c, "ru"))
	assert.Equal(t, "Untitled", r.FormatCandidate(media.CandidateRecord{Title: "Untitled"}, "en"))
}

func TestFormatChoice(t *testing.T) {
	r := newTestRanker(t)
	c := inception
	c.Overview = strings.Repeat("dream ", 80)

	got := r.FormatChoice(c, "en")
	assert.True(t, strings.HasPrefix(got, "Looks like it's:\nInception (2010, film)\n\n"))
	assert.True(t, strings.HasSuffix(got, "…"))
}
