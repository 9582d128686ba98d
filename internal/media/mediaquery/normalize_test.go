package mediaquery

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/diarybot/diarybot/internal/media"
)

var queryCorpus = []string{
	"",
	"   ",
	"Inception 2010",
	"фильм про акул в 1999",
	"SEARCH_QUERY: Deep Blue Sea 1999",
	"what movie is this? guy in a spinning top dream",
	"Что за фильм: мужик застрял на Марсе и выращивает картошку",
	"как называется фильм где корабль тонет",
	"що за фільм про війну 2019",
	"Breaking Bad S02E05",
	"breaking bad s2e5 scene where they cook",
	"«Брат 2» 2000",
	"“The Godfather” 1972 actor Al Pacino",
	"movie: Titanic",
	"Movie 43",
	"1917",
	strings.Repeat("очень длинное описание сцены ", 12),
	"a b c d e f g h i j k l m n o p q r s t u v w x y z " + strings.Repeat("x", 80),
	"what movie is this what movie is this Inception",
	"SEARCH_QUERY: SEARCH_QUERY: what's it called",
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, q := range queryCorpus {
		once := Normalize(q)
		assert.Equal(t, once, Normalize(once), "input %q", q)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SEARCH_QUERY: Deep Blue Sea 1999", "Deep Blue Sea 1999"},
		{"  Inception\n\n 2010 ", "Inception 2010"},
		{"what movie is this? Inception", "Inception"},
		{"what's it called", ""},
		{"Что за фильм: Брат 2", "Брат 2"},
		{"как называется фильм Титаник", "Титаник"},
		{"movie: Titanic", "Titanic"},
		{"Movie 43", "Movie 43"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_TruncatesAtWordBoundary(t *testing.T) {
	in := strings.Repeat("word ", 40)
	out := Normalize(in)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), maxNormalizedRunes)
	assert.False(t, strings.HasSuffix(out, "wor"))
	assert.True(t, strings.HasSuffix(out, "word"))
}

func TestSanitize_LengthCap(t *testing.T) {
	for _, q := range queryCorpus {
		out := Sanitize(q)
		assert.LessOrEqual(t, utf8.RuneCountInString(out), maxSanitizedRunes, "input %q", q)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		year    string
		episode string
		kind    media.Kind
	}{
		{"year kept", "фильм про акул в 1999", "фильм про акул в 1999", "1999", "", media.KindMovie},
		{"plain title with year", "Inception 2010", "Inception 2010", "2010", "", ""},
		{"episode rewrite", "Breaking Bad S02E05", "Breaking Bad S2 E5", "", "S02E05", media.KindTV},
		{"episode with scene clause", "breaking bad s2e5 scene where they cook", "breaking bad S2 E5", "", "S02E05", media.KindTV},
		{"quotes and actor clause", "“The Godfather” 1972 actor Al Pacino", "The Godfather 1972", "1972", "", ""},
		{"guillemets", "«Брат 2» 2000", "Брат 2 2000", "2000", "", ""},
		{"title ending in clause word", "The Actor", "The Actor", "", "", ""},
		{"title ending in fact", "Cold Hard Fact", "Cold Hard Fact", "", "", ""},
		{"clause after comma", "Inception, scene", "Inception", "", "", ""},
		{"clause after dash", "Матрица - актер", "Матрица", "", "", ""},
		{"parenthesized year", "Deep Water (2022)", "Deep Water 2022", "2022", "", ""},
		{"empty", "   ", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Parse(tt.in)
			assert.Equal(t, tt.want, q.Normalized)
			assert.Equal(t, tt.year, q.Year)
			assert.Equal(t, tt.episode, q.Episode)
			assert.Equal(t, tt.kind, q.KindHint)
		})
	}
}

func TestSanitize_LongYearQueryDropsYear(t *testing.T) {
	in := "мужик застрял на марсе и выращивает картошку 2015"
	q := Parse(in)
	assert.Equal(t, "2015", q.Year)
	assert.NotContains(t, q.Normalized, "2015")
}

func TestExtractYear(t *testing.T) {
	assert.Equal(t, "1999", ExtractYear("in 1999 there was"))
	assert.Equal(t, "2010", ExtractYear("Inception(2010)"))
	assert.Equal(t, "", ExtractYear("12345"))
	assert.Equal(t, "", ExtractYear("1899"))
}

func TestStripYear(t *testing.T) {
	assert.Equal(t, "Deep Water", StripYear("Deep Water (2022)", "2022"))
	assert.Equal(t, "Inception", StripYear("Inception 2010", "2010"))
	assert.Equal(t, "Inception", StripYear("Inception", ""))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "amelie", Fold("Amélie"))
	assert.Equal(t, "елки", Fold("Ёлки"))
	assert.Equal(t, Fold("Пей"), Fold("ПЕЙ"))
	assert.Equal(t, []string{"брат", "2"}, Tokens("«Брат-2»"))
}
