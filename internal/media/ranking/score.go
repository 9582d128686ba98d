// Package ranking scores title candidates against a query and decides
// whether the bot may assert an answer.
package ranking

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/diarybot/diarybot/internal/media"
	"github.com/diarybot/diarybot/internal/media/mediaquery"
)

// Score weights. These are tuning constants without a derivation; keep
// them in sync with the product before changing.
const (
	DefaultThreshold = 0.58

	WeightExact      = 0.55
	WeightContains   = 0.40
	WeightSimilar    = 0.35
	WeightYear       = 0.18
	WeightPopularity = 0.12
	WeightVotes      = 0.10
	WeightLanguage   = 0.05

	similarBoost    = 1.8
	popularityScale = 200.0
	voteScale       = 5000.0
)

// Title match strength.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchSimilar  = "similar"
	MatchWeak     = "weak"
)

// Rationale records which score terms fired.
type Rationale struct {
	Match    string
	Year     string // matched year, empty when the year term did not fire
	Popular  bool
	Rated    bool
	Language bool
}

// Score rates how well c matches query. The result is clamped to [0,1].
func Score(query string, c media.CandidateRecord, yearHint, langHint string) (float64, Rationale) {
	var why Rationale

	q := comparable(query, yearHint)
	title, match := titleScore(q, c.Title)
	if c.OriginalTitle != "" && c.OriginalTitle != c.Title {
		if alt, altMatch := titleScore(q, c.OriginalTitle); alt > title {
			title, match = alt, altMatch
		}
	}
	why.Match = match
	score := title

	if yearHint != "" && c.Year == yearHint {
		score += WeightYear
		why.Year = yearHint
	}

	if pop := math.Min(WeightPopularity, c.Popularity/popularityScale); pop > 0 {
		score += pop
		why.Popular = pop >= WeightPopularity/2
	}
	if votes := math.Min(WeightVotes, float64(c.VoteCount)/voteScale); votes > 0 {
		score += votes
		why.Rated = votes >= WeightVotes/2
	}

	if langHint != "" && strings.EqualFold(langHint, c.OriginalLanguage) {
		score += WeightLanguage
		why.Language = true
	}

	return clamp(score), why
}

// comparable strips the year and episode tokens a sanitized query carries
// so that "Inception 2010" compares equal to "Inception".
func comparable(query, year string) string {
	q := mediaquery.StripEpisode(query)
	if year == "" {
		year = mediaquery.ExtractYear(q)
	}
	return strings.Join(mediaquery.Tokens(mediaquery.StripYear(q, year)), " ")
}

func titleScore(q, title string) (float64, string) {
	t := strings.Join(mediaquery.Tokens(title), " ")
	if q == "" || t == "" {
		return 0, MatchWeak
	}
	if q == t {
		return WeightExact, MatchExact
	}

	shorter, longer := q, t
	if utf8.RuneCountInString(shorter) > utf8.RuneCountInString(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(" "+longer+" ", " "+shorter+" ") {
		ratio := float64(utf8.RuneCountInString(shorter)) / float64(utf8.RuneCountInString(longer))
		return WeightContains * (0.5 + 0.5*ratio), MatchContains
	}

	if j := jaccard(strings.Fields(q), strings.Fields(t)); j > 0 {
		return math.Min(WeightSimilar, WeightSimilar*j*similarBoost), MatchSimilar
	}
	return 0, MatchWeak
}

func jaccard(a, b []string) float64 {
	set := make(map[string]int, len(a)+len(b))
	for _, w := range a {
		set[w] |= 1
	}
	for _, w := range b {
		set[w] |= 2
	}
	if len(set) == 0 {
		return 0
	}
	both := 0
	for _, v := range set {
		if v == 3 {
			both++
		}
	}
	return float64(both) / float64(len(set))
}

// LanguageHint guesses the original-language code a query points at from
// its script. Latin text gives no hint.
func LanguageHint(query string) string {
	cyrillic := false
	for _, r := range query {
		switch {
		case r == 'і' || r == 'ї' || r == 'є' || r == 'ґ' || r == 'І' || r == 'Ї' || r == 'Є':
			return "uk"
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic = true
		}
	}
	if cyrillic {
		return "ru"
	}
	return ""
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return math.Round(v*1000) / 1000
	}
}
