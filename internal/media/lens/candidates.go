package lens

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/diarybot/diarybot/internal/media/mediaquery"
)

// Result caps for PickBest.
const (
	SearchLimit = 5
	BroadLimit  = 12
)

const (
	maxTitleWords    = 8
	maxFallbackWords = 6
	maxWithYearRunes = 45
)

var (
	leadingJunk  = regexp.MustCompile(`^[^\p{L}\p{N}]+`)
	labelPrefix  = regexp.MustCompile(`(?i)^(?:film|movie|tv\s+series|series|фильм|сериал|фільм|серіал)\s*[:：\-–—]\s*`)
	officialMark = regexp.MustCompile(`(?i)(?:^|\s)(?:official|официальный|офіційний)(?:\s|$)`)
	titleYear    = regexp.MustCompile(`([\p{L}\p{N}][^()\[\]]*?)\s*[(\[]\s*((?:19|20)\d{2})\s*[)\]]`)
	parenYear    = regexp.MustCompile(`[(\[]\s*(?:19|20)\d{2}\s*[)\]]`)
	filmTitle    = regexp.MustCompile(`(?i)(?:^|\s)(?:film|movie|фильм|фільм)\s+["«“]?([\p{L}\p{N}][^"»”|,.!?()—–]{1,60})`)
	bareYear     = regexp.MustCompile(`^\s*(?:19|20)\d{2}\s*$`)
	wordRun      = regexp.MustCompile(`[\p{L}\p{N}]+`)
	movieLead    = regexp.MustCompile(`(?i)^(?:movie|film|фильм|фільм|кино)`)
)

// badVocabulary marks creator/platform/CTA strings rather than titles.
var badVocabulary = map[string]struct{}{
	"edit": {}, "edits": {}, "edited": {}, "channel": {}, "youtube": {}, "tiktok": {},
	"instagram": {}, "subscribe": {}, "subscribed": {}, "official": {}, "compilation": {},
	"trailer": {}, "trailers": {}, "teaser": {}, "bts": {}, "meme": {}, "memes": {},
	"interview": {}, "reaction": {}, "shorts": {}, "reels": {}, "fancam": {}, "vlog": {},
	"подпишись": {}, "канал": {}, "эдит": {}, "мем": {}, "трейлер": {}, "интервью": {}, "нарезка": {},
	"підпишись": {}, "трейлери": {},
}

// CleanCandidate reduces a raw visual-search string to a searchable title,
// returning "" when nothing title-like is left.
func CleanCandidate(raw string) string {
	s := strings.TrimSpace(raw)
	s = leadingJunk.ReplaceAllString(s, "")
	s = labelPrefix.ReplaceAllString(s, "")
	s = collapse(officialMark.ReplaceAllString(s, " "))
	if s == "" {
		return ""
	}

	if m := titleYear.FindStringSubmatch(s); m != nil {
		title := trimTitle(m[1])
		if title == "" || len(wordRun.FindAllString(title, -1)) > maxTitleWords {
			return ""
		}
		return title + " " + m[2]
	}

	year := mediaquery.ExtractYear(s)

	var title string
	if m := filmTitle.FindStringSubmatch(s); m != nil {
		title = trimTitle(m[1])
	}
	if title == "" {
		words := wordRun.FindAllString(s, -1)
		if len(words) > maxFallbackWords {
			words = words[:maxFallbackWords]
		}
		title = strings.Join(words, " ")
	}
	if title == "" {
		return ""
	}

	if year != "" && mediaquery.ExtractYear(title) == "" {
		if withYear := title + " " + year; utf8.RuneCountInString(withYear) <= maxWithYearRunes {
			return withYear
		}
	}
	return title
}

// IsBadCandidate reports strings that name a creator, platform or promo
// clip rather than a title.
func IsBadCandidate(raw string) bool {
	s := strings.TrimSpace(raw)
	if utf8.RuneCountInString(s) <= 3 || bareYear.MatchString(s) || !hasLetter(s) {
		return true
	}

	tokens := mediaquery.Tokens(s)
	for _, t := range tokens {
		if _, ok := badVocabulary[t]; ok {
			return true
		}
	}
	if len(tokens) == 1 && mediaquery.IsGenericWord(tokens[0]) {
		return true
	}
	if len(tokens) <= 2 && mediaquery.ExtractYear(s) == "" && pureLatin(s) {
		return true
	}
	return false
}

// ScoreCandidate ranks raw strings by how title-like they look.
func ScoreCandidate(raw string) int {
	s := strings.TrimSpace(raw)
	score := 0

	hasYear := mediaquery.ExtractYear(s) != ""
	words := len(mediaquery.Tokens(s))

	if parenYear.MatchString(s) {
		score += 40
	}
	if hasYear {
		score += 25
	}
	if hasCyrillic(s) {
		score += 12
	}
	if hasYear && words >= 2 {
		score += 15
	}

	switch {
	case words >= 1 && words <= 6:
		score += 80
	case words >= 7 && words <= 10:
		score += 35
	case words > 10:
		score -= 60
	}

	if movieLead.MatchString(leadingJunk.ReplaceAllString(s, "")) {
		score -= 80
	}

	switch n := utf8.RuneCountInString(s); {
	case n <= 35:
		score += 35
	case n <= 60:
		score += 10
	default:
		score -= 30
	}

	if !hasLetter(s) {
		score -= 120
	}
	return score
}

// PickBest orders raw candidates by score and returns up to limit
// distinct raw or cleaned forms that pass IsBadCandidate.
func PickBest(raw []string, limit int) []string {
	if limit <= 0 {
		limit = BroadLimit
	}

	type scored struct {
		text  string
		score int
	}
	ranked := make([]scored, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			ranked = append(ranked, scored{text: r, score: ScoreCandidate(r)})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	for _, r := range ranked {
		for _, form := range []string{r.text, CleanCandidate(r.text)} {
			if form == "" || IsBadCandidate(form) {
				continue
			}
			key := mediaquery.Fold(form)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, form)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

func trimTitle(s string) string {
	return strings.Trim(collapse(s), " \t-–—,.;:!?/|\"'«»“”")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

func pureLatin(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}
