package assistant

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/diarybot/diarybot/internal/media/mediaquery"
)

const (
	maxHintRunes     = 60
	maxHintWordRunes = 14
	maxKeywords      = 5
	maxActorNames    = 2
)

var hintWords = foldAll(
	"actor", "actress", "starring", "country", "language", "season", "episode", "series",
	"usa", "us", "uk", "american", "british", "french", "korean", "japanese", "russian",
	"netflix", "hbo", "amazon", "disney", "apple", "hulu", "cartoon", "anime", "comedy", "horror", "drama",
	"актер", "актриса", "страна", "язык", "сезон", "серия", "сша", "америка", "американский",
	"британский", "корейский", "японский", "русский", "советский", "нетфликс", "мульт", "аниме",
	"комедия", "ужасы", "драма", "актор", "країна", "мова", "серія", "американський", "радянський",
)

var keywordStopwords = foldAll(
	"the", "a", "an", "and", "or", "with", "about", "where", "who", "what", "which", "that", "this",
	"from", "into", "there", "his", "her", "they", "them", "some", "was", "were", "is", "are",
	"про", "где", "который", "которая", "которые", "это", "этот", "эта", "как", "когда", "что",
	"там", "его", "ее", "они", "был", "была", "были", "есть", "очень", "из", "для", "или",
	"де", "який", "яка", "які", "це", "цей", "коли", "що", "його", "вони", "був", "була",
)

var (
	actorMarker = regexp.MustCompile(`(?i:with|starring|actor|actress|с\s+актером|с\s+актрисой|в\s+главной\s+роли|играет|актер|актриса|з\s+актором|актор)\s*:?\s+(\p{Lu}\p{Ll}+(?:[\s-]\p{Lu}\p{Ll}+){1,2})`)
	namePair    = regexp.MustCompile(`\p{Lu}\p{Ll}+\s\p{Lu}\p{Ll}+`)
	bareYear    = regexp.MustCompile(`^(?:19|20)\d{2}$`)
)

// IsHint reports a short follow-up that refines the previous query
// instead of starting a new one: a year, or one or two short words of
// which one names an actor, country, language, season or platform.
func IsHint(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxHintRunes {
		return false
	}
	if bareYear.MatchString(text) {
		return true
	}
	words := mediaquery.Tokens(text)
	if len(words) == 0 || len(words) > 2 {
		return false
	}
	hit := false
	for _, w := range words {
		if utf8.RuneCountInString(w) > maxHintWordRunes {
			return false
		}
		if _, ok := hintWords[w]; ok || bareYear.MatchString(w) {
			hit = true
		}
	}
	return hit
}

// ActorNames pulls capitalised person names out of text. Names after an
// explicit marker come first; a lone text that is just a name pair
// counts as well.
func ActorNames(text string) []string {
	var names []string
	seen := make(map[string]struct{})
	add := func(n string) {
		n = strings.TrimSpace(n)
		key := mediaquery.Fold(n)
		if _, dup := seen[key]; dup || n == "" || len(names) >= maxActorNames {
			return
		}
		seen[key] = struct{}{}
		names = append(names, n)
	}

	for _, m := range actorMarker.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	if len(names) == 0 {
		trimmed := strings.Trim(strings.TrimSpace(text), "?!.,")
		if namePair.FindString(trimmed) == trimmed && trimmed != "" {
			add(trimmed)
		}
	}
	return names
}

// KeywordQuery reduces a sentence to its content words, longest first,
// with the year appended.
func KeywordQuery(text, year string) string {
	var words []string
	seen := make(map[string]struct{})
	for _, w := range mediaquery.Tokens(text) {
		if utf8.RuneCountInString(w) < 3 || w == year || bareYear.MatchString(w) {
			continue
		}
		if _, stop := keywordStopwords[w]; stop || mediaquery.IsGenericWord(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	if len(words) == 0 {
		return ""
	}
	if len(words) > maxKeywords {
		words = longestFirst(words)[:maxKeywords]
	}
	q := strings.Join(words, " ")
	if year != "" {
		q += " " + year
	}
	return q
}

// longestFirst orders words by length without losing the original order
// among equal lengths.
func longestFirst(words []string) []string {
	out := append([]string(nil), words...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && utf8.RuneCountInString(out[j]) > utf8.RuneCountInString(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func foldAll(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[mediaquery.Fold(w)] = struct{}{}
	}
	return out
}
