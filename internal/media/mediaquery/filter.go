package mediaquery

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxCandidateRunes   = 70
	maxCandidateWords   = 7
	freeformMinRunes    = 45
	freeformMinSpaces   = 6
	digitRejectFraction = 0.40
)

// GenericWords are words that on their own never identify a title.
var GenericWords = foldSet(map[string]struct{}{
	"man": {}, "woman": {}, "girl": {}, "boy": {}, "guy": {}, "people": {},
	"movie": {}, "movies": {}, "film": {}, "films": {}, "series": {}, "show": {}, "tv": {},
	"cartoon": {}, "anime": {}, "scene": {}, "episode": {}, "season": {},
	"news": {}, "trailer": {}, "teaser": {}, "clip": {}, "video": {}, "subscribe": {},
	"official": {}, "full": {}, "hd": {}, "edit": {}, "meme": {}, "shorts": {}, "reels": {},
	"actor": {}, "actress": {}, "cinema": {}, "best": {}, "top": {}, "new": {}, "old": {},
	"фильм": {}, "фильмы": {}, "кино": {}, "сериал": {}, "сериалы": {}, "мультфильм": {}, "мультик": {},
	"сцена": {}, "серия": {}, "сезон": {}, "трейлер": {}, "новости": {}, "видео": {}, "клип": {},
	"мужчина": {}, "женщина": {}, "девушка": {}, "парень": {}, "актер": {}, "актриса": {},
	"фільм": {}, "фільми": {}, "кіно": {}, "серіал": {}, "серія": {}, "новини": {}, "відео": {},
	"чоловік": {}, "жінка": {}, "дівчина": {}, "хлопець": {}, "актор": {},
})

var leadingAdjectives = foldSet(map[string]struct{}{
	"legendary": {}, "soviet": {}, "famous": {}, "classic": {}, "old": {}, "new": {},
	"best": {}, "cult": {}, "iconic": {}, "american": {}, "russian": {}, "french": {},
	"легендарный": {}, "легендарная": {}, "советский": {}, "советская": {}, "известный": {},
	"культовый": {}, "старый": {}, "новый": {}, "лучший": {}, "американский": {}, "русский": {},
	"легендарний": {}, "радянський": {}, "відомий": {}, "культовий": {}, "старий": {}, "новий": {},
})

var platformNoise = []string{
	"youtube", "tiktok", "instagram", "facebook", "twitter", "vk.com", "telegram",
	"subscribe", "channel", "shorts", "reels", "http://", "https://", "www.",
	"подпишись", "подписаться", "канал", "підпишись",
}

var (
	listMarkers = regexp.MustCompile(`(?i)(?:top[\s-]*\d+|best\s+of|топ[\s-]*\d+|лучшие\s+фильмы|найкращі\s+фільми)`)

	freeformMarkers = []string{
		"scene", "at the end", "in the end", "where", "what happens", "when he", "when she", "about a",
		"сцена", "сцене", "в конце", "где", "в котором", "в которой", "когда", "про то как", "о том как",
		"сцені", "в кінці", "де ", "в якому", "коли",
	}

	whatMovieMarkers = []string{
		"what movie", "which movie", "what film", "what's it called", "what is it called",
		"что за фильм", "какой фильм", "как называется", "що за фільм", "який фільм", "як називається",
	}
)

// IsGoodCandidate reports whether q is worth an external title search.
func IsGoodCandidate(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" || utf8.RuneCountInString(q) > maxCandidateRunes || !hasLetter(q) {
		return false
	}

	words := strings.Fields(q)
	if len(words) > maxCandidateWords {
		return false
	}
	if _, ok := leadingAdjectives[Fold(words[0])]; ok && len(words) <= 2 {
		return false
	}
	if listMarkers.MatchString(q) {
		return false
	}
	if len(words) == 1 && IsGenericWord(words[0]) {
		return false
	}
	return digitFraction(q) < digitRejectFraction
}

// IsBadMediaQuery reports strings that can never be a title: empty, no
// letters, platform/social noise or a lone generic word.
func IsBadMediaQuery(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" || !hasLetter(q) {
		return true
	}
	lower := strings.ToLower(q)
	for _, n := range platformNoise {
		if strings.Contains(lower, n) {
			return true
		}
	}
	words := strings.Fields(q)
	return len(words) == 1 && IsGenericWord(words[0])
}

// LooksLikeFreeformDescription reports text that narrates a scene rather
// than naming a title.
func LooksLikeFreeformDescription(q string) bool {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) >= freeformMinRunes || strings.Count(q, " ") >= freeformMinSpaces {
		return true
	}
	padded := " " + Fold(q) + " "
	for _, m := range freeformMarkers {
		if strings.Contains(padded, " "+Fold(m)+" ") {
			return true
		}
	}
	return false
}

// HasWhatMovieMarker reports a "what movie is it" style phrase or a
// bare media word.
func HasWhatMovieMarker(q string) bool {
	folded := Fold(q)
	for _, m := range whatMovieMarkers {
		if strings.Contains(folded, Fold(m)) {
			return true
		}
	}
	for _, w := range strings.Fields(folded) {
		w = strings.Trim(w, "?!.,:;")
		if _, ok := GenericWords[w]; ok {
			return true
		}
	}
	return false
}

// AsksForName reports "what's it called" style follow-ups.
func AsksForName(q string) bool {
	folded := Fold(q)
	for _, m := range []string{"what's it called", "what is it called", "whats it called", "what was it called",
		"как называется", "как он называется", "как назывался", "як називається", "название", "назва"} {
		if strings.Contains(folded, Fold(m)) {
			return true
		}
	}
	return false
}

// IsGenericWord reports whether w alone never identifies a title.
func IsGenericWord(w string) bool {
	_, ok := GenericWords[strings.Trim(Fold(w), "?!.,:;\"'")]
	return ok
}

func foldSet(words map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for w := range words {
		out[Fold(w)] = struct{}{}
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func digitFraction(s string) float64 {
	total, digits := 0, 0
	for _, r := range s {
		total++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(digits) / float64(total)
}
