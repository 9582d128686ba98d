// Package mediaquery turns free-form user text into short title search queries
// and decides which strings are worth an external search call.
package mediaquery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/diarybot/diarybot/internal/media"
)

const (
	maxNormalizedRunes = 140
	maxSanitizedRunes  = 60
	maxWithYearRunes   = 40
)

// phraseEnd matches the separator after a leading phrase. RE2 has no
// Unicode-aware \b so the boundary is spelled out.
const phraseEnd = `(?:[\s?!.,:;—–-]+|$)`

var (
	searchQueryPrefix = regexp.MustCompile(`(?i)^\s*SEARCH_QUERY\s*:\s*`)

	leadingPhrases = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:what|which)\s+(?:movie|film|series|tv\s+series|show|cartoon)\s+is\s+(?:this|it|that)` + phraseEnd),
		regexp.MustCompile(`(?i)^what(?:'s|’s|\s+is)\s+(?:it|this|that)\s+called` + phraseEnd),
		regexp.MustCompile(`(?i)^what(?:'s|’s|\s+is)\s+the\s+name\s+of\s+(?:this|that|the)\s+(?:movie|film|series|show)` + phraseEnd),
		regexp.MustCompile(`(?i)^(?:help\s+(?:me\s+)?)?find\s+(?:a|the|this)\s+(?:movie|film|series|show)` + phraseEnd),
		regexp.MustCompile(`(?i)^(?:что|какой|как[оа]я)\s+(?:это\s+)?(?:за\s+)?(?:фильм|сериал|кино|мультфильм|мультик)` + phraseEnd),
		regexp.MustCompile(`(?i)^как\s+называется(?:\s+(?:этот|это|тот))?(?:\s+(?:фильм|сериал|мультфильм))?` + phraseEnd),
		regexp.MustCompile(`(?i)^(?:подскажи(?:те)?|найди(?:те)?|помоги(?:те)?\s+найти)(?:\s+(?:пожалуйста|плиз))?(?:\s+(?:фильм|сериал|название))?` + phraseEnd),
		regexp.MustCompile(`(?i)^(?:що|який|яка)\s+(?:це\s+)?(?:за\s+)?(?:фільм|серіал|кіно|мультфільм)` + phraseEnd),
		regexp.MustCompile(`(?i)^як\s+називається(?:\s+(?:цей|це))?(?:\s+(?:фільм|серіал))?` + phraseEnd),
		regexp.MustCompile(`(?i)^(?:the\s+)?(?:movie|film|tv\s+series|series|show|фильм|кино|сериал|мультфильм|фільм|серіал)\s*[:—–-]\s*`),
	}

	// A clause word ends the title only after a separator or when more
	// text follows it, so titles such as "The Actor" survive.
	trailingClause = regexp.MustCompile(`(?i)(?:\s*[,;.:—–-]\s*` + clauseWords + `(?:[\s:,.!?—–-].*)?|\s+` + clauseWords + `[\s:,.!?—–-]+\S.*)$`)

	smartQuotes = strings.NewReplacer(
		"“", "", "”", "", "„", "", "«", "", "»", "",
		"‘", "", "’", "", "‹", "", "›", "", `"`, "",
	)

	yearPattern    = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)
	episodePattern = regexp.MustCompile(`(?i)\bS\s?(\d{1,2})\s?E(\d{1,3})\b`)
)

// Normalize strips vision-model and conversational prefixes, collapses
// whitespace and truncates to a word boundary. Normalize is idempotent.
func Normalize(raw string) string {
	s := collapseSpaces(raw)
	for {
		before := s
		s = searchQueryPrefix.ReplaceAllString(s, "")
		for _, re := range leadingPhrases {
			s = re.ReplaceAllString(s, "")
		}
		s = strings.TrimSpace(s)
		if s == before {
			break
		}
	}
	return truncateWords(s, maxNormalizedRunes)
}

// Sanitize is the strict form of Normalize used for search queries. The
// result never exceeds 60 runes.
func Sanitize(raw string) string {
	return Parse(raw).Normalized
}

// Parse sanitizes raw and reports the year, episode and kind it found.
func Parse(raw string) media.MediaQuery {
	q := media.MediaQuery{Raw: raw}

	s := Normalize(raw)
	if loc := trailingClause.FindStringIndex(s); loc != nil && strings.TrimSpace(s[:loc[0]]) != "" {
		s = s[:loc[0]]
	}
	s = collapseSpaces(smartQuotes.Replace(s))

	q.Year = ExtractYear(s)
	q.KindHint = kindHint(s)

	if season, episode, ok := ExtractEpisode(s); ok {
		q.Episode = fmt.Sprintf("S%02dE%02d", season, episode)
		q.KindHint = media.KindTV
		title := trimPunct(collapseSpaces(episodePattern.ReplaceAllString(s, " ")))
		s = strings.TrimSpace(fmt.Sprintf("%s S%d E%d", title, season, episode))
	} else if q.Year != "" {
		base := trimPunct(collapseSpaces(removeYear(s, q.Year)))
		if utf8.RuneCountInString(base)+5 <= maxWithYearRunes || base == "" {
			s = strings.TrimSpace(base + " " + q.Year)
		} else {
			s = base
		}
	}

	q.Normalized = trimPunct(truncateWords(trimPunct(s), maxSanitizedRunes))
	return q
}

// ExtractYear returns the first 19xx/20xx year in s.
func ExtractYear(s string) string {
	if m := yearPattern.FindStringSubmatch(s); len(m) == 2 {
		return m[1]
	}
	return ""
}

// ExtractEpisode finds an SxxEyy token.
func ExtractEpisode(s string) (season, episode int, ok bool) {
	m := episodePattern.FindStringSubmatch(s)
	if len(m) != 3 {
		return 0, 0, false
	}
	season, _ = strconv.Atoi(m[1])
	episode, _ = strconv.Atoi(m[2])
	return season, episode, true
}

// StripEpisode removes SxxEyy tokens from s.
func StripEpisode(s string) string {
	return trimPunct(collapseSpaces(episodePattern.ReplaceAllString(s, " ")))
}

// StripYear removes the first occurrence of year from s.
func StripYear(s, year string) string {
	if year == "" {
		return s
	}
	return trimPunct(collapseSpaces(removeYear(s, year)))
}

func removeYear(s, year string) string {
	loc := yearPattern.FindStringSubmatchIndex(s)
	if loc == nil || s[loc[2]:loc[3]] != year {
		return strings.Replace(s, year, " ", 1)
	}
	out := s[:loc[2]] + " " + s[loc[3]:]
	return strings.NewReplacer("()", " ", "( )", " ", "[]", " ").Replace(out)
}

const clauseWords = `(?:where\s+the\s+scene|the\s+scene|scene|fact|actors?|country|language|meme|в\s+сцене|сцена|факт|акт[её]р[ыа]?|страна|язык|мем|сцені|актор[иа]?|країна|мова)`

var (
	tvWords    = []string{"series", "tv show", "season", "сериал", "сезон", "серия", "серіал", "серія"}
	movieWords = []string{"movie", "film", "фильм", "кино", "фільм", "кіно"}
)

func kindHint(s string) media.Kind {
	lower := strings.ToLower(s)
	for _, w := range tvWords {
		if strings.Contains(lower, w) {
			return media.KindTV
		}
	}
	for _, w := range movieWords {
		if strings.Contains(lower, w) {
			return media.KindMovie
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimPunct(s string) string {
	return strings.Trim(s, " \t-–—,.;:!?/|")
}

// truncateWords cuts s to at most max runes, backing off to the last
// space so no word is split.
func truncateWords(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := runes[:max]
	if runes[max] != ' ' {
		for i := len(cut) - 1; i > 0; i-- {
			if cut[i] == ' ' {
				cut = cut[:i]
				break
			}
		}
	}
	return strings.TrimSpace(string(cut))
}
