// Package vision reads title hints out of vision-model replies and turns
// them into search queries.
package vision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/diarybot/diarybot/internal/media/mediaquery"
)

const (
	maxBlobBytes    = 8000
	maxQueries      = 12
	maxPhraseRunes  = 80
	minKeywordRunes = 4
	minTitleGuess   = 2
	maxTitleGuess   = 80
	mediaJSONMarker = "MEDIA_JSON:"
)

// Hints is the unified result of both hint schemas the model may emit:
// {actors, title_hints, keywords} and {title, year, alt_titles|aka, cast, keywords}.
type Hints struct {
	TitleHints []string
	Title      string
	Year       string
	Episode    string
	AltTitles  []string
	Actors     []string
	Cast       []string
	Keywords   []string
	Phrase     string // legacy keyword list, joined
}

// Empty reports whether no field carries anything usable.
func (h *Hints) Empty() bool {
	return h == nil || (len(h.TitleHints) == 0 && h.Title == "" && len(h.AltTitles) == 0 &&
		len(h.Actors) == 0 && len(h.Cast) == 0 && len(h.Keywords) == 0 && h.Phrase == "")
}

type rawHints struct {
	Actors     stringList `json:"actors"`
	TitleHints stringList `json:"title_hints"`
	Keywords   stringList `json:"keywords"`
	Title      flexString `json:"title"`
	Year       flexString `json:"year"`
	Episode    flexString `json:"episode"`
	AltTitles  stringList `json:"alt_titles"`
	AKA        stringList `json:"aka"`
	Cast       stringList `json:"cast"`
}

// stringList decodes a string, a list of strings, or a list of objects
// with a name/title field.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if s := strings.TrimSpace(single); s != "" {
			*l = stringList{s}
		}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		// unknown shapes are ignored
		return nil
	}
	out := make(stringList, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Name  string `json:"name"`
			Title string `json:"title"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			if s = strings.TrimSpace(obj.Name + obj.Title); s != "" {
				out = append(out, s)
			}
		}
	}
	*l = out
	return nil
}

// flexString decodes strings and numbers alike.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return nil
}

func (r rawHints) unify() *Hints {
	h := &Hints{
		TitleHints: r.TitleHints,
		Title:      string(r.Title),
		Year:       mediaquery.ExtractYear(string(r.Year)),
		Actors:     r.Actors,
		Cast:       r.Cast,
		AltTitles:  append(append([]string{}, r.AltTitles...), r.AKA...),
	}
	if ep := string(r.Episode); ep != "" {
		if season, episode, ok := mediaquery.ExtractEpisode(ep); ok {
			h.Episode = fmt.Sprintf("S%02dE%02d", season, episode)
		}
	}

	// The new schema ships title_hints or actors alongside keywords; the
	// legacy one ships a title with a loose keyword list.
	if len(r.TitleHints) > 0 || len(r.Actors) > 0 || h.Title == "" {
		h.Keywords = r.Keywords
	} else if len(r.Keywords) > 0 {
		h.Phrase = strings.Join(r.Keywords, " ")
	}
	return h
}

var (
	jsonFence  = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	anyFence   = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(.*?)```")
	searchLine = regexp.MustCompile(`(?im)^\s*SEARCH_QUERY\s*:\s*(.+?)\s*$`)
	titleLine  = regexp.MustCompile(`(?im)^\s*(?:title|название|назва)\s*:\s*(.+?)\s*$`)
	quotedText = regexp.MustCompile(`[«"“]([^»"”\n]+)[»"”]`)
)

// ExtractHints finds the hint object in a model reply. It tries the first
// line, a ```json fence, any fence, a MEDIA_JSON: line, then the first
// {...} blob. ok is false when nothing parses.
func ExtractHints(output string) (*Hints, bool) {
	for _, blob := range hintBlobs(output) {
		var raw rawHints
		if err := json.Unmarshal([]byte(blob), &raw); err != nil {
			continue
		}
		if h := raw.unify(); !h.Empty() {
			return h, true
		}
	}
	return nil, false
}

func hintBlobs(output string) []string {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil
	}
	var blobs []string

	first, _, _ := strings.Cut(output, "\n")
	if first = strings.TrimSpace(first); strings.HasPrefix(first, "{") && strings.HasSuffix(first, "}") {
		blobs = append(blobs, first)
	}
	if m := jsonFence.FindStringSubmatch(output); m != nil {
		blobs = append(blobs, strings.TrimSpace(m[1]))
	}
	if m := anyFence.FindStringSubmatch(output); m != nil {
		blobs = append(blobs, strings.TrimSpace(m[1]))
	}
	for _, line := range strings.Split(output, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), mediaJSONMarker); ok {
			blobs = append(blobs, strings.TrimSpace(rest))
			break
		}
	}
	if start := strings.Index(output, "{"); start >= 0 {
		blob := output[start:]
		if len(blob) > maxBlobBytes {
			blob = blob[:maxBlobBytes]
		}
		if end := strings.LastIndex(blob, "}"); end >= 0 {
			blobs = append(blobs, blob[:end+1])
		}
	}
	return blobs
}

// BuildQueries orders search queries by hint strength: title hints, the
// title, alternate titles, actors, cast with title, keywords, then the
// loose phrase. Every query is sanitized and quality-filtered.
func BuildQueries(h *Hints) []string {
	if h == nil {
		return nil
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, maxQueries)
	add := func(s string) {
		if len(out) >= maxQueries {
			return
		}
		q := mediaquery.Sanitize(s)
		if q == "" || !mediaquery.IsGoodCandidate(q) || mediaquery.IsBadMediaQuery(q) {
			return
		}
		key := mediaquery.Fold(q)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	withTags := func(title string) string {
		return strings.TrimSpace(strings.Join([]string{title, h.Year, h.Episode}, " "))
	}

	for _, t := range h.TitleHints {
		add(t)
	}
	if h.Title != "" {
		add(withTags(h.Title))
	}
	for _, t := range h.AltTitles {
		add(withTags(t))
	}
	switch {
	case len(h.Actors) >= 2:
		add(h.Actors[0] + " " + h.Actors[1])
	case len(h.Actors) == 1:
		add(h.Actors[0])
	}
	if len(h.Cast) > 0 {
		if h.Title != "" {
			add(h.Title + " " + h.Cast[0])
		} else if len(h.Cast) >= 2 {
			add(h.Cast[0] + " " + h.Cast[1])
		} else {
			add(h.Cast[0])
		}
	}
	for _, k := range h.Keywords {
		k = strings.TrimSpace(k)
		if utf8.RuneCountInString(k) < minKeywordRunes {
			continue
		}
		if len(strings.Fields(k)) == 1 && mediaquery.IsGenericWord(k) {
			continue
		}
		add(k)
	}
	if len(h.Keywords) == 0 && h.Phrase != "" {
		add(truncateRunes(h.Phrase, maxPhraseRunes))
	}
	return out
}

// ExtractSearchQuery returns the text of a SEARCH_QUERY: line, if any.
func ExtractSearchQuery(output string) string {
	if m := searchLine.FindStringSubmatch(output); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ExtractTitleGuess returns an explicit Title:/Название: line or the first
// quoted phrase, accepting 2 to 80 runes.
func ExtractTitleGuess(output string) string {
	var candidates []string
	if m := titleLine.FindStringSubmatch(output); m != nil {
		candidates = append(candidates, m[1])
	}
	for _, m := range quotedText.FindAllStringSubmatch(output, -1) {
		candidates = append(candidates, m[1])
	}
	for _, c := range candidates {
		c = strings.Trim(strings.TrimSpace(c), `"'«»“”`)
		if n := utf8.RuneCountInString(c); n >= minTitleGuess && n <= maxTitleGuess {
			return c
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return strings.TrimSpace(string(r[:max]))
}
