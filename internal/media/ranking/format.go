package ranking

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/diarybot/diarybot/internal/i18n"
	"github.com/diarybot/diarybot/internal/media"
)

const (
	MaxAlternates = 3
	MaxUnsure     = 2
	MaxOptions    = 10

	maxOverviewRunes = 300
)

// Response is a formatted ranking decision.
type Response struct {
	Text      string
	Confident bool
	TopScore  float64
	Source    string
	Ranked    []media.ScoredCandidate
}

// Ranker scores candidate lists and renders them in the user's language.
type Ranker struct {
	catalog   *i18n.Catalog
	threshold float64
}

// NewRanker returns a ranker that asserts an answer only at or above
// threshold. A non-positive threshold selects DefaultThreshold.
func NewRanker(catalog *i18n.Catalog, threshold float64) *Ranker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Ranker{catalog: catalog, threshold: threshold}
}

func (r *Ranker) Threshold() float64 {
	return r.threshold
}

// Rank scores and sorts candidates, best first. Ties keep popularity order.
func (r *Ranker) Rank(query string, candidates []media.CandidateRecord, yearHint, lang string) []media.ScoredCandidate {
	langHint := LanguageHint(query)
	out := make([]media.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		score, why := Score(query, c, yearHint, langHint)
		out = append(out, media.ScoredCandidate{
			CandidateRecord: c,
			Score:           score,
			Why:             r.rationaleText(why, lang),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Popularity > out[j].Popularity
	})
	return out
}

// Format ranks candidates and renders either a confident answer with up
// to three alternates, or below the threshold the two closest matches
// and a request for one more fact. It never asserts a title below the
// threshold.
func (r *Ranker) Format(query string, candidates []media.CandidateRecord, yearHint, lang, source string) Response {
	ranked := r.Rank(query, candidates, yearHint, lang)
	resp := Response{Source: source, Ranked: ranked}
	if len(ranked) == 0 {
		resp.Text = r.catalog.T(lang, "media.not_found")
		return resp
	}

	top := ranked[0]
	resp.TopScore = top.Score

	var b strings.Builder
	if top.Score < r.threshold {
		b.WriteString(r.catalog.T(lang, "media.not_sure"))
		for i, c := range ranked[:min(MaxUnsure, len(ranked))] {
			fmt.Fprintf(&b, "\n%d. %s", i+1, r.FormatCandidate(c.CandidateRecord, lang))
			if c.Why != "" {
				b.WriteString(" — " + c.Why)
			}
		}
		b.WriteString("\n\n" + r.catalog.T(lang, "media.ask_fact"))
		resp.Text = b.String()
		return resp
	}

	resp.Confident = true
	b.WriteString(r.catalog.T(lang, "media.answer"))
	b.WriteString("\n" + r.FormatCandidate(top.CandidateRecord, lang))
	if top.Why != "" {
		b.WriteString(" — " + top.Why)
	}
	if alts := ranked[1:min(1+MaxAlternates, len(ranked))]; len(alts) > 0 {
		b.WriteString("\n\n" + r.catalog.T(lang, "media.alternatives"))
		for i, c := range alts {
			fmt.Fprintf(&b, "\n%d. %s", i+2, r.FormatCandidate(c.CandidateRecord, lang))
		}
	}
	b.WriteString("\n\n" + r.catalog.T(lang, "media.trailer"))
	resp.Text = b.String()
	return resp
}

// FormatCandidate renders "Title (Original, 2010, film)".
func (r *Ranker) FormatCandidate(c media.CandidateRecord, lang string) string {
	var meta []string
	if c.OriginalTitle != "" && !strings.EqualFold(c.OriginalTitle, c.Title) {
		meta = append(meta, c.OriginalTitle)
	}
	if c.Year != "" {
		meta = append(meta, c.Year)
	}
	if c.Kind != "" {
		meta = append(meta, r.catalog.T(lang, "kind."+string(c.Kind)))
	}
	if len(meta) == 0 {
		return c.Title
	}
	return fmt.Sprintf("%s (%s)", c.Title, strings.Join(meta, ", "))
}

// FormatChoice renders the single candidate a user picked.
func (r *Ranker) FormatChoice(c media.CandidateRecord, lang string) string {
	text := r.catalog.T(lang, "media.answer") + "\n" + r.FormatCandidate(c, lang)
	if overview := truncate(c.Overview, maxOverviewRunes); overview != "" {
		text += "\n\n" + overview
	}
	return text
}

// FormatOptions renders candidates as a numbered list the user can pick from.
func (r *Ranker) FormatOptions(query string, candidates []media.CandidateRecord, lang string) string {
	if len(candidates) == 0 {
		return r.catalog.T(lang, "media.no_options")
	}
	var b strings.Builder
	b.WriteString(r.catalog.T(lang, "media.options_header", query))
	for i, c := range candidates[:min(MaxOptions, len(candidates))] {
		fmt.Fprintf(&b, "\n%d. %s", i+1, r.FormatCandidate(c, lang))
	}
	b.WriteString("\n\n" + r.catalog.T(lang, "media.pick_prompt"))
	return b.String()
}

func (r *Ranker) rationaleText(why Rationale, lang string) string {
	parts := []string{r.catalog.T(lang, "why."+why.Match)}
	if why.Year != "" {
		parts = append(parts, r.catalog.T(lang, "why.year", why.Year))
	}
	if why.Language {
		parts = append(parts, r.catalog.T(lang, "why.language"))
	}
	if why.Popular {
		parts = append(parts, r.catalog.T(lang, "why.popular"))
	} else if why.Rated {
		parts = append(parts, r.catalog.T(lang, "why.rated"))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)[:max]
	if i := strings.LastIndexByte(string(r), ' '); i > 0 {
		return string(r)[:i] + "…"
	}
	return string(r) + "…"
}
