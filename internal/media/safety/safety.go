// Package safety removes explicit titles from candidate lists before they
// can reach a user.
package safety

import (
	"strings"

	"github.com/diarybot/diarybot/internal/media"
)

// explicitTerms are matched as case-insensitive substrings.
var explicitTerms = []string{
	"porn", "xxx", "hentai", "erotic", "nsfw", "onlyfans", "sex tape", "sextape",
	"hardcore sex", "nude", "nudity", "stripper", "milf", "bdsm", "fetish",
	"порн", "эрот", "хентай", "секс-видео", "обнаж", "голая", "голые",
	"еротик", "оголен",
}

// ContainsExplicit reports whether s contains a term from the explicit lexicon.
func ContainsExplicit(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, term := range explicitTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Scrub drops adult records and records with an explicit title, and blanks
// explicit overviews. The input slice is not modified.
func Scrub(items []media.CandidateRecord) []media.CandidateRecord {
	out := make([]media.CandidateRecord, 0, len(items))
	for _, c := range items {
		if c.Adult || ContainsExplicit(c.Title) || ContainsExplicit(c.OriginalTitle) {
			continue
		}
		if ContainsExplicit(c.Overview) {
			c.Overview = ""
		}
		out = append(out, c)
	}
	return out
}

// Safe reports whether a record may be shown as is.
func Safe(c media.CandidateRecord) bool {
	return !c.Adult && !ContainsExplicit(c.Title) && !ContainsExplicit(c.OriginalTitle) && !ContainsExplicit(c.Overview)
}
