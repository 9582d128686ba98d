package mediaquery

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Fold lowercases s and strips diacritics so that "Amélie" and "amelie",
// or "Ёлки" and "елки", compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(strings.TrimSpace(out))
	return strings.ReplaceAll(out, "ё", "е")
}

// Tokens returns the folded letter/digit runs of s.
func Tokens(s string) []string {
	return tokenPattern.FindAllString(Fold(s), -1)
}
