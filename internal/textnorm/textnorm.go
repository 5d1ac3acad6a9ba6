// Package textnorm normalizes catalog labels and OCR text for comparison.
//
// Tokens are produced by lowercasing, removing diacritics, splitting on
// non-alphanumeric runs and dropping a small stop-word set.
package textnorm

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	splitPattern = regexp.MustCompile(`[^a-z0-9]+`)
	yearPattern  = regexp.MustCompile(`^(19|20)\d{2}(-\d{2})?$`)
)

var stopWords = map[string]struct{}{
	"the":   {},
	"a":     {},
	"an":    {},
	"of":    {},
	"and":   {},
	"card":  {},
	"cards": {},
	"set":   {},
}

// Fold lowercases s and strips diacritics ("Pokémon" -> "pokemon").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// Words splits s into folded alphanumeric words without removing stop words.
func Words(s string) []string {
	raw := splitPattern.Split(Fold(s), -1)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Tokens returns the comparison tokens of s.
func Tokens(s string) []string {
	words := Words(s)
	out := words[:0]
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// TokenKey returns the sorted, de-duplicated tokens of s joined by a space.
// Two labels with the same key differ only in order, punctuation or stop words.
func TokenKey(s string) string {
	tokens := Tokens(s)
	if len(tokens) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(tokens))
	uniq := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " ")
}

// Normalized joins the tokens of s with single spaces.
func Normalized(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Slug lowercases s, replaces non-alphanumeric runs with "_" and trims
// leading and trailing underscores.
func Slug(s string) string {
	return strings.Trim(splitPattern.ReplaceAllString(Fold(s), "_"), "_")
}

// IsYearLike reports whether token looks like a card year or season ("2021", "2021-22").
func IsYearLike(token string) bool {
	return yearPattern.MatchString(strings.TrimSpace(token))
}
