package metrics

import (
	"fmt"
	"strings"

	"github.com/cardledger/cardintake/internal/textnorm"
)

// Outcome classifies one field of one sample.
type Outcome string

const (
	// OutcomeCorrect: a value was applied and equals the confirmed value.
	OutcomeCorrect Outcome = "correct"
	// OutcomeNearMiss: applied and close to the confirmed value (casing, a typo).
	OutcomeNearMiss Outcome = "near_miss"
	// OutcomeWrong: applied and different from the confirmed value.
	OutcomeWrong Outcome = "wrong"
	// OutcomeUnexpected: applied although the field was confirmed empty.
	OutcomeUnexpected Outcome = "unexpected"
	// OutcomeWithheld: nothing applied although a value was confirmed.
	OutcomeWithheld Outcome = "withheld"
	// OutcomeAbstained: nothing applied and nothing confirmed.
	OutcomeAbstained Outcome = "abstained"
)

// nearMissSimilarity is the Levenshtein ratio above which a wrong value
// counts as a near miss.
const nearMissSimilarity = 0.7

// FieldMatch is the comparison of one field
type FieldMatch struct {
	Field    string  `json:"field"`
	Expected string  `json:"expected"`
	Actual   string  `json:"actual"`
	Applied  bool    `json:"applied"`
	Score    float64 `json:"score"`
	Outcome  Outcome `json:"outcome"`
	Status   string  `json:"status,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

// CompareField compares the value the resolver applied (if any) against the
// confirmed value.
func CompareField(field, expected, actual string, applied bool) FieldMatch {
	match := FieldMatch{
		Field:    field,
		Expected: expected,
		Actual:   actual,
		Applied:  applied,
	}

	expNorm := normalizeForComparison(expected)
	actNorm := normalizeForComparison(actual)

	if !applied {
		if expNorm == "" {
			match.Score = 1.0
			match.Outcome = OutcomeAbstained
			return match
		}
		match.Outcome = OutcomeWithheld
		return match
	}

	if expNorm == "" {
		match.Outcome = OutcomeUnexpected
		match.Notes = "Applied a value to a field confirmed empty"
		return match
	}

	if expNorm == actNorm {
		match.Score = 1.0
		match.Outcome = OutcomeCorrect
		return match
	}

	similarity := calculateSimilarity(expNorm, actNorm)
	match.Score = similarity
	if similarity > nearMissSimilarity {
		match.Outcome = OutcomeNearMiss
		match.Notes = fmt.Sprintf("High similarity (%.2f)", similarity)
	} else {
		match.Outcome = OutcomeWrong
		match.Notes = fmt.Sprintf("Low similarity (%.2f)", similarity)
	}
	return match
}

// normalizeForComparison folds case and diacritics and collapses punctuation.
// Stop words are kept: "The Rookies" and "Rookies" are different inserts.
func normalizeForComparison(text string) string {
	return strings.Join(textnorm.Words(text), " ")
}

// calculateSimilarity calculates similarity ratio (0.0 to 1.0) using Levenshtein distance
func calculateSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0.0
	}

	distance := levenshteinDistance(r1, r2)
	maxLen := max(len(r1), len(r2))

	return 1.0 - (float64(distance) / float64(maxLen))
}

// levenshteinDistance calculates the edit distance between two rune slices
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}
