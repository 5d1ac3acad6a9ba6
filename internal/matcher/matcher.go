// Package matcher fuzzy-scores free text against approved option pool labels.
//
// Scoring per label, accumulated:
//
//	exact case-insensitive match       ExactBonus     (1.5)
//	equal normalized token-set key     TokenKeyBonus  (1.2)
//	substring containment either way   ContainsBonus  (0.9)
//	each label token shared with hints HintTokenBonus (0.25)
//
// The highest scoring label wins when it reaches the caller's minimum score.
// Ties keep the first label in pool order.
package matcher

import (
	"sort"
	"strings"

	"github.com/cardledger/cardintake/internal/textnorm"
)

// Policy holds the scoring weights and acceptance thresholds.
// The defaults are empirical and meant to be calibrated with `cardintake eval run`.
type Policy struct {
	ExactBonus      float64 `toml:"exact_bonus" yaml:"exact_bonus"`
	TokenKeyBonus   float64 `toml:"token_key_bonus" yaml:"token_key_bonus"`
	ContainsBonus   float64 `toml:"contains_bonus" yaml:"contains_bonus"`
	HintTokenBonus  float64 `toml:"hint_token_bonus" yaml:"hint_token_bonus"`
	CatalogMinScore float64 `toml:"catalog_min_score" yaml:"catalog_min_score"`
	VariantMinScore float64 `toml:"variant_min_score" yaml:"variant_min_score"`
	StrictMinScore  float64 `toml:"strict_min_score" yaml:"strict_min_score"`
}

// DefaultPolicy returns the production scoring constants.
func DefaultPolicy() Policy {
	return Policy{
		ExactBonus:      1.5,
		TokenKeyBonus:   1.2,
		ContainsBonus:   0.9,
		HintTokenBonus:  0.25,
		CatalogMinScore: 0.8,
		VariantMinScore: 0.6,
		StrictMinScore:  1.1,
	}
}

// Match is one scored pool label.
type Match struct {
	Label string
	Score float64
	Index int
}

// Score returns the accumulated score of label for candidate and hints.
func (p Policy) Score(candidate, label string, hints []string) float64 {
	score := 0.0

	candidate = strings.TrimSpace(candidate)
	if candidate != "" && strings.TrimSpace(label) != "" {
		if strings.EqualFold(candidate, strings.TrimSpace(label)) {
			score += p.ExactBonus
		}

		candKey := textnorm.TokenKey(candidate)
		labelKey := textnorm.TokenKey(label)
		if candKey != "" && candKey == labelKey {
			score += p.TokenKeyBonus
		}

		candNorm := textnorm.Normalized(candidate)
		labelNorm := textnorm.Normalized(label)
		if candNorm != "" && labelNorm != "" &&
			(strings.Contains(candNorm, labelNorm) || strings.Contains(labelNorm, candNorm)) {
			score += p.ContainsBonus
		}
	}

	if len(hints) > 0 {
		hintTokens := make(map[string]struct{})
		for _, h := range hints {
			for _, t := range textnorm.Tokens(h) {
				hintTokens[t] = struct{}{}
			}
		}
		seen := make(map[string]struct{})
		for _, t := range textnorm.Tokens(label) {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			if _, ok := hintTokens[t]; ok {
				score += p.HintTokenBonus
			}
		}
	}

	return score
}

// ScoreOption returns the best scoring label. The boolean is false when labels is empty.
func (p Policy) ScoreOption(candidate string, labels []string, hints []string) (Match, bool) {
	best := Match{Index: -1}
	for i, label := range labels {
		s := p.Score(candidate, label, hints)
		if best.Index < 0 || s > best.Score {
			best = Match{Label: label, Score: s, Index: i}
		}
	}
	return best, best.Index >= 0
}

// ApplyMatch returns the best label for candidate when its score reaches minScore.
func (p Policy) ApplyMatch(candidate string, labels []string, hints []string, minScore float64) (string, bool) {
	best, ok := p.ScoreOption(candidate, labels, hints)
	if !ok || best.Score < minScore {
		return "", false
	}
	return best.Label, true
}

// Rank scores every label and orders them by descending score, keeping pool
// order between equal scores. Used to order picker options.
func (p Policy) Rank(candidate string, labels []string, hints []string) []Match {
	out := make([]Match, len(labels))
	for i, label := range labels {
		out[i] = Match{Label: label, Score: p.Score(candidate, label, hints), Index: i}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
