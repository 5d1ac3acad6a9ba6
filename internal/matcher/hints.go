package matcher

import "github.com/cardledger/cardintake/internal/textnorm"

// genericHintWords are manufacturer and product-family words that say
// nothing about which product line a card belongs to on their own.
var genericHintWords = map[string]struct{}{
	"topps":      {},
	"panini":     {},
	"upper":      {},
	"deck":       {},
	"bowman":     {},
	"donruss":    {},
	"fleer":      {},
	"leaf":       {},
	"score":      {},
	"hoops":      {},
	"pokemon":    {},
	"magic":      {},
	"gathering":  {},
	"yugioh":     {},
	"konami":     {},
	"wizards":    {},
	"chrome":     {},
	"base":       {},
	"series":     {},
	"trading":    {},
	"sports":     {},
	"baseball":   {},
	"basketball": {},
	"football":   {},
	"hockey":     {},
	"soccer":     {},
}

// IsActionableProductLineHint reports whether hint carries enough signal to
// drive a product line guess: two or more tokens, a year-like token, or a
// single token that is not a generic manufacturer/product-family word.
func IsActionableProductLineHint(hint string) bool {
	tokens := textnorm.Tokens(hint)
	switch len(tokens) {
	case 0:
		return false
	case 1:
		if textnorm.IsYearLike(tokens[0]) {
			return true
		}
		_, generic := genericHintWords[tokens[0]]
		return !generic
	default:
		return true
	}
}

// ActionableHints filters hints down to the actionable ones.
func ActionableHints(hints []string) []string {
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		if IsActionableProductLineHint(h) {
			out = append(out, h)
		}
	}
	return out
}
