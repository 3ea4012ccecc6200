package attrs

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Tokens is a set of opaque attribute labels. A nil Tokens means "not
// specified".
type Tokens = sets.Set[string]

// NewTokens builds a token set. Blank items are dropped; an empty result is
// normalized to nil.
func NewTokens(items ...string) Tokens {
	var out Tokens
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if out == nil {
			out = sets.New[string]()
		}
		out.Insert(it)
	}
	return out
}

// Intersects reports whether a and b share at least one token.
func Intersects(a, b Tokens) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for t := range a {
		if b.Has(t) {
			return true
		}
	}
	return false
}

// CountIn returns how many tokens of a are present in b.
func CountIn(a, b Tokens) int {
	n := 0
	for t := range a {
		if b.Has(t) {
			n++
		}
	}
	return n
}
