package query

import (
	"slices"
	"strconv"
	"strings"
)

// Combination is one query token matched in one category, together with the
// ids the category holds for that token. ids are sorted ascending.
type Combination struct {
	Category string
	Token    string
	ids      []int64
}

func NewCombination(category, token string, ids []int64) Combination {
	return Combination{Category: category, Token: token, ids: ids}
}

func (c Combination) CategoryName() string { return c.Category }

// IDs returns the category's ids for the token.
func (c Combination) IDs() []int64 { return c.ids }

// CombinationResult is the serialised form of a Combination.
type CombinationResult struct {
	Category string `json:"category"`
	Token    string `json:"token"`
}

// Combinations is the ordered list of combinations behind one allocation.
type Combinations []Combination

// CategoryNames returns the category of every combination, in order. This is
// the Weights lookup key.
func (cs Combinations) CategoryNames() []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Category
	}
	return names
}

// Key identifies the combination sequence; two allocations with the same key
// are duplicates. Every category and token is length-prefixed, so no
// character inside them can make two sequences collide.
func (cs Combinations) Key() string {
	var b strings.Builder
	for _, c := range cs {
		for _, part := range [2]string{c.Category, c.Token} {
			b.WriteString(strconv.Itoa(len(part)))
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

// Remove returns the combinations whose category is not listed.
func (cs Combinations) Remove(categories []string) Combinations {
	if len(categories) == 0 {
		return cs
	}
	kept := make(Combinations, 0, len(cs))
	for _, c := range cs {
		if !slices.Contains(categories, c.Category) {
			kept = append(kept, c)
		}
	}
	return kept
}

func (cs Combinations) ToResult() []CombinationResult {
	out := make([]CombinationResult, len(cs))
	for i, c := range cs {
		out[i] = CombinationResult{Category: c.Category, Token: c.Token}
	}
	return out
}
