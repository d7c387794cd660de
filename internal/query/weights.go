// Package query composes per-combination match sets into a single ranked,
// paginated result list. A Weights table scores each Allocation, and the
// Allocations container sorts, trims and paginates them for one request.
package query

import (
	"fmt"
	"strings"
)

// keySeparator joins category names into a map key. Category names never
// contain it since they come from config identifiers.
const keySeparator = "\x1f"

// WeightEntry assigns a weight to one ordered sequence of category names.
type WeightEntry struct {
	Categories []string `yaml:"categories" json:"categories"`
	Weight     float64  `yaml:"weight" json:"weight"`
}

// CategoryNamer is implemented by anything that belongs to a category.
type CategoryNamer interface {
	CategoryName() string
}

// Weights maps ordered category sequences to a score. [a b] and [b a] are
// distinct keys. Weights is immutable once built.
type Weights struct {
	weights map[string]float64
	order   []WeightEntry
}

// NewWeights builds a table from the given entries. A later entry for the
// same sequence overrides an earlier one.
func NewWeights(entries ...WeightEntry) *Weights {
	w := &Weights{
		weights: make(map[string]float64, len(entries)),
		order:   make([]WeightEntry, 0, len(entries)),
	}
	for _, e := range entries {
		key := weightKey(e.Categories)
		if _, exists := w.weights[key]; exists {
			for i := range w.order {
				if weightKey(w.order[i].Categories) == key {
					w.order[i].Weight = e.Weight
				}
			}
		} else {
			cats := make([]string, len(e.Categories))
			copy(cats, e.Categories)
			w.order = append(w.order, WeightEntry{Categories: cats, Weight: e.Weight})
		}
		w.weights[key] = e.Weight
	}
	return w
}

// WeightFor returns the weight of the exact category sequence, or 0.
func (w *Weights) WeightFor(categories []string) float64 {
	if w == nil {
		return 0
	}
	return w.weights[weightKey(categories)]
}

// ScoreFor extracts the category names of the combinations in order and
// looks them up.
func (w *Weights) ScoreFor(combinations []CategoryNamer) float64 {
	names := make([]string, len(combinations))
	for i, c := range combinations {
		names[i] = c.CategoryName()
	}
	return w.WeightFor(names)
}

func (w *Weights) Empty() bool {
	return w == nil || len(w.weights) == 0
}

func (w *Weights) Len() int {
	if w == nil {
		return 0
	}
	return len(w.weights)
}

// String dumps the table in construction order.
func (w *Weights) String() string {
	if w == nil {
		return "Weights({})"
	}
	parts := make([]string, 0, len(w.order))
	for _, e := range w.order {
		parts = append(parts, fmt.Sprintf("[%s]:%g", strings.Join(e.Categories, " "), e.Weight))
	}
	return "Weights({" + strings.Join(parts, ", ") + "})"
}

func weightKey(categories []string) string {
	return strings.Join(categories, keySeparator)
}
