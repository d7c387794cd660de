package query

import "slices"

// Matches is what an index backend hands out for one combination sequence:
// a total count that may be unknown, and ids materialised on demand.
type Matches interface {
	// Count returns the total number of matching ids. ok is false when the
	// backend cannot tell without a full scan.
	Count() (n int, ok bool)
	// Materialize returns up to amount ids starting at offset within the
	// match set.
	Materialize(amount, offset int) []int64
}

// SliceMatches is a fully materialised match set.
type SliceMatches []int64

func (s SliceMatches) Count() (int, bool) { return len(s), true }

func (s SliceMatches) Materialize(amount, offset int) []int64 {
	return window(s, amount, offset)
}

// IntersectionMatches intersects the id lists of a combination sequence the
// first time it is asked for anything, and keeps the result.
type IntersectionMatches struct {
	combinations Combinations
	ids          []int64
	computed     bool
}

func NewIntersectionMatches(combinations Combinations) *IntersectionMatches {
	return &IntersectionMatches{combinations: combinations}
}

func (m *IntersectionMatches) Count() (int, bool) {
	return len(m.calculate()), true
}

func (m *IntersectionMatches) Materialize(amount, offset int) []int64 {
	return window(m.calculate(), amount, offset)
}

func (m *IntersectionMatches) calculate() []int64 {
	if m.computed {
		return m.ids
	}
	m.computed = true
	if len(m.combinations) == 0 {
		return nil
	}
	lists := make([][]int64, len(m.combinations))
	for i, c := range m.combinations {
		lists[i] = c.IDs()
	}
	slices.SortStableFunc(lists, func(a, b []int64) int { return len(a) - len(b) })
	result := slices.Clone(lists[0])
	for _, other := range lists[1:] {
		result = intersectSorted(result, other)
		if len(result) == 0 {
			break
		}
	}
	m.ids = result
	return m.ids
}

// intersectSorted keeps the ids of a that are also in b. Both are ascending.
func intersectSorted(a, b []int64) []int64 {
	out := a[:0]
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func window(ids []int64, amount, offset int) []int64 {
	if amount <= 0 || offset < 0 || offset >= len(ids) {
		return []int64{}
	}
	end := min(offset+amount, len(ids))
	return slices.Clone(ids[offset:end])
}
