package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMatches records how often it is asked for its count and can pretend
// not to know it.
type fakeMatches struct {
	ids        []int64
	unknown    bool
	countCalls int
}

func (f *fakeMatches) Count() (int, bool) {
	f.countCalls++
	if f.unknown {
		return 0, false
	}
	return len(f.ids), true
}

func (f *fakeMatches) Materialize(amount, offset int) []int64 {
	return window(f.ids, amount, offset)
}

func seq(from, n int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = from + int64(i)
	}
	return out
}

func allocation(category string, ids ...int64) *Allocation {
	return NewAllocation(
		Combinations{NewCombination(category, "token", ids)},
		&fakeMatches{ids: ids},
	)
}

func unknownAllocation(category string) *Allocation {
	return NewAllocation(
		Combinations{NewCombination(category, "token", nil)},
		&fakeMatches{ids: seq(100, 4), unknown: true},
	)
}

func TestTotalStopsAtFirstUnknownCount(t *testing.T) {
	allocs := NewAllocations(
		allocation("a", seq(1, 5)...),
		unknownAllocation("b"),
		allocation("c", seq(10, 3)...),
	)
	assert.Equal(t, 5, allocs.Total())

	allocs = NewAllocations(
		allocation("a", seq(1, 5)...),
		allocation("c", seq(10, 3)...),
		unknownAllocation("b"),
	)
	assert.Equal(t, 8, allocs.Total())
}

func TestTotalIsMemoized(t *testing.T) {
	m := &fakeMatches{ids: seq(1, 4)}
	allocs := NewAllocations(NewAllocation(Combinations{NewCombination("a", "x", nil)}, m))

	require.Equal(t, 4, allocs.Total())
	m.ids = seq(1, 9)
	assert.Equal(t, 4, allocs.Total())
	assert.Equal(t, 1, m.countCalls)
}

func TestIDsTruncatesToAmount(t *testing.T) {
	allocs := NewAllocations(
		allocation("a", 1, 2, 3),
		allocation("b", 4, 5),
		allocation("c", 6, 7, 8, 9),
	)
	allocs.Each(func(a *Allocation) { a.Process(10, 0) })

	assert.Equal(t, []int64{1, 2, 3, 4}, allocs.IDs(4))
	assert.Equal(t, []int64{1, 2}, allocs.IDs(2))
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, allocs.IDs(DefaultAmount))
	assert.Empty(t, allocs.IDs(0))
	assert.NotNil(t, allocs.IDs(0))
}

func TestIDsDefaultAmount(t *testing.T) {
	allocs := NewAllocations(allocation("a", seq(1, 30)...))
	allocs.Process(30, 0, NoEarlyTermination)

	assert.Len(t, allocs.IDs(DefaultAmount), DefaultIDsAmount)
	assert.Len(t, allocs.IDs(25), 25)
}

func TestIDsDoesNotMaterialize(t *testing.T) {
	allocs := NewAllocations(allocation("a", 1, 2, 3))
	assert.Empty(t, allocs.IDs(3))
}

func TestProcessSkipsOffsetAcrossAllocations(t *testing.T) {
	first := allocation("a", 1, 2, 3)
	second := allocation("b", 10, 11)
	third := allocation("c", seq(20, 5)...)
	allocs := NewAllocations(first, second, third)

	allocs.Process(4, 3, NoEarlyTermination)

	assert.Empty(t, first.IDs())
	assert.Equal(t, []int64{10, 11}, second.IDs())
	assert.Equal(t, []int64{20, 21}, third.IDs())
	assert.Equal(t, []int64{10, 11, 20, 21}, allocs.IDs(10))
}

func TestProcessOffsetInsideAllocation(t *testing.T) {
	allocs := NewAllocations(
		allocation("a", 1, 2, 3),
		allocation("b", 10, 11),
		allocation("c", seq(20, 5)...),
	)

	allocs.Process(3, 4, NoEarlyTermination)

	assert.Equal(t, []int64{11, 20, 21}, allocs.IDs(10))
}

func TestProcessOffsetBeyondEverything(t *testing.T) {
	allocs := NewAllocations(allocation("a", 1, 2), allocation("b", 3))

	allocs.Process(5, 10, NoEarlyTermination)

	assert.Empty(t, allocs.IDs(10))
	assert.Empty(t, allocs.ToResult())
}

func TestProcessNonPositiveAmount(t *testing.T) {
	for _, amount := range []int{0, -3} {
		allocs := NewAllocations(allocation("a", 1, 2), allocation("b", 3))
		allocs.Process(amount, 0, NoEarlyTermination)
		assert.Empty(t, allocs.IDs(10), "amount %d", amount)
	}
}

func TestProcessKeepsDuplicates(t *testing.T) {
	allocs := NewAllocations(allocation("a", 1, 2, 3), allocation("b", 3, 4))

	allocs.Process(10, 0, NoEarlyTermination)

	assert.Equal(t, []int64{1, 2, 3, 3, 4}, allocs.IDs(10))
}

func TestProcessTerminateEarly(t *testing.T) {
	build := func() ([]*fakeMatches, *Allocations) {
		fakes := make([]*fakeMatches, 4)
		allocs := make([]*Allocation, 4)
		for i := range fakes {
			fakes[i] = &fakeMatches{ids: seq(int64(i*10), 2)}
			allocs[i] = NewAllocation(Combinations{NewCombination("c", "t", nil)}, fakes[i])
		}
		return fakes, NewAllocations(allocs...)
	}

	tests := []struct {
		name           string
		terminateEarly int
		visited        int
	}{
		{"stop right away", 0, 1},
		{"one extra allocation", 1, 2},
		{"two extra allocations", 2, 3},
		{"no early termination", NoEarlyTermination, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakes, allocs := build()
			allocs.Process(2, 0, tt.terminateEarly)

			visited := 0
			for _, f := range fakes {
				if f.countCalls > 0 {
					visited++
				}
			}
			assert.Equal(t, tt.visited, visited)
			assert.Equal(t, []int64{0, 1}, allocs.IDs(10))
		})
	}
}

func TestProcessUniqueRemovesSharedIDs(t *testing.T) {
	first := allocation("a", 1, 2, 3)
	second := allocation("b", 3, 4, 5)
	allocs := NewAllocations(first, second)

	allocs.ProcessUnique(10, 0, NoEarlyTermination)

	assert.Equal(t, []int64{1, 2, 3}, first.IDs())
	assert.Equal(t, []int64{4, 5}, second.IDs())
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, allocs.IDs(10))
}

func TestProcessUniqueWithOffset(t *testing.T) {
	allocs := NewAllocations(allocation("a", 1, 2, 3), allocation("b", 3, 4, 5))

	allocs.ProcessUnique(2, 1, NoEarlyTermination)

	assert.Equal(t, []int64{2, 3}, allocs.IDs(10))
}

func TestProcessUniqueDropsFullyDuplicatedAllocation(t *testing.T) {
	allocs := NewAllocations(allocation("a", 1, 2, 3), allocation("b", 2, 3), allocation("c", 4))

	allocs.ProcessUnique(10, 0, NoEarlyTermination)

	results := allocs.ToResult()
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Combinations[0].Category)
	assert.Equal(t, "c", results[1].Combinations[0].Category)
}

func TestProcessUniqueTerminateEarly(t *testing.T) {
	third := &fakeMatches{ids: []int64{9}}
	allocs := NewAllocations(
		allocation("a", 1, 2),
		allocation("b", 3),
		NewAllocation(Combinations{NewCombination("c", "t", nil)}, third),
	)

	allocs.ProcessUnique(2, 0, 0)

	assert.Equal(t, []int64{1, 2}, allocs.IDs(10))
	assert.Zero(t, third.countCalls)
}

func TestSortIsStableAndDescending(t *testing.T) {
	w := NewWeights(
		WeightEntry{Categories: []string{"title"}, Weight: 3},
		WeightEntry{Categories: []string{"author"}, Weight: 5},
	)
	allocs := NewAllocations(
		allocation("title", 1),
		allocation("unknown", 2),
		allocation("author", 3),
		allocation("other", 4),
		allocation("title", 5),
	)

	allocs.CalculateScore(w)
	allocs.Sort()
	first := categories(allocs)

	allocs.CalculateScore(w)
	allocs.Sort()

	assert.Equal(t, []string{"author", "title", "title", "unknown", "other"}, first)
	assert.Equal(t, first, categories(allocs))
	assert.Equal(t, 5.0, allocs.At(0).Score())
}

func TestReduceTo(t *testing.T) {
	allocs := NewAllocations(allocation("a", 1), allocation("b", 2), allocation("c", 3))

	allocs.ReduceTo(5)
	assert.Equal(t, 3, allocs.Len())

	allocs.ReduceTo(2)
	assert.Equal(t, []string{"a", "b"}, categories(allocs))

	allocs.ReduceTo(0)
	assert.True(t, allocs.Empty())
}

func TestRemoveCategories(t *testing.T) {
	a := NewIntersectionAllocation(Combinations{
		NewCombination("title", "peter", []int64{1, 2, 3}),
		NewCombination("author", "peter", []int64{3}),
	})
	allocs := NewAllocations(a)

	allocs.Remove(nil)
	n, _ := a.Count()
	assert.Equal(t, 1, n)

	allocs.Remove([]string{"author"})
	assert.Equal(t, []string{"title"}, a.Combinations().CategoryNames())
	n, _ = a.Count()
	assert.Equal(t, 3, n)
}

func TestUniq(t *testing.T) {
	allocs := NewAllocations(
		allocation("a", 1),
		allocation("b", 2),
		allocation("a", 3),
	)

	allocs.Uniq()

	assert.Equal(t, []string{"a", "b"}, categories(allocs))
}

func TestUniqKeepsSequencesWithSeparatorsInTokens(t *testing.T) {
	joined := NewAllocation(Combinations{NewCombination("title", "b;author:c", nil)}, SliceMatches{1})
	split := NewAllocation(Combinations{
		NewCombination("title", "b", nil),
		NewCombination("author", "c", nil),
	}, SliceMatches{2})
	require.NotEqual(t, joined.Key(), split.Key())

	allocs := NewAllocations(joined, split)
	allocs.Uniq()

	assert.Equal(t, 2, allocs.Len())
}

func TestToResultAndString(t *testing.T) {
	allocs := NewAllocations(allocation("a", 1, 2), allocation("b"))
	allocs.Process(10, 0, NoEarlyTermination)

	results := allocs.ToResult()
	require.Len(t, results, 1)
	assert.Equal(t, AllocationResult{
		Combinations: []CombinationResult{{Category: "a", Token: "token"}},
		Count:        2,
		IDs:          []int64{1, 2},
	}, results[0])
	assert.JSONEq(t,
		`[{"combinations":[{"category":"a","token":"token"}],"score":0,"count":2,"ids":[1,2]}]`,
		allocs.String(),
	)
}

func categories(allocs *Allocations) []string {
	var out []string
	allocs.Each(func(a *Allocation) {
		out = append(out, a.Combinations()[0].Category)
	})
	return out
}
