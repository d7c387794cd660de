package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationProcessWindow(t *testing.T) {
	tests := []struct {
		name   string
		amount int
		offset int
		want   []int64
	}{
		{"head", 2, 0, []int64{1, 2}},
		{"middle", 2, 1, []int64{2, 3}},
		{"short tail", 5, 3, []int64{4, 5}},
		{"offset at count", 2, 5, []int64{}},
		{"offset past count", 2, 9, []int64{}},
		{"zero amount", 0, 0, []int64{}},
		{"negative amount", -1, 0, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAllocation(nil, SliceMatches{1, 2, 3, 4, 5})
			assert.Equal(t, tt.want, a.Process(tt.amount, tt.offset))
			assert.Equal(t, tt.want, a.IDs())
			assert.LessOrEqual(t, len(a.IDs()), max(tt.amount, 0))
		})
	}
}

func TestAllocationProcessUnknownCount(t *testing.T) {
	a := NewAllocation(nil, &fakeMatches{ids: seq(1, 3), unknown: true})

	assert.Equal(t, []int64{2, 3}, a.Process(5, 1))
	assert.Empty(t, a.Process(5, 3))
}

func TestAllocationProcessWithIllegals(t *testing.T) {
	a := NewAllocation(nil, SliceMatches(seq(1, 10)))

	assert.Equal(t, []int64{1, 4, 6}, a.ProcessWithIllegals(3, 0, []int64{2, 3, 5}))
	assert.Equal(t, []int64{6, 7}, a.ProcessWithIllegals(2, 2, []int64{2, 3, 5}))
	assert.Equal(t, []int64{10}, a.ProcessWithIllegals(4, 0, seq(1, 9)))
	assert.Empty(t, a.ProcessWithIllegals(0, 0, nil))
}

func TestAllocationProcessWithIllegalsScansUnknownCount(t *testing.T) {
	a := NewAllocation(nil, &fakeMatches{ids: seq(1, 20), unknown: true})

	assert.Equal(t, []int64{15, 16}, a.ProcessWithIllegals(2, 0, seq(1, 14)))
}

func TestAllocationScore(t *testing.T) {
	w := NewWeights(WeightEntry{Categories: []string{"title", "author"}, Weight: 6})
	a := NewIntersectionAllocation(Combinations{
		NewCombination("title", "alan", []int64{1}),
		NewCombination("author", "turing", []int64{1}),
	})

	a.CalculateScore(w)
	assert.Equal(t, 6.0, a.Score())

	a.CalculateScore(w)
	assert.Equal(t, 6.0, a.Score())
}

func TestAllocationToResultEmpty(t *testing.T) {
	a := NewAllocation(Combinations{NewCombination("title", "x", nil)}, SliceMatches{})
	a.Process(10, 0)

	_, ok := a.ToResult()
	assert.False(t, ok)
}

func TestIntersectionMatches(t *testing.T) {
	m := NewIntersectionMatches(Combinations{
		NewCombination("title", "a", []int64{1, 3, 5, 7, 9}),
		NewCombination("body", "b", []int64{3, 4, 5, 9}),
		NewCombination("author", "c", []int64{2, 3, 9, 11}),
	})

	n, ok := m.Count()
	require.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{9}, m.Materialize(5, 1))

	empty := NewIntersectionMatches(nil)
	n, _ = empty.Count()
	assert.Zero(t, n)
}

func TestResultsPrepare(t *testing.T) {
	allocs := NewAllocations(allocation("a", seq(1, 15)...), allocation("b", seq(10, 15)...))
	r := NewResults("peter", 10, allocs)
	r.Duration = 1500 * time.Microsecond

	r.Prepare(DefaultAmount, false, NoEarlyTermination)

	assert.Equal(t, 30, r.Total())
	assert.Equal(t, append(seq(11, 5), seq(10, 15)...), r.IDs(MaxResults))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "peter", snap.Query)
	assert.Equal(t, 10, snap.Offset)
	assert.Equal(t, 30, snap.Total)
	assert.Equal(t, 1.5, snap.DurationMs)
	assert.Len(t, snap.Allocations, 2)
}

func TestResultsPrepareZeroAmount(t *testing.T) {
	allocs := NewAllocations(allocation("a", 1, 2, 3), allocation("b", 4, 5))
	r := NewResults("q", 0, allocs)

	r.Prepare(0, false, NoEarlyTermination)

	assert.Empty(t, r.IDs(DefaultAmount))
	assert.Empty(t, r.Snapshot().Allocations)
	assert.Equal(t, 5, r.Total())
}

func TestResultsPrepareUnique(t *testing.T) {
	allocs := NewAllocations(allocation("a", 1, 2, 3), allocation("b", 2, 3, 4))
	r := NewResults("q", 0, allocs)

	r.Prepare(10, true, NoEarlyTermination)

	assert.Equal(t, []int64{1, 2, 3, 4}, r.IDs(10))
}

func TestSnapshotIDs(t *testing.T) {
	snap := Snapshot{Allocations: []AllocationResult{
		{IDs: []int64{1, 2}},
		{IDs: []int64{3, 4, 5}},
	}}
	assert.Equal(t, []int64{1, 2, 3}, snap.IDs(3))
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, snap.IDs(DefaultAmount))
	assert.Empty(t, snap.IDs(0))
	assert.Empty(t, Snapshot{}.IDs(5))
}
