package query

import (
	"encoding/json"
	"time"
)

// MaxResults is the amount of ids Prepare materialises for DefaultAmount.
const MaxResults = 20

// Results wraps the allocations of one query with its pagination window.
type Results struct {
	Query    string
	Offset   int
	Duration time.Duration

	allocations *Allocations
}

func NewResults(query string, offset int, allocations *Allocations) *Results {
	if allocations == nil {
		allocations = NewAllocations()
	}
	return &Results{Query: query, Offset: offset, allocations: allocations}
}

func (r *Results) Allocations() *Allocations { return r.allocations }

// Prepare materialises amount ids from Offset on. With unique set, ids
// already returned by a higher ranked allocation are skipped.
func (r *Results) Prepare(amount int, unique bool, terminateEarly int) {
	if amount < 0 {
		amount = MaxResults
	}
	if unique {
		r.allocations.ProcessUnique(amount, r.Offset, terminateEarly)
		return
	}
	r.allocations.Process(amount, r.Offset, terminateEarly)
}

func (r *Results) Total() int { return r.allocations.Total() }

// IDs returns the first amount materialised ids.
func (r *Results) IDs(amount int) []int64 { return r.allocations.IDs(amount) }

// Snapshot is the serialisable state of Results, also what caches store.
type Snapshot struct {
	Query       string             `json:"query"`
	Offset      int                `json:"offset"`
	Total       int                `json:"total"`
	DurationMs  float64            `json:"duration_ms"`
	Allocations []AllocationResult `json:"allocations"`
}

func (r *Results) Snapshot() Snapshot {
	return Snapshot{
		Query:       r.Query,
		Offset:      r.Offset,
		Total:       r.Total(),
		DurationMs:  float64(r.Duration.Microseconds()) / 1000,
		Allocations: r.allocations.ToResult(),
	}
}

func (r *Results) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

// IDs returns up to amount ids of the snapshot's allocations, in ranking
// order. A negative amount means DefaultIDsAmount.
func (s Snapshot) IDs(amount int) []int64 {
	if amount < 0 {
		amount = DefaultIDsAmount
	}
	ids := make([]int64, 0, amount)
	for _, a := range s.Allocations {
		if len(ids) >= amount {
			break
		}
		ids = append(ids, a.IDs...)
	}
	if len(ids) > amount {
		ids = ids[:amount]
	}
	return ids
}
