package query

import (
	"encoding/json"
	"sort"
)

const (
	// DefaultIDsAmount is the amount IDs collects when asked for
	// DefaultAmount.
	DefaultIDsAmount = 20

	// DefaultAmount asks IDs and Prepare for their default amount. Zero
	// always means no ids.
	DefaultAmount = -1

	// NoEarlyTermination disables the early termination budget of Process
	// and ProcessUnique.
	NoEarlyTermination = -1
)

// Allocations owns the allocations of one query evaluation. Their order is
// insertion order until Sort is called, ranking order afterwards.
//
// Process and ProcessUnique mutate the allocations' materialised ids, so a
// caller runs exactly one of them once per evaluation.
type Allocations struct {
	allocations []*Allocation
	total       int
	totalDone   bool
}

func NewAllocations(allocations ...*Allocation) *Allocations {
	return &Allocations{allocations: allocations}
}

func (as *Allocations) Len() int { return len(as.allocations) }

func (as *Allocations) Empty() bool { return len(as.allocations) == 0 }

func (as *Allocations) At(i int) *Allocation { return as.allocations[i] }

// Each calls fn for every allocation in current order.
func (as *Allocations) Each(fn func(*Allocation)) {
	for _, a := range as.allocations {
		fn(a)
	}
}

func (as *Allocations) CalculateScore(w *Weights) {
	for _, a := range as.allocations {
		a.CalculateScore(w)
	}
}

// Sort orders allocations by descending score. Equal scores keep their
// relative order.
func (as *Allocations) Sort() {
	sort.SliceStable(as.allocations, func(i, j int) bool {
		return as.allocations[i].score > as.allocations[j].score
	})
}

// ReduceTo keeps only the first amount allocations.
func (as *Allocations) ReduceTo(amount int) {
	if amount < 0 {
		amount = 0
	}
	if amount < len(as.allocations) {
		as.allocations = as.allocations[:amount]
	}
}

// Remove strips the given categories from every allocation.
func (as *Allocations) Remove(categories []string) {
	if len(categories) == 0 {
		return
	}
	for _, a := range as.allocations {
		a.Remove(categories)
	}
}

// IDs concatenates the already materialised ids of the allocations until
// amount are collected. It never materialises anything itself. A negative
// amount collects DefaultIDsAmount.
func (as *Allocations) IDs(amount int) []int64 {
	if amount < 0 {
		amount = DefaultIDsAmount
	}
	collected := make([]int64, 0, amount)
	for _, a := range as.allocations {
		if len(collected) >= amount {
			break
		}
		collected = append(collected, a.ids...)
	}
	if len(collected) > amount {
		collected = collected[:amount]
	}
	return collected
}

// Total sums the allocation counts. It is computed once.
//
// Summation stops at the first allocation whose count is unknown and the
// partial sum is returned, so later allocations are never asked.
func (as *Allocations) Total() int {
	if !as.totalDone {
		as.total = as.calculateTotal()
		as.totalDone = true
	}
	return as.total
}

func (as *Allocations) calculateTotal() int {
	total := 0
	for _, a := range as.allocations {
		n, ok := a.Count()
		if !ok {
			return total
		}
		total += n
	}
	return total
}

// Uniq drops allocations whose combination sequence was already seen.
func (as *Allocations) Uniq() {
	seen := make(map[string]struct{}, len(as.allocations))
	kept := as.allocations[:0]
	for _, a := range as.allocations {
		key := a.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, a)
	}
	clear(as.allocations[len(kept):])
	as.allocations = kept
}

// Process materialises amount ids across the allocations, skipping the
// first offset matches. Duplicates across allocations are kept.
//
// Once amount is satisfied, terminateEarly more allocations are visited
// before iteration stops. NoEarlyTermination visits all of them.
func (as *Allocations) Process(amount, offset, terminateEarly int) {
	for _, a := range as.allocations {
		calculated := a.Process(amount, offset)
		if len(calculated) == 0 {
			if offset != 0 {
				n, _ := a.Count()
				offset -= n
			}
		} else {
			amount -= len(calculated)
			offset = 0
		}
		if terminateEarly >= 0 && amount <= 0 {
			if terminateEarly == 0 {
				break
			}
			terminateEarly--
		}
	}
}

// ProcessUnique is Process without ids repeated across allocations. It is
// slower, especially with large offsets.
//
// An allocation whose ids were all removed as duplicates ends up empty and
// is left out of ToResult.
func (as *Allocations) ProcessUnique(amount, offset, terminateEarly int) {
	var unique []int64
	for _, a := range as.allocations {
		calculated := a.ProcessWithIllegals(amount, 0, unique)
		n, _ := a.Count()
		projected := offset - n
		// unique may hold repeats.
		unique = append(unique, calculated...)
		if projected <= 0 {
			a.trim(offset)
		}
		offset = projected
		if len(a.ids) > 0 {
			amount -= len(a.ids)
			offset = 0
		}
		if terminateEarly >= 0 && amount <= 0 {
			if terminateEarly == 0 {
				break
			}
			terminateEarly--
		}
	}
}

// ToResult projects every allocation that holds ids.
func (as *Allocations) ToResult() []AllocationResult {
	out := make([]AllocationResult, 0, len(as.allocations))
	for _, a := range as.allocations {
		if r, ok := a.ToResult(); ok {
			out = append(out, r)
		}
	}
	return out
}

func (as *Allocations) String() string {
	data, err := json.Marshal(as.ToResult())
	if err != nil {
		return "[]"
	}
	return string(data)
}
