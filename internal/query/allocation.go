package query

// Allocation is the match set for one combination sequence. Its ids are
// filled by Process or ProcessWithIllegals for the requested window only.
type Allocation struct {
	combinations Combinations
	matches      Matches
	derived      bool
	score        float64
	ids          []int64
}

// NewAllocation wraps matches supplied by a backend.
func NewAllocation(combinations Combinations, matches Matches) *Allocation {
	return &Allocation{
		combinations: combinations,
		matches:      matches,
		ids:          []int64{},
	}
}

// NewIntersectionAllocation derives its matches from the intersection of
// the combinations' id lists. Removing categories re-derives them.
func NewIntersectionAllocation(combinations Combinations) *Allocation {
	a := NewAllocation(combinations, NewIntersectionMatches(combinations))
	a.derived = true
	return a
}

// AllocationResult is the serialised form of an allocation that holds ids.
type AllocationResult struct {
	Combinations []CombinationResult `json:"combinations"`
	Score        float64             `json:"score"`
	Count        int                 `json:"count"`
	IDs          []int64             `json:"ids"`
}

func (a *Allocation) CalculateScore(w *Weights) {
	a.score = w.WeightFor(a.combinations.CategoryNames())
}

func (a *Allocation) Score() float64 { return a.score }

func (a *Allocation) Combinations() Combinations { return a.combinations }

// Key identifies the allocation by its combination sequence.
func (a *Allocation) Key() string { return a.combinations.Key() }

// Count is the total number of matches; ok is false when unknown.
func (a *Allocation) Count() (n int, ok bool) {
	return a.matches.Count()
}

// IDs returns the ids materialised so far.
func (a *Allocation) IDs() []int64 { return a.ids }

// Process materialises up to amount ids starting at offset within this
// allocation's own match set. The count is always resolved, even when no ids
// are wanted, so that Total can use it.
func (a *Allocation) Process(amount, offset int) []int64 {
	n, known := a.matches.Count()
	if amount <= 0 || offset < 0 || (known && offset >= n) {
		a.ids = []int64{}
		return a.ids
	}
	ids := a.matches.Materialize(amount, offset)
	if len(ids) > amount {
		ids = ids[:amount]
	}
	a.ids = ids
	return a.ids
}

// ProcessWithIllegals is Process that skips every id in illegal. The offset
// counts legal ids only.
func (a *Allocation) ProcessWithIllegals(amount, offset int, illegal []int64) []int64 {
	a.ids = []int64{}
	if amount <= 0 {
		return a.ids
	}
	excluded := make(map[int64]struct{}, len(illegal))
	for _, id := range illegal {
		excluded[id] = struct{}{}
	}
	total, known := a.matches.Count()
	chunk := max(amount+offset+len(excluded), 1)
	skip := max(offset, 0)
	pos := 0
	for len(a.ids) < amount {
		if known && pos >= total {
			break
		}
		batch := a.matches.Materialize(chunk, pos)
		if len(batch) == 0 {
			break
		}
		pos += len(batch)
		for _, id := range batch {
			if _, bad := excluded[id]; bad {
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			a.ids = append(a.ids, id)
			if len(a.ids) == amount {
				break
			}
		}
	}
	return a.ids
}

// Remove drops the combinations in the given categories.
func (a *Allocation) Remove(categories []string) {
	if len(categories) == 0 {
		return
	}
	a.combinations = a.combinations.Remove(categories)
	if a.derived {
		a.matches = NewIntersectionMatches(a.combinations)
	}
}

// trim removes the first n materialised ids.
func (a *Allocation) trim(n int) {
	if n <= 0 {
		return
	}
	if n >= len(a.ids) {
		a.ids = a.ids[:0]
		return
	}
	a.ids = a.ids[n:]
}

// ToResult projects the allocation; ok is false when it holds no ids.
func (a *Allocation) ToResult() (AllocationResult, bool) {
	if len(a.ids) == 0 {
		return AllocationResult{}, false
	}
	n, _ := a.Count()
	return AllocationResult{
		Combinations: a.combinations.ToResult(),
		Score:        a.score,
		Count:        n,
		IDs:          a.ids,
	}, true
}
