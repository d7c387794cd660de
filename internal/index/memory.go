package index

import (
	"slices"
	"sync"
)

// MemoryStore holds dumped bundles in process memory. Bundles from
// concurrent indexing tasks may dump into it at the same time.
type MemoryStore struct {
	mu      sync.RWMutex
	bundles map[string]map[string][]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: make(map[string]map[string][]int64)}
}

func (s *MemoryStore) put(category string, tokens map[string][]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[category] = tokens
}

func (s *MemoryStore) get(category string) (map[string][]int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens, ok := s.bundles[category]
	return tokens, ok
}

// Reset drops every stored bundle.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles = make(map[string]map[string][]int64)
}

type MemoryBackend struct {
	store *MemoryStore
}

func NewMemoryBackend(store *MemoryStore) *MemoryBackend {
	return &MemoryBackend{store: store}
}

func (b *MemoryBackend) Kind() Kind { return KindMemory }

func (b *MemoryBackend) IndexingBundle(category string) IndexingBundle {
	return &memoryIndexing{store: b.store, category: category, postings: make(postings)}
}

func (b *MemoryBackend) IndexedBundle(category string) IndexedBundle {
	return &memoryIndexed{store: b.store, category: category}
}

type memoryIndexing struct {
	store    *MemoryStore
	category string
	postings postings
}

func (m *memoryIndexing) Add(id int64, tokens []string) {
	m.postings.add(id, tokens)
}

func (m *memoryIndexing) Dump() error {
	m.store.put(m.category, m.postings.sorted())
	return nil
}

type memoryIndexed struct {
	store    *MemoryStore
	category string
	tokens   map[string][]int64
}

// Load picks up whatever was last dumped for the category. A category that
// was never dumped loads as empty.
func (m *memoryIndexed) Load() error {
	tokens, ok := m.store.get(m.category)
	if !ok {
		tokens = map[string][]int64{}
	}
	m.tokens = tokens
	return nil
}

func (m *memoryIndexed) IDs(token string) []int64 {
	return m.tokens[token]
}

func (m *memoryIndexed) Tokens() int {
	return len(m.tokens)
}

func sortUnique(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
