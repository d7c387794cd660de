// Package index builds and loads per-category token bundles. A bundle maps
// each token of one category to the sorted ids of the documents containing
// it. Bundles are written by IndexingBundles during Build and read back by
// IndexedBundles during Load; the Backend decides where they live.
package index

import (
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/goodfilms/picky/pkg/errors"
)

// Kind selects a storage backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindDisk   Kind = "disk"
	KindBolt   Kind = "bolt"
)

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindMemory:
		return KindMemory, nil
	case KindDisk:
		return KindDisk, nil
	case KindBolt:
		return KindBolt, nil
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownBackend, s)
}

// IndexingBundle collects the tokens of one category while indexing.
// It is used by a single task and needs no locking.
type IndexingBundle interface {
	Add(id int64, tokens []string)
	Dump() error
}

// IndexedBundle answers token lookups for one category after Load.
type IndexedBundle interface {
	Load() error
	IDs(token string) []int64
	Tokens() int
}

// Backend hands out bundles for a category. Bundles dumped by a Backend's
// IndexingBundle are visible to IndexedBundles of the same Backend.
type Backend interface {
	Kind() Kind
	IndexingBundle(category string) IndexingBundle
	IndexedBundle(category string) IndexedBundle
}

// NewBackend returns the backend for kind. dataDir is ignored by KindMemory.
func NewBackend(kind Kind, dataDir string) (Backend, error) {
	if kind != KindMemory && dataDir == "" {
		return nil, fmt.Errorf("%w: %s backend needs a data directory", apperrors.ErrInvalidInput, kind)
	}
	switch kind {
	case KindMemory:
		return NewMemoryBackend(NewMemoryStore()), nil
	case KindDisk:
		return NewDiskBackend(dataDir), nil
	case KindBolt:
		return NewBoltBackend(filepath.Join(dataDir, boltFile)), nil
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownBackend, kind)
}

// postings accumulates ids per token for an IndexingBundle.
type postings map[string][]int64

func (p postings) add(id int64, tokens []string) {
	for _, token := range tokens {
		p[token] = append(p[token], id)
	}
}

// sorted returns every token's ids ascending without repeats.
func (p postings) sorted() map[string][]int64 {
	out := make(map[string][]int64, len(p))
	for token, ids := range p {
		out[token] = sortUnique(ids)
	}
	return out
}
