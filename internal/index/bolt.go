package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/goodfilms/picky/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const boltFile = "bundles.db"

// BoltBackend keeps every category as a bucket of one bbolt database.
// The database is opened per dump or load and access is serialized, since
// bbolt holds an exclusive file lock while a writable handle is open.
type BoltBackend struct {
	path string
	mu   sync.Mutex
}

func NewBoltBackend(path string) *BoltBackend {
	return &BoltBackend{path: path}
}

func (b *BoltBackend) Kind() Kind { return KindBolt }

func (b *BoltBackend) IndexingBundle(category string) IndexingBundle {
	return &boltIndexing{backend: b, category: category, postings: make(postings)}
}

func (b *BoltBackend) IndexedBundle(category string) IndexedBundle {
	return &boltIndexed{backend: b, category: category}
}

func (b *BoltBackend) update(fn func(tx *bolt.Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("creating bundle directory: %w", err)
	}
	db, err := bolt.Open(b.path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("opening bundle database %s: %w", b.path, err)
	}
	defer db.Close()
	return db.Update(fn)
}

func (b *BoltBackend) view(fn func(tx *bolt.Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := os.Stat(b.path); err != nil {
		return fmt.Errorf("reading bundle database %s: %w", b.path, err)
	}
	db, err := bolt.Open(b.path, 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("opening bundle database %s: %w", b.path, err)
	}
	defer db.Close()
	return db.View(fn)
}

type boltIndexing struct {
	backend  *BoltBackend
	category string
	postings postings
}

func (bi *boltIndexing) Add(id int64, tokens []string) {
	bi.postings.add(id, tokens)
}

// Dump replaces the category's bucket in a single transaction.
func (bi *boltIndexing) Dump() error {
	tokens := bi.postings.sorted()
	return bi.backend.update(func(tx *bolt.Tx) error {
		name := []byte(bi.category)
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("clearing bucket %s: %w", bi.category, err)
			}
		}
		bucket, err := tx.CreateBucket(name)
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", bi.category, err)
		}
		for token, ids := range tokens {
			if err := bucket.Put([]byte(token), appendIDs(nil, ids)); err != nil {
				return fmt.Errorf("storing token %q: %w", token, err)
			}
		}
		return nil
	})
}

type boltIndexed struct {
	backend  *BoltBackend
	category string
	tokens   map[string][]int64
}

func (bi *boltIndexed) Load() error {
	tokens := make(map[string][]int64)
	err := bi.backend.view(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bi.category))
		if bucket == nil {
			return fmt.Errorf("%w: no bucket for category %s", apperrors.ErrIndexNotLoaded, bi.category)
		}
		return bucket.ForEach(func(k, v []byte) error {
			ids, ok := decodeIDs(v, 0)
			if !ok {
				return fmt.Errorf("%w: token %q in %s", apperrors.ErrCorruptBundle, k, bi.category)
			}
			tokens[string(k)] = ids
			return nil
		})
	})
	if err != nil {
		return err
	}
	bi.tokens = tokens
	return nil
}

func (bi *boltIndexed) IDs(token string) []int64 {
	return bi.tokens[token]
}

func (bi *boltIndexed) Tokens() int {
	return len(bi.tokens)
}
