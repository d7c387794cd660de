// Package cache stores prepared search results in Redis, keyed by the
// normalised query and its pagination window.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goodfilms/picky/internal/query"
	"github.com/goodfilms/picky/pkg/metrics"
	"github.com/goodfilms/picky/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "picky:search:"

// Store is the key/value backend; *redis.Client from pkg/redis satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteMatching(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cached search.
type Key struct {
	Query  string
	Amount int
	Offset int
	Unique bool
}

type Option func(*QueryCache)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *QueryCache) { c.metrics = m }
}

func WithBreaker(b *resilience.Breaker) Option {
	return func(c *QueryCache) { c.breaker = b }
}

// QueryCache is safe for concurrent use. Store failures never fail a
// search; they are logged and treated as misses.
type QueryCache struct {
	store   Store
	index   string
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.Breaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store Store, index string, ttl time.Duration, opts ...Option) *QueryCache {
	c := &QueryCache{
		store:   store,
		index:   index,
		ttl:     ttl,
		breaker: resilience.NewBreaker("search-cache", resilience.BreakerConfig{}),
		logger:  slog.Default().With("component", "query-cache", "index", index),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *QueryCache) Get(ctx context.Context, key Key) (*query.Snapshot, bool) {
	snap, ok := c.lookup(ctx, key)
	if ok {
		c.hit()
	} else {
		c.miss()
	}
	return snap, ok
}

// lookup reads key from the store without touching the hit/miss counters.
func (c *QueryCache) lookup(ctx context.Context, key Key) (*query.Snapshot, bool) {
	k := c.buildKey(key)
	var data []byte
	var found bool
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = c.store.Get(ctx, k)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", k, "error", err)
	}
	if err != nil || !found {
		return nil, false
	}
	var snap query.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		return nil, false
	}
	return &snap, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, snap *query.Snapshot) {
	k := c.buildKey(key)
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, k, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached snapshot for key or computes and stores
// it. Concurrent misses on the same key share one computation. The bool is
// true on a cache hit.
//
// The shared computation runs detached from the cancellation of the caller
// that started it, so one client going away does not fail the others. It
// keeps that caller's deadline.
func (c *QueryCache) GetOrCompute(ctx context.Context, key Key, compute func(ctx context.Context) (*query.Snapshot, error)) (*query.Snapshot, bool, error) {
	if snap, ok := c.Get(ctx, key); ok {
		return snap, true, nil
	}
	val, err, _ := c.group.Do(c.buildKey(key), func() (any, error) {
		shared := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			shared, cancel = context.WithDeadline(shared, deadline)
			defer cancel()
		}
		// Another flight may have stored the key since the first lookup.
		if snap, ok := c.lookup(shared, key); ok {
			return snap, nil
		}
		snap, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, key, snap)
		return snap, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*query.Snapshot), false, nil
}

// Invalidate drops every cached result of the index.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeleteMatching(ctx, c.prefix()+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) prefix() string {
	return keyPrefix + c.index + ":"
}

func (c *QueryCache) buildKey(key Key) string {
	raw := fmt.Sprintf("%s|amount=%d|offset=%d|unique=%t",
		NormalizeQuery(key.Query), key.Amount, key.Offset, key.Unique)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", c.prefix(), hash[:16])
}

// NormalizeQuery lower-cases the query and collapses whitespace. Word order
// is kept: it decides which weights apply.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func (c *QueryCache) hit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
