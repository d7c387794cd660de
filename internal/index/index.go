package index

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goodfilms/picky/internal/scheduler"
	apperrors "github.com/goodfilms/picky/pkg/errors"
	"github.com/goodfilms/picky/pkg/metrics"
	"github.com/hashicorp/go-multierror"
)

type Option func(*Index)

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Index) { i.metrics = m }
}

// Index ties a document source to one bundle per category.
type Index struct {
	name       string
	source     Source
	categories []string
	backend    Backend
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu      sync.RWMutex
	bundles map[string]IndexedBundle
}

// New validates the category list and returns an unloaded Index.
func New(name string, source Source, categories []string, backend Backend, opts ...Option) (*Index, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: index %s has no categories", apperrors.ErrInvalidInput, name)
	}
	seen := make(map[string]struct{}, len(categories))
	for _, category := range categories {
		if category == "" || strings.ContainsAny(category, `/\`) {
			return nil, fmt.Errorf("%w: bad category name %q", apperrors.ErrInvalidInput, category)
		}
		if _, dup := seen[category]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", apperrors.ErrInvalidInput, category)
		}
		seen[category] = struct{}{}
	}
	idx := &Index{
		name:       name,
		source:     source,
		categories: slices.Clone(categories),
		backend:    backend,
		logger:     slog.Default().With("component", "index", "index", name),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

func (i *Index) Name() string { return i.name }

func (i *Index) Categories() []string { return slices.Clone(i.categories) }

// Build indexes every category as its own scheduler task and waits for all
// of them. Each task reads the whole source and dumps one bundle.
func (i *Index) Build(ctx context.Context, sched *scheduler.Scheduler) error {
	if i.source == nil {
		return fmt.Errorf("%w: index %s has no source", apperrors.ErrInvalidInput, i.name)
	}
	start := time.Now()
	for _, category := range i.categories {
		sched.Schedule(ctx, func(ctx context.Context) error {
			return i.buildCategory(ctx, category)
		})
	}
	if err := sched.Finish(); err != nil {
		return fmt.Errorf("building index %s: %w", i.name, err)
	}
	i.logger.Info("index built",
		"categories", len(i.categories),
		"mode", sched.Mode(),
		"duration", time.Since(start),
	)
	return nil
}

func (i *Index) buildCategory(ctx context.Context, category string) error {
	start := time.Now()
	bundle := i.backend.IndexingBundle(category)
	docs := 0
	err := i.source.Each(ctx, func(doc Document) error {
		bundle.Add(doc.ID, Tokenize(doc.Fields[category]))
		docs++
		return nil
	})
	if err != nil {
		return fmt.Errorf("indexing category %s: %w", category, err)
	}
	if err := bundle.Dump(); err != nil {
		return fmt.Errorf("dumping category %s: %w", category, err)
	}
	if i.metrics != nil {
		i.metrics.IndexBuildDuration.WithLabelValues(i.name, category).Observe(time.Since(start).Seconds())
	}
	i.logger.Debug("category indexed", "category", category, "documents", docs)
	return nil
}

// Load reads every category bundle from the backend. The new bundles replace
// the old ones only if all categories load; otherwise the previous bundles
// stay in place and the per-category errors are returned together.
func (i *Index) Load() error {
	loaded := make(map[string]IndexedBundle, len(i.categories))
	var result error
	for _, category := range i.categories {
		bundle := i.backend.IndexedBundle(category)
		if err := bundle.Load(); err != nil {
			result = multierror.Append(result, fmt.Errorf("category %s: %w", category, err))
			continue
		}
		loaded[category] = bundle
	}
	if result != nil {
		return fmt.Errorf("loading index %s: %w", i.name, result)
	}

	i.mu.Lock()
	i.bundles = loaded
	i.mu.Unlock()

	for category, bundle := range loaded {
		if i.metrics != nil {
			i.metrics.IndexedTokens.WithLabelValues(i.name, category).Set(float64(bundle.Tokens()))
		}
	}
	i.logger.Info("index loaded", "backend", i.backend.Kind(), "categories", len(loaded))
	return nil
}

// Loaded reports whether Load has succeeded at least once.
func (i *Index) Loaded() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.bundles != nil
}

// Bundle returns the loaded bundle of category.
func (i *Index) Bundle(category string) (IndexedBundle, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	bundle, ok := i.bundles[category]
	return bundle, ok
}
