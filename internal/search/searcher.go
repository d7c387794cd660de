// Package search turns a raw query into ranked, paginated results over a
// loaded index.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/goodfilms/picky/internal/index"
	"github.com/goodfilms/picky/internal/query"
	"github.com/goodfilms/picky/pkg/config"
	apperrors "github.com/goodfilms/picky/pkg/errors"
	"github.com/goodfilms/picky/pkg/metrics"
)

// maxProduct caps the category assignments generated for one query.
const maxProduct = 1 << 14

// Request is one search. Zero Amount means the configured default.
type Request struct {
	Query  string
	Amount int
	Offset int
	Unique bool
}

// Index is what a Searcher reads; *index.Index satisfies it.
type Index interface {
	Loaded() bool
	Categories() []string
	Bundle(category string) (index.IndexedBundle, bool)
}

type Option func(*Searcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) { s.metrics = m }
}

type Searcher struct {
	index   Index
	cfg     config.SearchConfig
	weights *query.Weights
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(idx Index, cfg config.SearchConfig, opts ...Option) *Searcher {
	entries := make([]query.WeightEntry, 0, len(cfg.Weights))
	for _, w := range cfg.Weights {
		entries = append(entries, query.WeightEntry{Categories: w.Categories, Weight: w.Weight})
	}
	s := &Searcher{
		index:   idx,
		cfg:     cfg,
		weights: query.NewWeights(entries...),
		logger:  slog.Default().With("component", "searcher"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Searcher) Weights() *query.Weights { return s.weights }

// Normalize applies defaults and limits to req.
func (s *Searcher) Normalize(req Request) (Request, error) {
	if req.Amount < 0 || req.Offset < 0 {
		return req, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"amount and offset must not be negative (amount=%d offset=%d)", req.Amount, req.Offset)
	}
	if req.Amount == 0 {
		req.Amount = s.cfg.DefaultAmount
	}
	if req.Amount <= 0 {
		req.Amount = query.MaxResults
	}
	if s.cfg.MaxAmount > 0 && req.Amount > s.cfg.MaxAmount {
		req.Amount = s.cfg.MaxAmount
	}
	return req, nil
}

// Search scores every category assignment of the query tokens, keeps the
// best MaxAllocations and materialises the requested window.
func (s *Searcher) Search(ctx context.Context, req Request) (*query.Results, error) {
	start := time.Now()
	req, err := s.Normalize(req)
	if err != nil {
		return nil, err
	}
	if !s.index.Loaded() {
		return nil, apperrors.ErrIndexNotLoaded
	}

	allocs, err := s.allocations(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	allocs.CalculateScore(s.weights)
	allocs.Sort()
	if s.cfg.MaxAllocations > 0 {
		allocs.ReduceTo(s.cfg.MaxAllocations)
	}
	if len(s.cfg.IgnoredCategories) > 0 {
		allocs.Remove(s.cfg.IgnoredCategories)
	}
	allocs.Uniq()

	results := query.NewResults(req.Query, req.Offset, allocs)
	results.Prepare(req.Amount, req.Unique || s.cfg.Unique, s.cfg.TerminateEarly)
	results.Duration = time.Since(start)

	if s.metrics != nil {
		s.metrics.AllocationsConsidered.Observe(float64(allocs.Len()))
		s.metrics.SearchTotalMatches.Observe(float64(results.Total()))
	}
	s.logger.Debug("search finished",
		"query", req.Query,
		"allocations", allocs.Len(),
		"total", results.Total(),
		"duration", results.Duration,
	)
	return results, nil
}

// term is one query token and the categories it may be matched in.
type term struct {
	token      string
	categories []string
}

// parseTerms tokenizes q. A word written as "category:text" only matches
// in that category.
func (s *Searcher) parseTerms(q string) []term {
	all := s.index.Categories()
	var terms []term
	for _, word := range strings.Fields(q) {
		categories := all
		if i := strings.IndexByte(word, ':'); i > 0 {
			if qualifier := strings.ToLower(word[:i]); slices.Contains(all, qualifier) {
				categories = []string{qualifier}
				word = word[i+1:]
			}
		}
		for _, token := range index.Tokenize(word) {
			terms = append(terms, term{token: token, categories: categories})
		}
	}
	return terms
}

// allocations builds one allocation per way of assigning each term to a
// category it occurs in. A term that occurs nowhere leaves no allocation.
func (s *Searcher) allocations(ctx context.Context, q string) (*query.Allocations, error) {
	terms := s.parseTerms(q)
	if len(terms) == 0 {
		return query.NewAllocations(), nil
	}

	options := make([][]query.Combination, 0, len(terms))
	for _, t := range terms {
		var found []query.Combination
		for _, category := range t.categories {
			bundle, ok := s.index.Bundle(category)
			if !ok {
				continue
			}
			if ids := bundle.IDs(t.token); len(ids) > 0 {
				found = append(found, query.NewCombination(category, t.token, ids))
			}
		}
		if len(found) == 0 {
			return query.NewAllocations(), nil
		}
		options = append(options, found)
	}

	var list []*query.Allocation
	current := make(query.Combinations, len(options))
	var expand func(depth int) error
	expand = func(depth int) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		if len(list) >= maxProduct {
			return nil
		}
		if depth == len(options) {
			list = append(list, query.NewIntersectionAllocation(slices.Clone(current)))
			return nil
		}
		for _, c := range options[depth] {
			current[depth] = c
			if err := expand(depth + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := expand(0); err != nil {
		return nil, err
	}
	return query.NewAllocations(list...), nil
}
