package search

import (
	"context"
	"net/http"
	"testing"

	"github.com/goodfilms/picky/internal/index"
	"github.com/goodfilms/picky/internal/query"
	"github.com/goodfilms/picky/internal/scheduler"
	"github.com/goodfilms/picky/pkg/config"
	apperrors "github.com/goodfilms/picky/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var books = index.MemorySource{
	{ID: 1, Fields: map[string]string{"title": "Alan Turing", "author": "Andrew Hodges"}},
	{ID: 2, Fields: map[string]string{"title": "Turing's Cathedral", "author": "George Dyson"}},
	{ID: 3, Fields: map[string]string{"title": "Hodges", "author": "Alan Garner"}},
}

func loadedIndex(t *testing.T, src index.Source) *index.Index {
	t.Helper()
	idx, err := index.New("books", src, []string{"title", "author"}, index.NewMemoryBackend(index.NewMemoryStore()))
	require.NoError(t, err)
	sched := scheduler.New(config.SchedulerConfig{Parallel: false})
	require.NoError(t, idx.Build(context.Background(), sched))
	require.NoError(t, idx.Load())
	return idx
}

func searchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultAmount:  20,
		MaxAmount:      100,
		MaxAllocations: 50,
		TerminateEarly: query.NoEarlyTermination,
		Weights: []config.WeightEntry{
			{Categories: []string{"title", "title"}, Weight: 2},
			{Categories: []string{"author", "title"}, Weight: 5},
			{Categories: []string{"title"}, Weight: 3},
			{Categories: []string{"author"}, Weight: 1},
		},
	}
}

func TestSearchRanksByWeight(t *testing.T) {
	s := New(loadedIndex(t, books), searchConfig())

	results, err := s.Search(context.Background(), Request{Query: "alan turing"})
	require.NoError(t, err)

	allocs := results.Allocations()
	require.Equal(t, 2, allocs.Len())
	assert.Equal(t, []string{"author", "title"}, allocs.At(0).Combinations().CategoryNames())
	assert.Equal(t, 5.0, allocs.At(0).Score())
	assert.Equal(t, []string{"title", "title"}, allocs.At(1).Combinations().CategoryNames())
	assert.Equal(t, 1, results.Total())
	assert.Equal(t, []int64{1}, results.IDs(20))
}

func TestSearchSingleTokenAcrossCategories(t *testing.T) {
	s := New(loadedIndex(t, books), searchConfig())

	results, err := s.Search(context.Background(), Request{Query: "Alan"})
	require.NoError(t, err)
	assert.Equal(t, 2, results.Total())
	assert.Equal(t, []int64{1, 3}, results.IDs(20))

	results, err = s.Search(context.Background(), Request{Query: "alan", Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, results.IDs(20))
}

func TestSearchCategoryQualifier(t *testing.T) {
	s := New(loadedIndex(t, books), searchConfig())

	results, err := s.Search(context.Background(), Request{Query: "author:alan"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, results.IDs(20))

	results, err = s.Search(context.Background(), Request{Query: "title:hodges"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, results.IDs(20))
}

func TestSearchNoMatch(t *testing.T) {
	s := New(loadedIndex(t, books), searchConfig())

	for _, q := range []string{"zebra", "alan zebra", "", "the"} {
		results, err := s.Search(context.Background(), Request{Query: q})
		require.NoError(t, err, q)
		assert.Zero(t, results.Total(), q)
		assert.Empty(t, results.IDs(20), q)
	}
}

func TestSearchIgnoredCategories(t *testing.T) {
	cfg := searchConfig()
	cfg.IgnoredCategories = []string{"author"}
	s := New(loadedIndex(t, books), cfg)

	results, err := s.Search(context.Background(), Request{Query: "alan"})
	require.NoError(t, err)
	assert.Equal(t, 1, results.Total())
	assert.Equal(t, []int64{1}, results.IDs(20))
}

func TestSearchUnique(t *testing.T) {
	src := index.MemorySource{
		{ID: 1, Fields: map[string]string{"title": "Alan", "author": "Alan Kay"}},
		{ID: 2, Fields: map[string]string{"title": "Other", "author": "Alan Kay"}},
	}
	s := New(loadedIndex(t, src), searchConfig())

	results, err := s.Search(context.Background(), Request{Query: "alan"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 2}, results.IDs(20))

	results, err = s.Search(context.Background(), Request{Query: "alan", Unique: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, results.IDs(20))
}

func TestSearchAmountLimits(t *testing.T) {
	cfg := searchConfig()
	cfg.MaxAmount = 1
	s := New(loadedIndex(t, books), cfg)

	results, err := s.Search(context.Background(), Request{Query: "alan", Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, results.IDs(20))

	_, err = s.Search(context.Background(), Request{Query: "alan", Amount: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
}

func TestSearchIndexNotLoaded(t *testing.T) {
	idx, err := index.New("books", books, []string{"title"}, index.NewMemoryBackend(index.NewMemoryStore()))
	require.NoError(t, err)

	_, err = New(idx, searchConfig()).Search(context.Background(), Request{Query: "alan"})
	assert.ErrorIs(t, err, apperrors.ErrIndexNotLoaded)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
}

func TestSearchCancelledContext(t *testing.T) {
	s := New(loadedIndex(t, books), searchConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx, Request{Query: "alan"})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestNormalizeDefaultsAmount(t *testing.T) {
	cfg := searchConfig()
	cfg.DefaultAmount = 0
	s := New(loadedIndex(t, books), cfg)

	req, err := s.Normalize(Request{Query: "alan"})
	require.NoError(t, err)
	assert.Equal(t, query.MaxResults, req.Amount)
}
