package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "disk", cfg.Index.Backend)
	assert.Equal(t, DefaultSchedulerFactor, cfg.Scheduler.Factor)
	assert.Equal(t, -1, cfg.Search.TerminateEarly)
	assert.Equal(t, 60*time.Second, cfg.Redis.CacheTTL)
}

func TestLoadYAMLWithWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
index:
  name: books
  backend: memory
  categories: [title, author, isbn]
scheduler:
  parallel: false
  factor: 0
search:
  maxAllocations: 10
  ignoredCategories: [isbn]
  weights:
    - categories: [title, author]
      weight: 6
    - categories: [author, title]
      weight: 4.5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "books", cfg.Index.Name)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, []string{"title", "author", "isbn"}, cfg.Index.Categories)
	assert.False(t, cfg.Scheduler.Parallel)
	assert.Equal(t, DefaultSchedulerFactor, cfg.Scheduler.Factor)
	assert.Equal(t, 10, cfg.Search.MaxAllocations)
	assert.Equal(t, 20, cfg.Search.DefaultAmount)
	assert.Equal(t, []string{"isbn"}, cfg.Search.IgnoredCategories)
	require.Len(t, cfg.Search.Weights, 2)
	assert.Equal(t, WeightEntry{Categories: []string{"author", "title"}, Weight: 4.5}, cfg.Search.Weights[1])
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PK_SCHEDULER_PARALLEL", "false")
	t.Setenv("PK_SCHEDULER_FACTOR", "6")
	t.Setenv("PK_INDEX_BACKEND", "memory")
	t.Setenv("PK_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Scheduler.Parallel)
	assert.Equal(t, 6, cfg.Scheduler.Factor)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
