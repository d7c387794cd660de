package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goodfilms/picky/internal/index"
	"github.com/goodfilms/picky/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	loads int
	err   error
}

func (f *fakeLoader) Name() string { return "books" }

func (f *fakeLoader) Load() error {
	f.loads++
	return f.err
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate(context.Context) (int64, error) {
	f.calls++
	return 0, nil
}

func event(t *testing.T, name string) []byte {
	t.Helper()
	data, err := json.Marshal(index.CompleteEvent{BuildID: "b1", Index: name, Backend: index.KindDisk})
	require.NoError(t, err)
	return data
}

func TestReloadHandler(t *testing.T) {
	loader := &fakeLoader{}
	inv := &fakeInvalidator{}
	m := metrics.New(prometheus.NewRegistry())
	handle := ReloadHandler(loader, inv, m)
	ctx := context.Background()

	require.NoError(t, handle(ctx, nil, event(t, "books")))
	assert.Equal(t, 1, loader.loads)
	assert.Equal(t, 1, inv.calls)

	require.NoError(t, handle(ctx, nil, event(t, "films")))
	assert.Equal(t, 1, loader.loads)

	assert.Error(t, handle(ctx, nil, []byte("not json")))

	loader.err = errors.New("missing bundle")
	assert.ErrorIs(t, handle(ctx, nil, event(t, "books")), loader.err)
	assert.Equal(t, 1, inv.calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexReloadsTotal.WithLabelValues("reloaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexReloadsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexReloadsTotal.WithLabelValues("failed")))
}
