package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(time.Minute)
	assert.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 2})
	ctx := context.Background()
	boom := errors.New("boom")

	b.Execute(ctx, func(context.Context) error { return boom })
	b.Execute(ctx, func(context.Context) error { return nil })
	b.Execute(ctx, func(context.Context) error { return boom })
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
}
