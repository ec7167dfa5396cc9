package flusher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFiresPeriodically(t *testing.T) {
	var fires atomic.Int32
	s := New(5*time.Millisecond, func(ctx context.Context) {
		fires.Add(1)
	})
	s.Start(context.Background())
	time.Sleep(40 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, fires.Load(), int32(3))
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := New(time.Millisecond, func(ctx context.Context) {})
	s.Start(context.Background())
	s.Stop()
	assert.NotPanics(t, s.Stop)
}

func TestSchedulerZeroPeriodNeverFires(t *testing.T) {
	var fires atomic.Int32
	s := New(0, func(ctx context.Context) { fires.Add(1) })
	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(0), fires.Load())
}

func TestRetrySucceedsEventually(t *testing.T) {
	var attempts int
	err := Retry(context.Background(), RetryBudget{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	var attempts int
	sentinel := errors.New("persistent")
	err := Retry(context.Background(), RetryBudget{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		func(ctx context.Context) error {
			attempts++
			return sentinel
		}, nil)

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, attempts) // initial attempt + 2 retries
}

func TestRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, RetryBudget{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second},
		func(ctx context.Context) error { return errors.New("always fails") }, nil)

	assert.ErrorIs(t, err, context.Canceled)
}
