package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogio/dlog/pkg/coordinator"
	"github.com/dlogio/dlog/pkg/coordinator/memory"
)

func TestAcquireReleaseReentrant(t *testing.T) {
	coord := memory.New()
	ctx := context.Background()
	_, err := coord.Create(ctx, "/locks/s1", nil, coordinator.Persistent)
	require.NoError(t, err)

	l := New(coord, "/locks/s1")
	require.NoError(t, l.Acquire(ctx, "writer"))
	assert.True(t, l.Held())

	require.NoError(t, l.Acquire(ctx, "roller"))
	require.NoError(t, l.Release(ctx, "writer"))
	assert.True(t, l.Held(), "second reason still holds")

	require.NoError(t, l.Release(ctx, "roller"))
	assert.False(t, l.Held())
}

func TestSecondContenderWaits(t *testing.T) {
	coord := memory.New()
	ctx := context.Background()
	_, err := coord.Create(ctx, "/locks/s1", nil, coordinator.Persistent)
	require.NoError(t, err)

	a := New(coord, "/locks/s1")
	b := New(coord, "/locks/s1")

	require.NoError(t, a.Acquire(ctx, "a"))

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		_ = b.Acquire(ctx, "b")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("b acquired lock while a still holds it")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, a.Release(ctx, "a"))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("b never acquired after a released")
	}
	wg.Wait()
	assert.True(t, b.Held())
}

func TestSessionExpiryNotifiesDependents(t *testing.T) {
	coord := memory.New()
	ctx := context.Background()
	_, err := coord.Create(ctx, "/locks/s1", nil, coordinator.Persistent)
	require.NoError(t, err)

	l := New(coord, "/locks/s1")
	require.NoError(t, l.Acquire(ctx, "writer"))

	notified := make(chan error, 1)
	l.OnExpire(func(err error) { notified <- err })

	coord.ExpireSession()

	select {
	case err := <-notified:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("dependent was not notified of session expiry")
	}
	assert.False(t, l.Held())
}
