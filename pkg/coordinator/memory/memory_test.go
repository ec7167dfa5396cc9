package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogio/dlog/pkg/coordinator"
)

func TestCreateReadDelete(t *testing.T) {
	ctx := context.Background()
	c := New()

	p, err := c.Create(ctx, "/streams/a", []byte("hi"), coordinator.Persistent)
	require.NoError(t, err)
	assert.Equal(t, "/streams/a", p)

	n, err := c.Read(ctx, "/streams/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), n.Data)

	require.NoError(t, c.Delete(ctx, "/streams/a", -1))
	_, err = c.Read(ctx, "/streams/a")
	assert.Error(t, err)
}

func TestEphemeralSequentialOrdering(t *testing.T) {
	ctx := context.Background()
	c := New()
	_, _ = c.Create(ctx, "/locks", nil, coordinator.Persistent)

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := c.Create(ctx, "/locks/lock-", nil, coordinator.EphemeralSequential)
		require.NoError(t, err)
		paths = append(paths, p)
	}
	assert.NotEqual(t, paths[0], paths[1])
	assert.NotEqual(t, paths[1], paths[2])

	children, err := c.Children(ctx, "/locks")
	require.NoError(t, err)
	assert.Len(t, children, 3)
}

func TestWatchFiresOnDelete(t *testing.T) {
	ctx := context.Background()
	c := New()
	_, _ = c.Create(ctx, "/x", nil, coordinator.Persistent)

	fired := make(chan coordinator.WatchEvent, 1)
	require.NoError(t, c.Watch(ctx, "/x", func(ev coordinator.WatchEvent) { fired <- ev }))

	require.NoError(t, c.Delete(ctx, "/x", -1))

	select {
	case ev := <-fired:
		assert.True(t, ev.Deleted)
	case <-time.After(time.Second):
		t.Fatal("watch did not fire")
	}
}

func TestSessionExpiryBroadcasts(t *testing.T) {
	ctx := context.Background()
	c := New()
	_, _ = c.Create(ctx, "/x", nil, coordinator.Persistent)

	fired := make(chan coordinator.WatchEvent, 1)
	require.NoError(t, c.Watch(ctx, "/x", func(ev coordinator.WatchEvent) { fired <- ev }))

	expired := make(chan struct{})
	c.OnSessionExpired(func() { close(expired) })

	c.ExpireSession()

	select {
	case ev := <-fired:
		assert.Equal(t, coordinator.EventSessionExpired, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("watch did not fire on session expiry")
	}

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("session expired callback did not run")
	}
}
