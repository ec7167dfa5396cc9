package badgerc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogio/dlog/pkg/coordinator"
)

func open(t *testing.T) *Coordinator {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCreateReadDelete(t *testing.T) {
	ctx := context.Background()
	c := open(t)

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
	c := open(t)
	_, err := c.Create(ctx, "/locks", nil, coordinator.Persistent)
	require.NoError(t, err)

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := c.Create(ctx, "/locks/lock-", nil, coordinator.EphemeralSequential)
		require.NoError(t, err)
		paths = append(paths, p)
	}
	assert.NotEqual(t, paths[0], paths[1])

	children, err := c.Children(ctx, "/locks")
	require.NoError(t, err)
	assert.Len(t, children, 3)
}

func TestEphemeralNodesSweptOnClose(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(dir)
	require.NoError(t, err)
	_, err = c.Create(ctx, "/sess", nil, coordinator.Ephemeral)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c2, err := Open(dir)
	require.NoError(t, err)
	defer c2.Close()
	_, err = c2.Read(ctx, "/sess")
	assert.Error(t, err, "ephemeral node must not survive a session close")
}

func TestPersistentNodeSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(dir)
	require.NoError(t, err)
	_, err = c.Create(ctx, "/streams/a", []byte("hi"), coordinator.Persistent)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c2, err := Open(dir)
	require.NoError(t, err)
	defer c2.Close()
	n, err := c2.Read(ctx, "/streams/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), n.Data)
}

func TestWatchFiresOnDelete(t *testing.T) {
	ctx := context.Background()
	c := open(t)
	_, err := c.Create(ctx, "/x", nil, coordinator.Persistent)
	require.NoError(t, err)

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

func TestSetDataVersionMismatch(t *testing.T) {
	ctx := context.Background()
	c := open(t)
	_, err := c.Create(ctx, "/x", []byte("a"), coordinator.Persistent)
	require.NoError(t, err)

	_, err = c.SetData(ctx, "/x", []byte("b"), 5)
	var mismatch *coordinator.ErrVersionMismatch
	assert.ErrorAs(t, err, &mismatch)

	newVersion, err := c.SetData(ctx, "/x", []byte("b"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), newVersion)
}
