package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogio/dlog/pkg/segmentstore"
)

func TestAppendAndReadBack(t *testing.T) {
	ctx := context.Background()
	s := New()

	h, err := s.Create(ctx, "1")
	require.NoError(t, err)

	id0, err := h.Append(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), id0)

	id1, err := h.Append(ctx, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)

	lac, err := h.ReadLastConfirmed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lac)

	entries, err := h.ReadEntries(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, entries)
}

func TestReadEntriesPastLastConfirmed(t *testing.T) {
	ctx := context.Background()
	s := New()
	h, err := s.Create(ctx, "1")
	require.NoError(t, err)
	_, err = h.Append(ctx, []byte("a"))
	require.NoError(t, err)

	_, err = h.ReadEntries(ctx, 0, 1)
	assert.ErrorIs(t, err, segmentstore.ErrNoSuchEntry)
}

func TestOpenForWriteFencesPriorHandle(t *testing.T) {
	ctx := context.Background()
	s := New()
	h1, err := s.Create(ctx, "1")
	require.NoError(t, err)

	h2, err := s.Open(ctx, "1", true)
	require.NoError(t, err)

	_, err = h1.Append(ctx, []byte("stale"))
	assert.ErrorIs(t, err, segmentstore.ErrFenced)

	_, err = h2.Append(ctx, []byte("fresh"))
	require.NoError(t, err)
}

func TestOpenReadOnlyNeverFences(t *testing.T) {
	ctx := context.Background()
	s := New()
	h1, err := s.Create(ctx, "1")
	require.NoError(t, err)
	_, err = h1.Append(ctx, []byte("a"))
	require.NoError(t, err)

	reader, err := s.Open(ctx, "1", false)
	require.NoError(t, err)

	_, err = h1.Append(ctx, []byte("b"))
	require.NoError(t, err, "read-only open must not fence the writer")

	lac, err := reader.ReadLastConfirmed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lac)
}

func TestDeleteRemovesSegment(t *testing.T) {
	ctx := context.Background()
	s := New()
	h, err := s.Create(ctx, "1")
	require.NoError(t, err)
	_, err = h.Append(ctx, []byte("a"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "1"))

	h2, err := s.Create(ctx, "1")
	require.NoError(t, err)
	lac, err := h2.ReadLastConfirmed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), lac, "recreated segment starts fresh")
}

var _ segmentstore.Handle = (*handle)(nil)
