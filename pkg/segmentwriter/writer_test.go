package segmentwriter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogio/dlog/pkg/coordinator/memory"
	"github.com/dlogio/dlog/pkg/dlogerr"
	"github.com/dlogio/dlog/pkg/lock"
	"github.com/dlogio/dlog/pkg/record"
	storememory "github.com/dlogio/dlog/pkg/segmentstore/memory"
)

func newTestWriter(t *testing.T, cfg Config) (*Writer, *storememory.Store) {
	t.Helper()
	store := storememory.New()
	handle, err := store.Create(context.Background(), "1")
	require.NoError(t, err)
	w := New(handle, 1, cfg, nil, nil)
	return w, store
}

func TestWriteAndFlushAssignsPositions(t *testing.T) {
	w, _ := newTestWriter(t, Config{})
	ctx := context.Background()

	f1, err := w.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)
	f2, err := w.Write(ctx, record.Record{TxID: 2, Payload: []byte("b")})
	require.NoError(t, err)

	_, err = w.Flush(ctx)
	require.NoError(t, err)

	p1, err := f1.Wait(ctx)
	require.NoError(t, err)
	p2, err := f2.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), p1.SegmentSeq)
	assert.Equal(t, int64(0), p1.SlotID)
	assert.Equal(t, int64(1), p2.SlotID)
	assert.Equal(t, p1.EntryID, p2.EntryID)
}

func TestWriteRejectsOverLimitRecord(t *testing.T) {
	w, _ := newTestWriter(t, Config{MaxRecordSize: 4})
	_, err := w.Write(context.Background(), record.Record{TxID: 1, Payload: []byte("too long")})
	require.Error(t, err)
	assert.ErrorIs(t, err, dlogerr.ErrOverLimit)
}

func TestWriteRejectsInvalidTxID(t *testing.T) {
	w, _ := newTestWriter(t, Config{})
	_, err := w.Write(context.Background(), record.Record{TxID: -1, Payload: []byte("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, dlogerr.ErrInvalidTxID)

	_, err = w.Write(context.Background(), record.Record{TxID: record.MaxTxID, Payload: []byte("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, dlogerr.ErrInvalidTxID)
}

func TestMarkEndOfStreamRejectsFurtherWrites(t *testing.T) {
	w, _ := newTestWriter(t, Config{})
	ctx := context.Background()

	require.NoError(t, w.MarkEndOfStream(ctx))

	_, err := w.Write(ctx, record.Record{TxID: 1, Payload: []byte("late")})
	require.Error(t, err)
	assert.ErrorIs(t, err, dlogerr.ErrEndOfStream)
}

func TestWriteBulkPacksIntoOneEntry(t *testing.T) {
	w, _ := newTestWriter(t, Config{})
	ctx := context.Background()

	recs := []record.Record{
		{TxID: 1, Payload: []byte("a")},
		{TxID: 2, Payload: []byte("b")},
		{TxID: 3, Payload: []byte("c")},
	}
	futures, err := w.WriteBulk(ctx, recs)
	require.NoError(t, err)
	require.Len(t, futures, 3)

	positions := make([]int64, 3)
	var entryID int64
	for i, f := range futures {
		p, err := f.Wait(ctx)
		require.NoError(t, err)
		positions[i] = p.SlotID
		entryID = p.EntryID
	}
	assert.Equal(t, []int64{0, 1, 2}, positions)
	_ = entryID
}

func TestTransmitErrorFailsPendingAndStickyErrors(t *testing.T) {
	w, store := newTestWriter(t, Config{})
	ctx := context.Background()

	f, err := w.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "1"))

	_, err = w.Flush(ctx)
	require.Error(t, err)

	_, ferr := f.Wait(ctx)
	require.Error(t, ferr)

	_, err = w.Write(ctx, record.Record{TxID: 2, Payload: []byte("b")})
	require.Error(t, err)
}

func TestAbortCancelsPendingPromises(t *testing.T) {
	w, _ := newTestWriter(t, Config{})
	ctx := context.Background()

	f, err := w.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)

	require.NoError(t, w.Abort(ctx))

	_, ferr := f.Wait(ctx)
	assert.ErrorIs(t, ferr, dlogerr.ErrCancelled)

	_, err = w.Write(ctx, record.Record{TxID: 2, Payload: []byte("b")})
	assert.ErrorIs(t, err, dlogerr.ErrCancelled)
}

func TestFencingViaLockExpiryStopsWriter(t *testing.T) {
	coord := memory.New()
	streamLock := lock.New(coord, "/locks/streams/test")
	require.NoError(t, streamLock.Acquire(context.Background(), LockReason))

	store := storememory.New()
	handle, err := store.Create(context.Background(), "1")
	require.NoError(t, err)
	w := New(handle, 1, Config{}, streamLock, nil)

	ctx := context.Background()
	f, err := w.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)

	coord.ExpireSession()

	_, ferr := f.Wait(ctx)
	require.Error(t, ferr)
	assert.ErrorIs(t, ferr, dlogerr.ErrFencing)

	_, err = w.Write(ctx, record.Record{TxID: 2, Payload: []byte("b")})
	require.Error(t, err)
}

func TestPeriodicFlushAdvancesControlRecord(t *testing.T) {
	w, _ := newTestWriter(t, Config{PeriodicFlush: 10 * time.Millisecond})
	ctx := context.Background()
	w.Start(ctx)
	defer w.Close(ctx, false)

	_, err := w.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)

	deadline := time.After(200 * time.Millisecond)
	for w.LastAcknowledgedTxID() < 1 {
		select {
		case <-deadline:
			t.Fatal("periodic flush never acknowledged the buffered record")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The data went out as entry 0; a later tick with nothing buffered
	// sends the control record as entry 1.
	for w.LastAckedEntryID() < 1 {
		select {
		case <-deadline:
			t.Fatal("periodic flush never sent the control record")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCloseReleasesLockWhenFinalizing(t *testing.T) {
	coord := memory.New()
	streamLock := lock.New(coord, "/locks/streams/test")
	require.NoError(t, streamLock.Acquire(context.Background(), LockReason))

	store := storememory.New()
	handle, err := store.Create(context.Background(), "1")
	require.NoError(t, err)
	w := New(handle, 1, Config{}, streamLock, nil)

	require.NoError(t, w.Close(context.Background(), true))
	assert.False(t, streamLock.Held())
}
