package logwriter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogio/dlog/pkg/coordinator/memory"
	"github.com/dlogio/dlog/pkg/dlogerr"
	"github.com/dlogio/dlog/pkg/lock"
	"github.com/dlogio/dlog/pkg/position"
	"github.com/dlogio/dlog/pkg/record"
	"github.com/dlogio/dlog/pkg/segmentmeta"
	storememory "github.com/dlogio/dlog/pkg/segmentstore/memory"
)

type testHarness struct {
	lw    *LogWriter
	store *storememory.Store
	meta  *segmentmeta.Store
	coord *memory.Coordinator
	lock  *lock.DistributedLock
}

func newTestHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()
	coord := memory.New()
	meta := segmentmeta.New(coord, "/dlog/streams/test")
	store := storememory.New()
	streamLock := lock.New(coord, "/locks/streams/test")

	lw := New("test", cfg, meta, store, streamLock, nil, nil)
	require.NoError(t, lw.Start(context.Background()))

	return &testHarness{lw: lw, store: store, meta: meta, coord: coord, lock: streamLock}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never became true")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestWriteBulkAssignsPositionsInOneSegment(t *testing.T) {
	h := newTestHarness(t, Config{})
	ctx := context.Background()

	recs := []record.Record{
		{TxID: 1, Payload: []byte("a")},
		{TxID: 2, Payload: []byte("b")},
		{TxID: 3, Payload: []byte("c")},
	}
	futures, err := h.lw.WriteBulk(ctx, recs)
	require.NoError(t, err)
	require.Len(t, futures, 3)

	var entryID int64
	for i, f := range futures {
		p, err := f.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), p.SegmentSeq)
		assert.Equal(t, int64(i), p.SlotID)
		entryID = p.EntryID
	}
	_ = entryID
	assert.Equal(t, int64(3), h.lw.LastTxID())
}

func TestRecordCountPolicyTriggersRoll(t *testing.T) {
	cfg := Config{
		Policy: Policy{Enabled: true, MaxRecordCount: 2},
	}
	cfg.Writer.PeriodicFlush = 5 * time.Millisecond
	h := newTestHarness(t, cfg)
	ctx := context.Background()

	f1, err := h.lw.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)
	f2, err := h.lw.Write(ctx, record.Record{TxID: 2, Payload: []byte("b")})
	require.NoError(t, err)
	f3, err := h.lw.Write(ctx, record.Record{TxID: 3, Payload: []byte("c")})
	require.NoError(t, err)

	p1, err := f1.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p1.SegmentSeq)

	p2, err := f2.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p2.SegmentSeq)

	p3, err := f3.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p3.SegmentSeq)

	waitFor(t, time.Second, func() bool { return h.lw.CurrentSegmentSeq() == 2 })

	meta1, err := h.meta.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, segmentmeta.Complete, meta1.State)
	assert.Equal(t, int64(2), meta1.LastTxID)
}

func TestForceRollAdvancesSegment(t *testing.T) {
	cfg := Config{}
	cfg.Writer.PeriodicFlush = 5 * time.Millisecond
	h := newTestHarness(t, cfg)
	ctx := context.Background()

	f, err := h.lw.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)
	_, err = f.Wait(ctx)
	require.NoError(t, err)

	require.NoError(t, h.lw.ForceRoll(ctx))
	assert.Equal(t, int64(2), h.lw.CurrentSegmentSeq())

	meta1, err := h.meta.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, segmentmeta.Complete, meta1.State)
}

func TestMarkEndOfStreamRejectsFurtherWrites(t *testing.T) {
	h := newTestHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.lw.MarkEndOfStream(ctx))

	_, err := h.lw.Write(ctx, record.Record{TxID: 1, Payload: []byte("late")})
	require.Error(t, err)
	assert.ErrorIs(t, err, dlogerr.ErrEndOfStream)
}

func TestTruncateSetsLowWaterMarkAndDeletesOldSegments(t *testing.T) {
	cfg := Config{}
	cfg.Writer.PeriodicFlush = 5 * time.Millisecond
	h := newTestHarness(t, cfg)
	ctx := context.Background()

	f, err := h.lw.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)
	_, err = f.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, h.lw.ForceRoll(ctx))

	truncateAt := position.Position{SegmentSeq: 2, EntryID: 0, SlotID: -1}
	require.NoError(t, h.lw.Truncate(ctx, truncateAt))

	mark, err := h.meta.TruncationMark(ctx)
	require.NoError(t, err)
	assert.Equal(t, truncateAt, mark)

	// Segment 1 lies wholly below the mark, so its object was deleted:
	// reopening its id yields a fresh, empty segment.
	reopened, err := h.store.Open(ctx, "1", false)
	require.NoError(t, err)
	lac, err := reopened.ReadLastConfirmed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), lac)
}

func TestCloseAndCompleteReleasesLockAndCompletesSegment(t *testing.T) {
	h := newTestHarness(t, Config{})
	ctx := context.Background()

	f, err := h.lw.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)

	require.NoError(t, h.lw.CloseAndComplete(ctx))

	_, err = f.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, h.lock.Held())

	meta1, err := h.meta.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, segmentmeta.Complete, meta1.State)
	assert.Equal(t, int64(1), meta1.LastTxID)
}

func TestFencingViaLockExpiryFailsLogWriter(t *testing.T) {
	h := newTestHarness(t, Config{})
	ctx := context.Background()

	f, err := h.lw.Write(ctx, record.Record{TxID: 1, Payload: []byte("a")})
	require.NoError(t, err)

	h.coord.ExpireSession()

	_, ferr := f.Wait(ctx)
	require.Error(t, ferr)

	waitFor(t, time.Second, func() bool {
		errored, _ := h.lw.Errored()
		return errored
	})

	_, err = h.lw.Write(ctx, record.Record{TxID: 2, Payload: []byte("b")})
	require.Error(t, err)
}
