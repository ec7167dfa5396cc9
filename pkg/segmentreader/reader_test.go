package segmentreader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogio/dlog/pkg/coordinator/memory"
	"github.com/dlogio/dlog/pkg/dlogerr"
	"github.com/dlogio/dlog/pkg/position"
	"github.com/dlogio/dlog/pkg/record"
	"github.com/dlogio/dlog/pkg/segmentmeta"
	storememory "github.com/dlogio/dlog/pkg/segmentstore/memory"
)

type testHarness struct {
	meta  *segmentmeta.Store
	store *storememory.Store
	coord *memory.Coordinator
}

func newTestHarness() *testHarness {
	coord := memory.New()
	return &testHarness{
		meta:  segmentmeta.New(coord, "/dlog/streams/test"),
		store: storememory.New(),
		coord: coord,
	}
}

// appendEntry packs recs into one transmission unit and appends it to
// segment segSeq's handle, returning the assigned entry id.
func appendEntry(t *testing.T, h *testHarness, segSeq int64, recs ...record.Record) int64 {
	t.Helper()
	handle, err := h.store.Open(context.Background(), segIDString(segSeq), true)
	require.NoError(t, err)
	defer handle.Close(context.Background())

	var buf []byte
	for _, r := range recs {
		buf = record.Append(buf, r)
	}
	entryID, err := handle.Append(context.Background(), buf)
	require.NoError(t, err)
	return entryID
}

func segIDString(segSeq int64) string {
	switch segSeq {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		panic("segIDString: add a case for this segment sequence in tests")
	}
}

func createSegment(t *testing.T, h *testHarness, segSeq int64) {
	t.Helper()
	_, err := h.store.Create(context.Background(), segIDString(segSeq))
	require.NoError(t, err)
	require.NoError(t, h.meta.CreateInProgress(context.Background(), segSeq, 0, 0))
}

func completeSegment(t *testing.T, h *testHarness, segSeq, lastEntrySeq, lastTxID, recordCount int64) {
	t.Helper()
	require.NoError(t, h.meta.Complete(context.Background(), segSeq, lastEntrySeq, lastTxID, recordCount))
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

func TestReadNextAcrossCompleteSegments(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	createSegment(t, h, 1)
	appendEntry(t, h, 1, record.Record{TxID: 1, Payload: []byte("a")}, record.Record{TxID: 2, Payload: []byte("b")})
	completeSegment(t, h, 1, 0, 2, 2)

	createSegment(t, h, 2)
	appendEntry(t, h, 2, record.Record{TxID: 3, Payload: []byte("c")})
	completeSegment(t, h, 2, 0, 3, 1)

	r := New("test", Config{}, h.meta, h.store, position.InitialLowerBound, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Close(ctx)

	var got []string
	for i := 0; i < 3; i++ {
		fut, err := r.ReadNext(ctx)
		require.NoError(t, err)
		d, err := fut.WaitOne(ctx)
		require.NoError(t, err)
		got = append(got, string(d.Record.Payload))
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestResumeMidSegment(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	createSegment(t, h, 1)
	appendEntry(t, h, 1, record.Record{TxID: 1, Payload: []byte("a")}, record.Record{TxID: 2, Payload: []byte("b")}, record.Record{TxID: 3, Payload: []byte("c")})
	completeSegment(t, h, 1, 0, 3, 3)

	resume := position.Position{SegmentSeq: 1, EntryID: 0, SlotID: 1}
	r := New("test", Config{}, h.meta, h.store, resume, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Close(ctx)

	fut, err := r.ReadNext(ctx)
	require.NoError(t, err)
	d, err := fut.WaitOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(d.Record.Payload))

	fut, err = r.ReadNext(ctx)
	require.NoError(t, err)
	d, err = fut.WaitOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", string(d.Record.Payload))
}

func TestControlRecordsAreSkipped(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	createSegment(t, h, 1)
	appendEntry(t, h, 1,
		record.Record{TxID: 1, Payload: []byte("a")},
		record.NewControl(1),
		record.Record{TxID: 2, Payload: []byte("b")},
	)
	completeSegment(t, h, 1, 0, 2, 2)

	r := New("test", Config{}, h.meta, h.store, position.InitialLowerBound, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Close(ctx)

	for _, want := range []string{"a", "b"} {
		fut, err := r.ReadNext(ctx)
		require.NoError(t, err)
		d, err := fut.WaitOne(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(d.Record.Payload))
	}
}

func TestEndOfStreamTerminatesReader(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	createSegment(t, h, 1)
	appendEntry(t, h, 1, record.Record{TxID: 1, Payload: []byte("a")}, record.NewEndOfStream())
	completeSegment(t, h, 1, 0, 1, 1)

	r := New("test", Config{}, h.meta, h.store, position.InitialLowerBound, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Close(ctx)

	fut, err := r.ReadNext(ctx)
	require.NoError(t, err)
	d, err := fut.WaitOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(d.Record.Payload))

	fut, err = r.ReadNext(ctx)
	require.NoError(t, err)
	_, err = fut.WaitOne(ctx)
	assert.ErrorIs(t, err, dlogerr.ErrEndOfStream)

	waitFor(t, time.Second, func() bool { return r.State() == "terminated" })

	_, err = r.ReadNext(ctx)
	assert.ErrorIs(t, err, dlogerr.ErrEndOfStream)
}

func TestReadNextTailsInProgressSegment(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	createSegment(t, h, 1)

	r := New("test", Config{PollInterval: 5 * time.Millisecond}, h.meta, h.store, position.InitialLowerBound, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Close(ctx)

	fut, err := r.ReadNext(ctx)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	appendEntry(t, h, 1, record.Record{TxID: 1, Payload: []byte("late")})

	d, err := fut.WaitOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", string(d.Record.Payload))
}

func TestReadBulkGathersMultipleRecords(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	createSegment(t, h, 1)
	appendEntry(t, h, 1, record.Record{TxID: 1, Payload: []byte("a")}, record.Record{TxID: 2, Payload: []byte("b")})
	appendEntry(t, h, 1, record.Record{TxID: 3, Payload: []byte("c")})
	completeSegment(t, h, 1, 1, 3, 3)

	r := New("test", Config{}, h.meta, h.store, position.InitialLowerBound, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Close(ctx)

	fut, err := r.ReadBulk(ctx, 3)
	require.NoError(t, err)
	delivered, err := fut.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, delivered, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{
		string(delivered[0].Record.Payload),
		string(delivered[1].Record.Payload),
		string(delivered[2].Record.Payload),
	})
}

func TestIdleErrorsOnTimeout(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	createSegment(t, h, 1)

	r := New("test", Config{WarnIdle: 5 * time.Millisecond, ErrorIdle: 20 * time.Millisecond, PollInterval: 2 * time.Millisecond}, h.meta, h.store, position.InitialLowerBound, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Close(ctx)

	fut, err := r.ReadNext(ctx)
	require.NoError(t, err)
	_, err = fut.Wait(ctx)
	assert.ErrorIs(t, err, dlogerr.ErrIdleReader)

	waitFor(t, time.Second, func() bool {
		errored, _ := r.Errored()
		return errored
	})
}

func TestCloseUnblocksPendingRead(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	createSegment(t, h, 1)

	r := New("test", Config{PollInterval: time.Hour}, h.meta, h.store, position.InitialLowerBound, nil)
	require.NoError(t, r.Start(ctx))

	fut, err := r.ReadNext(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = fut.Wait(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Close(ctx))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close never unblocked the pending read")
	}
}

func TestCancellingActiveReadFailsReader(t *testing.T) {
	h := newTestHarness()
	createSegment(t, h, 1)

	r := New("test", Config{PollInterval: time.Hour}, h.meta, h.store, position.InitialLowerBound, nil)
	require.NoError(t, r.Start(context.Background()))
	defer r.Close(context.Background())

	cctx, cancel := context.WithCancel(context.Background())
	fut, err := r.ReadNext(cctx)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	cancel()

	_, err = fut.Wait(context.Background())
	assert.Error(t, err)

	waitFor(t, time.Second, func() bool {
		errored, _ := r.Errored()
		return errored
	})

	_, err = r.ReadNext(context.Background())
	assert.Error(t, err)
}
