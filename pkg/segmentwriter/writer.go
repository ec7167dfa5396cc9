// Package segmentwriter implements the per-segment packing engine: it
// buffers records, packs them into transmission units, submits them to
// the segment store one in-flight batch at a time, assigns positions on
// acknowledgement, honors size/time-based flush policy, and enforces
// at-most-one-writer fencing.
package segmentwriter

import (
	"context"
	"sync"
	"time"

	"github.com/dlogio/dlog/internal/logger"
	"github.com/dlogio/dlog/internal/telemetry"
	"github.com/dlogio/dlog/pkg/dlogerr"
	"github.com/dlogio/dlog/pkg/flusher"
	"github.com/dlogio/dlog/pkg/lock"
	"github.com/dlogio/dlog/pkg/metrics"
	"github.com/dlogio/dlog/pkg/position"
	"github.com/dlogio/dlog/pkg/record"
	"github.com/dlogio/dlog/pkg/segmentstore"
)

// LockReason is the reason tag that Close (when finalizing) and Abort
// release on the Writer's DistributedLock. The log writer builds its
// Writers under its own reason and never acquires this one, so for those
// Writers that Release finds no hold and leaves the lock as it is.
const LockReason = "segmentwriter"

// Writer packs and transmits one segment's records. It is constructed
// after the log writer has created the segment's metadata and acquired
// the stream lock, and is discarded once the segment is rolled or the
// stream is closed.
type Writer struct {
	handle     segmentstore.Handle
	segmentSeq int64
	cfg        Config
	streamLock *lock.DistributedLock
	metrics    metrics.WriterMetrics
	scheduler  *flusher.Scheduler

	mu                   sync.Mutex
	cond                 *sync.Cond
	active               *transmissionUnit
	outstanding          int
	errored              bool
	err                  error
	closed               bool
	endOfStream          bool
	lastBufferedTxID     int64
	lastFlushedTxID      int64
	lastAcknowledgedTxID int64
	lastAckedEntryID     int64
	controlFlushNeeded   bool
}

// New constructs a Writer bound to an already-opened (and, for a real
// writer, already-fenced) segment-store handle. streamLock is the stream's
// DistributedLock; Close releases LockReason on it when finalize is
// requested, and its session expiry fails the writer.
func New(handle segmentstore.Handle, segmentSeq int64, cfg Config, streamLock *lock.DistributedLock, m metrics.WriterMetrics) *Writer {
	cfg = cfg.WithDefaults()
	w := &Writer{
		handle:     handle,
		segmentSeq: segmentSeq,
		cfg:        cfg,
		streamLock: streamLock,
		metrics:    m,
		active:     newTransmissionUnit(segmentSeq),
	}
	w.cond = sync.NewCond(&w.mu)

	if streamLock != nil {
		streamLock.OnExpire(func(err error) {
			w.fail(err)
		})
	}

	if cfg.PeriodicFlush > 0 {
		w.scheduler = flusher.New(cfg.PeriodicFlush/2, w.periodicFlush)
	}
	return w
}

// Start begins the periodic flush scheduler, if configured.
func (w *Writer) Start(ctx context.Context) {
	if w.scheduler != nil {
		w.scheduler.Start(ctx)
	}
}

// SegmentSeq returns the segment this writer is bound to.
func (w *Writer) SegmentSeq() int64 { return w.segmentSeq }

// LastAcknowledgedTxID returns the highest txid whose transmission unit has
// been acknowledged by the segment store.
func (w *Writer) LastAcknowledgedTxID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastAcknowledgedTxID
}

// LastFlushedTxID returns the highest txid handed off to the segment store,
// whether or not it has been acknowledged yet.
func (w *Writer) LastFlushedTxID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFlushedTxID
}

// LastAckedEntryID returns the highest segment-store entry id acknowledged
// so far, used by the log writer to record a rolled segment's end boundary.
func (w *Writer) LastAckedEntryID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastAckedEntryID
}

// Errored reports whether the writer has entered its sticky error state.
func (w *Writer) Errored() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errored, w.err
}

// Write buffers one record, returning a Future resolved once its
// containing transmission unit is acknowledged.
func (w *Writer) Write(ctx context.Context, rec record.Record) (*Future, error) {
	return w.write(ctx, rec, false)
}

func (w *Writer) write(ctx context.Context, rec record.Record, allowMaxTxID bool) (*Future, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, dlogerr.ErrCancelled
	}
	if w.errored {
		return nil, dlogerr.New(dlogerr.ErrTransmit, w.err)
	}
	if w.endOfStream {
		return nil, dlogerr.ErrEndOfStream
	}
	if err := record.Validate(rec, w.cfg.MaxRecordSize, allowMaxTxID); err != nil {
		return nil, err
	}

	return w.appendLocked(ctx, rec)
}

// WriteBulk buffers records in order and flushes once after the last,
// equivalent to sequential Write calls plus a trailing Flush.
func (w *Writer) WriteBulk(ctx context.Context, records []record.Record) ([]*Future, error) {
	futures := make([]*Future, 0, len(records))
	for _, rec := range records {
		f, err := w.Write(ctx, rec)
		if err != nil {
			return futures, err
		}
		futures = append(futures, f)
	}
	w.mu.Lock()
	err := w.transmitLocked(ctx, true)
	w.mu.Unlock()
	return futures, err
}

// appendLocked must be called with w.mu held. It packs rec into the active
// unit, forcing a transmit first if rec would overflow MaxTransmissionSize.
func (w *Writer) appendLocked(ctx context.Context, rec record.Record) (*Future, error) {
	if !w.active.empty() && len(w.active.buf)+rec.EncodedLen() > w.cfg.MaxTransmissionSize {
		if err := w.transmitLocked(ctx, false); err != nil {
			return nil, err
		}
	}

	w.active.buf = record.Append(w.active.buf, rec)
	fut := newFuture()
	w.active.promises = append(w.active.promises, fut)
	if rec.TxID > w.active.lastTxID {
		w.active.lastTxID = rec.TxID
	}
	if !rec.IsControl() {
		w.lastBufferedTxID = rec.TxID
	}
	return fut, nil
}

// transmitLocked must be called with w.mu held. It enforces at most one
// in-flight transmission: if a prior unit is still outstanding, it blocks
// until that unit is acknowledged (or the writer errors, or ctx is done)
// before swapping out the active unit and handing it to the segment store.
// New writes may still accumulate into the fresh active unit while the
// hand-off goroutine runs, but no second handle.Append call can start until
// the first one returns, so entry IDs and positions are assigned in
// submission order.
func (w *Writer) transmitLocked(ctx context.Context, force bool) error {
	if w.outstanding > 0 {
		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				w.mu.Lock()
				w.cond.Broadcast()
				w.mu.Unlock()
			case <-stop:
			}
		}()
		for w.outstanding > 0 && !w.errored {
			if err := ctx.Err(); err != nil {
				close(stop)
				return err
			}
			w.cond.Wait()
		}
		close(stop)
	}

	if w.errored {
		return dlogerr.New(dlogerr.ErrTransmit, w.err)
	}
	if w.active.empty() {
		return nil
	}

	unit := w.active
	w.active = newTransmissionUnit(w.segmentSeq)
	w.outstanding++
	w.lastFlushedTxID = unit.lastTxID
	metrics.SetOutstanding(w.metrics, w.outstanding)

	go w.submit(unit)
	return nil
}

func (w *Writer) submit(unit *transmissionUnit) {
	ctx, span := telemetry.StartTransmitSpan(context.Background(), w.segmentSeq, len(unit.promises), len(unit.buf), unit.isControl)
	start := time.Now()
	entryID, err := w.handle.Append(ctx, unit.buf)
	elapsed := time.Since(start)
	unit.release()

	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	span.End()

	w.mu.Lock()
	defer func() {
		w.outstanding--
		metrics.SetOutstanding(w.metrics, w.outstanding)
		w.cond.Broadcast()
		w.mu.Unlock()
	}()

	if err != nil {
		w.errored = true
		w.err = err
		metrics.ObserveTransmitError(w.metrics)
		logger.ErrorCtx(ctx, "segment writer transmission failed, writer errored",
			"segment_seq", w.segmentSeq, "error", err)
		for _, f := range unit.promises {
			f.Fail(dlogerr.New(dlogerr.ErrTransmit, err))
		}
		return
	}

	for i, f := range unit.promises {
		pos := position.Position{SegmentSeq: unit.segmentSeq, EntryID: entryID, SlotID: int64(i)}
		f.Resolve(pos)
	}
	if unit.lastTxID > w.lastAcknowledgedTxID {
		w.lastAcknowledgedTxID = unit.lastTxID
	}
	if entryID > w.lastAckedEntryID {
		w.lastAckedEntryID = entryID
	}
	w.controlFlushNeeded = !unit.isControl
	metrics.ObserveTransmit(w.metrics, len(unit.promises), len(unit.buf), elapsed)
	logger.DebugCtx(ctx, "transmission unit acknowledged",
		"segment_seq", w.segmentSeq, "entry_id", entryID, "records", len(unit.promises), "control", unit.isControl)
}

// Flush issues a best-effort transmission of the active buffer if
// non-empty; only when the buffer is empty does it instead send a control
// record, and then only if a prior data transmission succeeded without a
// subsequent control flush. A Flush that transmits data does not follow it
// with a control record. It then blocks until every outstanding
// transmission is acknowledged.
func (w *Writer) Flush(ctx context.Context) (int64, error) {
	ctx, span := telemetry.StartFlushSpan(ctx, w.segmentSeq)
	defer span.End()

	w.mu.Lock()
	if w.errored {
		err := w.err
		w.mu.Unlock()
		telemetry.RecordError(ctx, err)
		return 0, dlogerr.New(dlogerr.ErrTransmit, err)
	}

	if !w.active.empty() {
		if err := w.transmitLocked(ctx, true); err != nil {
			w.mu.Unlock()
			return 0, err
		}
	} else if w.controlFlushNeeded {
		ctrl := record.NewControl(w.lastBufferedTxID)
		ctrl.Flags |= record.FlagControl
		w.active.buf = record.Append(w.active.buf, ctrl)
		w.active.isControl = true
		if ctrl.TxID > w.active.lastTxID {
			w.active.lastTxID = ctrl.TxID
		}
		fut := newFuture()
		w.active.promises = append(w.active.promises, fut)
		if err := w.transmitLocked(ctx, true); err != nil {
			w.mu.Unlock()
			return 0, err
		}
	}
	w.mu.Unlock()

	if err := w.waitOutstandingZero(ctx); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.errored {
		return 0, dlogerr.New(dlogerr.ErrTransmit, w.err)
	}
	return w.lastAcknowledgedTxID, nil
}

// Sync is an alias for Flush.
func (w *Writer) Sync(ctx context.Context) (int64, error) { return w.Flush(ctx) }

// waitOutstandingZero blocks until w.outstanding reaches zero, ctx is
// cancelled, or the configured FlushTimeout elapses (the latter sticks the
// writer errored, per cancellation/timeout rules).
func (w *Writer) waitOutstandingZero(ctx context.Context) error {
	stop := make(chan struct{})
	timedOut := make(chan struct{})
	go func() {
		var timerC <-chan time.Time
		if w.cfg.FlushTimeout > 0 {
			timer := time.NewTimer(w.cfg.FlushTimeout)
			defer timer.Stop()
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		case <-timerC:
			close(timedOut)
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		case <-stop:
		}
	}()
	defer close(stop)

	w.mu.Lock()
	for w.outstanding > 0 && !w.errored {
		select {
		case <-timedOut:
			w.mu.Unlock()
			w.mu.Lock()
			w.errored = true
			w.err = dlogerr.ErrFlushTimeout
			w.mu.Unlock()
			return dlogerr.ErrFlushTimeout
		default:
		}
		if ctx.Err() != nil {
			w.mu.Unlock()
			return ctx.Err()
		}
		w.cond.Wait()
	}
	w.mu.Unlock()
	return nil
}

func (w *Writer) periodicFlush(ctx context.Context) {
	w.mu.Lock()
	hasData := !w.active.empty()
	needsControl := !hasData && w.controlFlushNeeded
	closed := w.closed
	errored := w.errored
	w.mu.Unlock()
	if closed || errored || (!hasData && !needsControl) {
		return
	}
	if _, err := w.Flush(ctx); err != nil {
		logger.WarnCtx(ctx, "periodic flush failed", "segment_seq", w.segmentSeq, "error", err)
	}
}

// MarkEndOfStream writes the reserved terminal record, then flushes.
// After this call every subsequent Write fails with dlogerr.ErrEndOfStream.
func (w *Writer) MarkEndOfStream(ctx context.Context) error {
	rec := record.NewEndOfStream()
	fut, err := w.write(ctx, rec, true)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.endOfStream = true
	w.mu.Unlock()

	if _, err := w.Flush(ctx); err != nil {
		return err
	}
	_, err = fut.Wait(ctx)
	return err
}

// Close cancels the periodic flusher, flushes if the writer is not
// errored, and closes the segment-store handle with a bounded retry
// budget on transient close errors. It releases the stream lock iff
// finalize is true.
func (w *Writer) Close(ctx context.Context, finalize bool) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	errored := w.errored
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	var flushErr error
	if !errored {
		if _, err := w.Flush(ctx); err != nil {
			flushErr = err
			logger.WarnCtx(ctx, "best-effort flush on close failed", "segment_seq", w.segmentSeq, "error", err)
		}
	}

	closeErr := flusher.Retry(ctx, flusher.RetryBudget{MaxAttempts: w.cfg.CloseRetryBudget,
		BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second},
		func(ctx context.Context) error { return w.handle.Close(ctx) },
		func(attempt int, err error) {
			logger.WarnCtx(ctx, "segment handle close failed, retrying", "segment_seq", w.segmentSeq, "attempt", attempt, "error", err)
		})
	if closeErr != nil {
		logger.ErrorCtx(ctx, "segment handle close exhausted retry budget", "segment_seq", w.segmentSeq, "error", closeErr)
	}

	if finalize && w.streamLock != nil {
		if err := w.streamLock.Release(ctx, LockReason); err != nil {
			logger.ErrorCtx(ctx, "release stream lock on close failed", "segment_seq", w.segmentSeq, "error", err)
			if closeErr == nil {
				closeErr = err
			}
		}
	}

	if closeErr != nil {
		return closeErr
	}
	return flushErr
}

// Abort cancels pending promises with dlogerr.ErrCancelled, releases the
// lock, and does not flush.
func (w *Writer) Abort(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.errored = true
	if w.err == nil {
		w.err = dlogerr.ErrCancelled
	}
	pending := w.active
	w.active = newTransmissionUnit(w.segmentSeq)
	w.mu.Unlock()

	for _, f := range pending.promises {
		f.Fail(dlogerr.ErrCancelled)
	}
	pending.release()
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	if w.streamLock != nil {
		return w.streamLock.Release(ctx, LockReason)
	}
	return nil
}

// fail flips the writer into its sticky error state and fails the active
// unit's pending promises, used when the stream lock's session expires out
// from under an in-flight writer.
func (w *Writer) fail(cause error) {
	w.mu.Lock()
	if w.errored {
		w.mu.Unlock()
		return
	}
	w.errored = true
	w.err = cause
	pending := w.active
	w.active = newTransmissionUnit(w.segmentSeq)
	w.mu.Unlock()

	for _, f := range pending.promises {
		f.Fail(dlogerr.New(dlogerr.ErrFencing, cause))
	}
	pending.release()
	w.cond.Broadcast()
}
