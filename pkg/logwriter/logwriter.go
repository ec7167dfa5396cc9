// Package logwriter implements the per-stream log writer: the ordered,
// single-consumer task queue that owns a stream's current segment writer,
// decides when to roll to a new segment, and exposes the write/truncate/
// end-of-stream/close operations client code actually calls.
//
// Every public method submits a closure onto an internal task queue drained
// by one goroutine per LogWriter, so concurrent callers never race on the
// writer's internal state and operations observe strict arrival order.
package logwriter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"github.com/dlogio/dlog/internal/logger"
	"github.com/dlogio/dlog/internal/telemetry"
	"github.com/dlogio/dlog/pkg/dlogerr"
	"github.com/dlogio/dlog/pkg/lock"
	"github.com/dlogio/dlog/pkg/metrics"
	"github.com/dlogio/dlog/pkg/position"
	"github.com/dlogio/dlog/pkg/record"
	"github.com/dlogio/dlog/pkg/segmentmeta"
	"github.com/dlogio/dlog/pkg/segmentstore"
	"github.com/dlogio/dlog/pkg/segmentwriter"
)

// LockReason is this package's reason tag against the stream's
// DistributedLock, held for the LogWriter's entire lifetime. Its segment
// writers share the lock without acquiring a reason of their own.
const LockReason = "logwriter"

type pendingWrite struct {
	rec record.Record
	fut *segmentwriter.Future
}

type task struct {
	id  uuid.UUID
	run func(ctx context.Context)
}

// LogWriter owns a stream's append path: at most one live segment writer,
// the metadata bookkeeping around segment boundaries, and the roll
// orchestration between them.
type LogWriter struct {
	streamName    string
	cfg           Config
	meta          *segmentmeta.Store
	store         segmentstore.Store
	streamLock    *lock.DistributedLock
	writerMetrics metrics.WriterMetrics
	lockMetrics   metrics.LockMetrics

	queue  chan task
	stopCh chan struct{}
	doneCh chan struct{}

	mu              sync.Mutex
	current         *segmentwriter.Writer
	segmentSeq      int64
	segmentOpenedAt time.Time
	segmentBytes    int64
	segmentRecords  int64
	lastTxID        int64
	rolling         bool
	pending         []pendingWrite
	endOfStream     bool
	errored         bool
	err             error
	closed          bool
}

// New constructs a LogWriter bound to streamName. Call Start before issuing
// any writes.
func New(streamName string, cfg Config, meta *segmentmeta.Store, store segmentstore.Store, streamLock *lock.DistributedLock, wm metrics.WriterMetrics, lm metrics.LockMetrics) *LogWriter {
	cfg = cfg.WithDefaults()
	return &LogWriter{
		streamName:    streamName,
		cfg:           cfg,
		meta:          meta,
		store:         store,
		streamLock:    streamLock,
		writerMetrics: wm,
		lockMetrics:   lm,
		queue:         make(chan task, cfg.QueueDepth),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start acquires the stream lock, opens or resumes the stream's current
// segment, and begins draining the task queue.
func (lw *LogWriter) Start(ctx context.Context) error {
	if lw.streamLock != nil {
		acquireStart := time.Now()
		err := lw.streamLock.Acquire(ctx, LockReason)
		metrics.ObserveAcquire(lw.lockMetrics, time.Since(acquireStart).Milliseconds(), 0)
		if err != nil {
			return fmt.Errorf("logwriter: acquire stream lock: %w", err)
		}
		lw.streamLock.OnExpire(func(cause error) {
			metrics.ObserveSessionExpired(lw.lockMetrics)
			lw.fail(dlogerr.New(dlogerr.ErrFencing, cause))
		})
	}

	if err := lw.openOrResumeSegment(ctx); err != nil {
		return err
	}

	go lw.run()
	return nil
}

// StreamName returns the stream this writer is bound to.
func (lw *LogWriter) StreamName() string { return lw.streamName }

// CurrentSegmentSeq returns the segment_seq currently open for writing.
func (lw *LogWriter) CurrentSegmentSeq() int64 {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.segmentSeq
}

// LastTxID returns the highest txid accepted so far, across all segments.
func (lw *LogWriter) LastTxID() int64 {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.lastTxID
}

// Errored reports whether the writer has entered its sticky error state.
func (lw *LogWriter) Errored() (bool, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.errored, lw.err
}

func (lw *LogWriter) openOrResumeSegment(ctx context.Context) error {
	segments, err := lw.meta.List(ctx)
	if err != nil {
		return fmt.Errorf("logwriter: list segments: %w", err)
	}

	if len(segments) == 0 {
		return lw.createSegment(ctx, 1, 0)
	}

	last := segments[len(segments)-1]
	if last.State == segmentmeta.Complete {
		return lw.createSegment(ctx, last.SegmentSeq+1, last.LastTxID)
	}

	handle, err := lw.store.Open(ctx, strconv.FormatInt(last.SegmentSeq, 10), true)
	if err != nil {
		return fmt.Errorf("logwriter: reopen in-progress segment %d: %w", last.SegmentSeq, err)
	}
	writer := segmentwriter.New(handle, last.SegmentSeq, lw.cfg.Writer, lw.streamLock, lw.writerMetrics)
	writer.Start(ctx)

	lw.mu.Lock()
	lw.current = writer
	lw.segmentSeq = last.SegmentSeq
	lw.segmentOpenedAt = time.Now()
	lw.segmentBytes = 0
	lw.segmentRecords = last.RecordCount
	lw.lastTxID = last.LastTxID
	lw.mu.Unlock()

	logger.InfoCtx(ctx, "log writer resumed in-progress segment",
		"stream", lw.streamName, "segment_seq", last.SegmentSeq)
	return nil
}

func (lw *LogWriter) createSegment(ctx context.Context, seq, startTxID int64) error {
	if err := lw.meta.CreateInProgress(ctx, seq, startTxID, lw.cfg.RegionID); err != nil {
		return fmt.Errorf("logwriter: create segment %d metadata: %w", seq, err)
	}
	handle, err := lw.store.Create(ctx, strconv.FormatInt(seq, 10))
	if err != nil {
		return fmt.Errorf("logwriter: create segment %d store object: %w", seq, err)
	}
	writer := segmentwriter.New(handle, seq, lw.cfg.Writer, lw.streamLock, lw.writerMetrics)
	writer.Start(ctx)

	lw.mu.Lock()
	lw.current = writer
	lw.segmentSeq = seq
	lw.segmentOpenedAt = time.Now()
	lw.segmentBytes = 0
	lw.segmentRecords = 0
	lw.lastTxID = startTxID
	lw.mu.Unlock()

	logger.InfoCtx(ctx, "log writer opened new segment",
		"stream", lw.streamName, "segment_seq", seq, "start_txid", startTxID)
	return nil
}

// run is the task queue's single consumer.
func (lw *LogWriter) run() {
	defer close(lw.doneCh)
	for {
		select {
		case t := <-lw.queue:
			lw.execTask(t)
		case <-lw.stopCh:
			return
		}
	}
}

func (lw *LogWriter) execTask(t task) {
	var catcher panics.Catcher
	catcher.Try(func() {
		t.run(context.Background())
	})
	if r := catcher.Recovered(); r != nil {
		logger.ErrorCtx(context.Background(), "log writer task panicked",
			"stream", lw.streamName, "task_id", t.id.String(), "error", r.AsError())
	}
}

// submit enqueues run, failing fast if the writer is already closed or if
// ctx is cancelled before the queue accepts it.
func (lw *LogWriter) submit(ctx context.Context, run func(ctx context.Context)) error {
	lw.mu.Lock()
	closed := lw.closed
	lw.mu.Unlock()
	if closed {
		return dlogerr.ErrCancelled
	}

	t := task{id: uuid.New(), run: run}
	select {
	case lw.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-lw.stopCh:
		return dlogerr.ErrCancelled
	}
}

// Write submits one record, returning a Future resolved once its containing
// transmission unit is acknowledged (possibly in a different segment than
// the one open at submission time, if a roll intervenes).
func (lw *LogWriter) Write(ctx context.Context, rec record.Record) (*segmentwriter.Future, error) {
	type result struct {
		fut *segmentwriter.Future
		err error
	}
	resCh := make(chan result, 1)
	if err := lw.submit(ctx, func(taskCtx context.Context) {
		fut, err := lw.handleWrite(taskCtx, rec)
		resCh <- result{fut, err}
	}); err != nil {
		return nil, err
	}

	select {
	case res := <-resCh:
		return res.fut, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (lw *LogWriter) handleWrite(ctx context.Context, rec record.Record) (*segmentwriter.Future, error) {
	lw.mu.Lock()
	if lw.closed {
		lw.mu.Unlock()
		return nil, dlogerr.ErrCancelled
	}
	if lw.errored {
		cause := lw.err
		lw.mu.Unlock()
		return nil, dlogerr.New(dlogerr.ErrTransmit, cause)
	}
	if lw.endOfStream {
		lw.mu.Unlock()
		return nil, dlogerr.ErrEndOfStream
	}
	if lw.rolling {
		if lw.cfg.FailFastOnRoll {
			lw.mu.Unlock()
			return nil, dlogerr.ErrStreamNotReady
		}
		fut := segmentwriter.NewFuture()
		lw.pending = append(lw.pending, pendingWrite{rec: rec, fut: fut})
		lw.mu.Unlock()
		return fut, nil
	}
	current := lw.current
	lw.mu.Unlock()

	if current == nil {
		return nil, errors.New("logwriter: not started")
	}

	fut, err := current.Write(ctx, rec)
	if err != nil {
		if stuck, cause := current.Errored(); stuck {
			lw.fail(cause)
		}
		return nil, err
	}

	lw.mu.Lock()
	if rec.TxID > lw.lastTxID {
		lw.lastTxID = rec.TxID
	}
	if !rec.IsControl() {
		lw.segmentBytes += int64(rec.EncodedLen())
		lw.segmentRecords++
	}
	roll := !rec.IsEndOfStream() && lw.cfg.Policy.shouldRoll(lw.segmentBytes, lw.segmentRecords, lw.segmentOpenedAt)
	lw.mu.Unlock()

	if roll {
		lw.triggerRoll(current)
	}
	return fut, nil
}

// WriteBulk submits records as one ordered batch, sharing a single
// post-roll-check the way a sequence of Write calls followed by a flush
// would, but as a single task so no other write can interleave between
// them.
func (lw *LogWriter) WriteBulk(ctx context.Context, records []record.Record) ([]*segmentwriter.Future, error) {
	type result struct {
		futures []*segmentwriter.Future
		err     error
	}
	resCh := make(chan result, 1)
	if err := lw.submit(ctx, func(taskCtx context.Context) {
		futures, err := lw.handleWriteBulk(taskCtx, records)
		resCh <- result{futures, err}
	}); err != nil {
		return nil, err
	}

	select {
	case res := <-resCh:
		return res.futures, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (lw *LogWriter) handleWriteBulk(ctx context.Context, records []record.Record) ([]*segmentwriter.Future, error) {
	lw.mu.Lock()
	if lw.closed {
		lw.mu.Unlock()
		return nil, dlogerr.ErrCancelled
	}
	if lw.errored {
		cause := lw.err
		lw.mu.Unlock()
		return nil, dlogerr.New(dlogerr.ErrTransmit, cause)
	}
	if lw.endOfStream {
		lw.mu.Unlock()
		return nil, dlogerr.ErrEndOfStream
	}
	if lw.rolling {
		if lw.cfg.FailFastOnRoll {
			lw.mu.Unlock()
			return nil, dlogerr.ErrStreamNotReady
		}
		futures := make([]*segmentwriter.Future, len(records))
		for i, rec := range records {
			fut := segmentwriter.NewFuture()
			lw.pending = append(lw.pending, pendingWrite{rec: rec, fut: fut})
			futures[i] = fut
		}
		lw.mu.Unlock()
		return futures, nil
	}
	current := lw.current
	lw.mu.Unlock()

	if current == nil {
		return nil, errors.New("logwriter: not started")
	}

	futures, err := current.WriteBulk(ctx, records)
	if err != nil {
		if stuck, cause := current.Errored(); stuck {
			lw.fail(cause)
		}
		return futures, err
	}

	lw.mu.Lock()
	for _, rec := range records {
		if rec.TxID > lw.lastTxID {
			lw.lastTxID = rec.TxID
		}
		if !rec.IsControl() {
			lw.segmentBytes += int64(rec.EncodedLen())
			lw.segmentRecords++
		}
	}
	roll := len(records) > 0 && !records[len(records)-1].IsEndOfStream() &&
		lw.cfg.Policy.shouldRoll(lw.segmentBytes, lw.segmentRecords, lw.segmentOpenedAt)
	lw.mu.Unlock()

	if roll {
		lw.triggerRoll(current)
	}
	return futures, nil
}

// triggerRoll enters the rolling state and arranges for completeRoll to run
// as a follow-up task once writer's buffered records (including the record
// that crossed the roll threshold) are flushed and acknowledged, without
// blocking the task queue on that round trip.
func (lw *LogWriter) triggerRoll(writer *segmentwriter.Writer) {
	lw.mu.Lock()
	if lw.rolling {
		lw.mu.Unlock()
		return
	}
	lw.rolling = true
	lw.mu.Unlock()

	go func() {
		_, err := writer.Flush(context.Background())
		if submitErr := lw.submit(context.Background(), func(taskCtx context.Context) {
			lw.completeRoll(taskCtx, err)
		}); submitErr != nil {
			logger.WarnCtx(context.Background(), "could not submit roll completion task, writer likely closing",
				"stream", lw.streamName, "error", submitErr)
		}
	}()
}

// ForceRoll rolls to a new segment immediately, independent of policy
// thresholds, used for administrative segment boundary control.
func (lw *LogWriter) ForceRoll(ctx context.Context) error {
	errCh := make(chan error, 1)
	if err := lw.submit(ctx, func(taskCtx context.Context) {
		errCh <- lw.doForceRoll(taskCtx)
	}); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (lw *LogWriter) doForceRoll(ctx context.Context) error {
	lw.mu.Lock()
	if lw.rolling {
		lw.mu.Unlock()
		return nil
	}
	if lw.closed || lw.errored {
		err := lw.err
		lw.mu.Unlock()
		if err == nil {
			err = dlogerr.ErrCancelled
		}
		return err
	}
	current := lw.current
	lw.rolling = true
	lw.mu.Unlock()

	if current == nil {
		lw.mu.Lock()
		lw.rolling = false
		lw.mu.Unlock()
		return errors.New("logwriter: not started")
	}

	if _, err := current.Flush(ctx); err != nil {
		lw.failRoll(nil, err)
		return err
	}
	lw.completeRoll(ctx, nil)

	lw.mu.Lock()
	err := lw.err
	lw.mu.Unlock()
	return err
}

func (lw *LogWriter) completeRoll(ctx context.Context, triggerErr error) {
	start := time.Now()

	if triggerErr != nil {
		lw.mu.Lock()
		pending := lw.pending
		lw.pending = nil
		lw.mu.Unlock()
		lw.failRoll(pending, triggerErr)
		logger.ErrorCtx(ctx, "segment roll aborted, triggering write failed",
			"stream", lw.streamName, "error", triggerErr)
		return
	}

	lw.mu.Lock()
	oldWriter := lw.current
	oldSeq := lw.segmentSeq
	recordCount := lw.segmentRecords
	pending := lw.pending
	lw.pending = nil
	lw.mu.Unlock()

	ctx, span := telemetry.StartRollSpan(ctx, lw.streamName, oldSeq)
	defer span.End()

	if err := oldWriter.Close(ctx, false); err != nil {
		logger.WarnCtx(ctx, "closing rolled segment writer reported an error",
			"stream", lw.streamName, "segment_seq", oldSeq, "error", err)
	}

	lastEntryID := oldWriter.LastAckedEntryID()
	lastTxID := oldWriter.LastAcknowledgedTxID()

	if err := lw.meta.Complete(ctx, oldSeq, lastEntryID, lastTxID, recordCount); err != nil {
		telemetry.RecordError(ctx, err)
		lw.failRoll(pending, fmt.Errorf("logwriter: complete segment %d: %w", oldSeq, err))
		return
	}

	newSeq := oldSeq + 1
	if err := lw.createSegment(ctx, newSeq, lastTxID); err != nil {
		telemetry.RecordError(ctx, err)
		lw.failRoll(pending, err)
		return
	}

	lw.mu.Lock()
	lw.rolling = false
	newWriter := lw.current
	lw.mu.Unlock()

	drained := 0
	for _, pw := range pending {
		fut, err := newWriter.Write(ctx, pw.rec)
		if err != nil {
			pw.fut.Fail(err)
			continue
		}
		drained++
		go forwardFuture(fut, pw.fut)

		lw.mu.Lock()
		if pw.rec.TxID > lw.lastTxID {
			lw.lastTxID = pw.rec.TxID
		}
		if !pw.rec.IsControl() {
			lw.segmentBytes += int64(pw.rec.EncodedLen())
			lw.segmentRecords++
		}
		lw.mu.Unlock()
	}

	metrics.ObserveRoll(lw.writerMetrics, drained, time.Since(start))
	logger.InfoCtx(ctx, "segment rolled",
		"stream", lw.streamName, "old_segment_seq", oldSeq, "new_segment_seq", newSeq, "pending_drained", drained)
}

func (lw *LogWriter) failRoll(pending []pendingWrite, cause error) {
	lw.mu.Lock()
	lw.rolling = false
	if !lw.errored {
		lw.errored = true
		lw.err = cause
	}
	lw.mu.Unlock()
	for _, pw := range pending {
		pw.fut.Fail(cause)
	}
}

func forwardFuture(src, dst *segmentwriter.Future) {
	pos, err := src.Wait(context.Background())
	if err != nil {
		dst.Fail(err)
		return
	}
	dst.Resolve(pos)
}

// fail flips the writer into its sticky error state, failing every queued
// pending write, used when the stream lock's session expires or a segment
// writer's sticky error surfaces.
func (lw *LogWriter) fail(cause error) {
	lw.mu.Lock()
	if lw.errored {
		lw.mu.Unlock()
		return
	}
	lw.errored = true
	lw.err = cause
	pending := lw.pending
	lw.pending = nil
	lw.rolling = false
	lw.mu.Unlock()

	for _, pw := range pending {
		pw.fut.Fail(cause)
	}
}

// Truncate marks every segment entirely below pos as truncated in the
// metadata store's low-water-mark and best-effort deletes their backing
// segment-store objects. Idempotent: truncating the same or a lower
// position twice is a no-op on the second call.
func (lw *LogWriter) Truncate(ctx context.Context, pos position.Position) error {
	errCh := make(chan error, 1)
	if err := lw.submit(ctx, func(taskCtx context.Context) {
		errCh <- lw.doTruncate(taskCtx, pos)
	}); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (lw *LogWriter) doTruncate(ctx context.Context, pos position.Position) error {
	if err := lw.meta.MarkTruncatedBelow(ctx, pos); err != nil {
		return fmt.Errorf("logwriter: mark truncated below %s: %w", pos, err)
	}

	segments, err := lw.meta.List(ctx)
	if err != nil {
		return fmt.Errorf("logwriter: list segments for truncation cleanup: %w", err)
	}
	for _, m := range segments {
		if m.State != segmentmeta.Complete || pos.SegmentSeq <= m.SegmentSeq {
			continue
		}
		if err := lw.store.Delete(ctx, strconv.FormatInt(m.SegmentSeq, 10)); err != nil {
			logger.WarnCtx(ctx, "deleting truncated segment object failed",
				"stream", lw.streamName, "segment_seq", m.SegmentSeq, "error", err)
		}
	}
	return nil
}

// MarkEndOfStream writes the reserved terminal record to the current
// segment and flushes it. After this call every subsequent Write or
// WriteBulk fails with dlogerr.ErrEndOfStream.
func (lw *LogWriter) MarkEndOfStream(ctx context.Context) error {
	errCh := make(chan error, 1)
	if err := lw.submit(ctx, func(taskCtx context.Context) {
		errCh <- lw.doMarkEndOfStream(taskCtx)
	}); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (lw *LogWriter) doMarkEndOfStream(ctx context.Context) error {
	lw.mu.Lock()
	if lw.closed {
		lw.mu.Unlock()
		return dlogerr.ErrCancelled
	}
	if lw.errored {
		cause := lw.err
		lw.mu.Unlock()
		return dlogerr.New(dlogerr.ErrTransmit, cause)
	}
	if lw.rolling {
		lw.mu.Unlock()
		return dlogerr.ErrStreamNotReady
	}
	current := lw.current
	lw.mu.Unlock()

	if current == nil {
		return errors.New("logwriter: not started")
	}
	if err := current.MarkEndOfStream(ctx); err != nil {
		return err
	}

	lw.mu.Lock()
	lw.endOfStream = true
	lw.mu.Unlock()
	return nil
}

// CloseAndComplete drains the task queue, closes and completes the current
// segment (recording its final boundaries in the metadata store), releases
// the stream lock, and stops the queue's consumer goroutine.
func (lw *LogWriter) CloseAndComplete(ctx context.Context) error {
	errCh := make(chan error, 1)
	if err := lw.submit(ctx, func(taskCtx context.Context) {
		errCh <- lw.doCloseAndComplete(taskCtx)
	}); err != nil {
		return err
	}

	var result error
	select {
	case result = <-errCh:
	case <-ctx.Done():
		result = ctx.Err()
	}

	close(lw.stopCh)
	<-lw.doneCh
	return result
}

func (lw *LogWriter) doCloseAndComplete(ctx context.Context) error {
	lw.mu.Lock()
	if lw.closed {
		lw.mu.Unlock()
		return nil
	}
	lw.closed = true
	current := lw.current
	segSeq := lw.segmentSeq
	recordCount := lw.segmentRecords
	pending := lw.pending
	lw.pending = nil
	lw.mu.Unlock()

	for _, pw := range pending {
		pw.fut.Fail(dlogerr.ErrCancelled)
	}

	if current == nil {
		return nil
	}

	closeErr := current.Close(ctx, true)
	lastEntryID := current.LastAckedEntryID()
	lastTxID := current.LastAcknowledgedTxID()

	completeErr := lw.meta.Complete(ctx, segSeq, lastEntryID, lastTxID, recordCount)

	if lw.streamLock != nil {
		if err := lw.streamLock.Release(ctx, LockReason); err != nil {
			logger.WarnCtx(ctx, "releasing stream lock on close reported an error",
				"stream", lw.streamName, "error", err)
		}
	}

	if closeErr != nil {
		return closeErr
	}
	return completeErr
}
