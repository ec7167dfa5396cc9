// Package segmentreader implements the ordered, resumable stream reader:
// given a starting position it opens segments in order, tails an
// in-progress segment as new records are appended, and hands back records
// one at a time (ReadNext) or in batches (ReadBulk) through a future-based
// API, with idle detection and an optional read-ahead cache fronting the
// segment being tailed.
package segmentreader

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dlogio/dlog/internal/logger"
	"github.com/dlogio/dlog/pkg/dlogerr"
	"github.com/dlogio/dlog/pkg/metrics"
	"github.com/dlogio/dlog/pkg/position"
	"github.com/dlogio/dlog/pkg/readahead"
	"github.com/dlogio/dlog/pkg/record"
	"github.com/dlogio/dlog/pkg/segmentmeta"
	"github.com/dlogio/dlog/pkg/segmentstore"
)

// pendingRead is one outstanding ReadNext/ReadBulk request waiting to be
// served by the reader's single consumer goroutine.
type pendingRead struct {
	ctx  context.Context
	want int
	fut  *Future
}

// Reader delivers a stream's records in strict position order, starting
// from an arbitrary resume point. All blocking work happens on one
// goroutine so record delivery order and idle/watch bookkeeping never
// race against each other; ReadNext and ReadBulk only enqueue a promise
// and return, blocking only while MaxPendingReads requests are already
// queued.
type Reader struct {
	streamName    string
	cfg           Config
	meta          *segmentmeta.Store
	store         segmentstore.Store
	readerMetrics metrics.ReaderMetrics

	closeCtx    context.Context
	closeCancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*pendingRead
	closed  bool

	started bool
	done    chan struct{}

	// errored is sticky: once set, every subsequent and pending read
	// fails with err. terminated is the graceful counterpart: every
	// subsequent and pending read fails with dlogerr.ErrEndOfStream.
	errored    bool
	err        error
	terminated bool

	nextPosition position.Position

	curSegSeq     int64
	curHandle     segmentstore.Handle
	curInProgress bool
	curLastEntry  int64 // meaningful only when the current segment is complete
	curEntryID    int64 // entry id of the transmission unit loaded into curReader, -1 if none loaded
	curReader     *record.Reader
	curFromCache  bool // whether curReader's buffer came from the read-ahead cache
	raWorker      *readahead.Worker

	warnFired int
}

// New constructs a Reader bound to one stream, ready to serve reads
// starting from startPosition once Start is called. m may be nil to
// disable metrics collection.
func New(streamName string, cfg Config, meta *segmentmeta.Store, store segmentstore.Store, startPosition position.Position, m metrics.ReaderMetrics) *Reader {
	cfg = cfg.WithDefaults()
	closeCtx, closeCancel := context.WithCancel(context.Background())
	r := &Reader{
		streamName:    streamName,
		cfg:           cfg,
		meta:          meta,
		store:         store,
		readerMetrics: m,
		closeCtx:      closeCtx,
		closeCancel:   closeCancel,
		nextPosition:  startPosition,
		curSegSeq:     -1,
		curEntryID:    -1,
		done:          make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start spawns the consumer goroutine. Cancelling ctx closes the reader
// the same as an explicit Close call. Calling Start more than once is a
// no-op.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	go r.run()
	go func() {
		select {
		case <-ctx.Done():
			_ = r.Close(context.Background())
		case <-r.done:
		}
	}()
	return nil
}

// StreamName returns the stream this reader serves.
func (r *Reader) StreamName() string { return r.streamName }

// NextPosition returns the position of the next record this reader would
// deliver.
func (r *Reader) NextPosition() position.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextPosition
}

// State reports the reader's lifecycle state as a human-readable label.
func (r *Reader) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return "closed"
	case r.terminated:
		return "terminated"
	case r.errored:
		return "errored"
	default:
		return "positioned"
	}
}

// Errored reports whether the reader has sticky-failed, and the cause.
func (r *Reader) Errored() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errored, r.err
}

// ReadNext enqueues a request for exactly one record.
func (r *Reader) ReadNext(ctx context.Context) (*Future, error) {
	return r.enqueue(ctx, 1)
}

// ReadBulk enqueues a request for up to n records. The returned future
// settles with fewer than n records only when the stream ends after at
// least one record was gathered; if it ends before any, the future fails
// with dlogerr.ErrEndOfStream. While tailing an in-progress segment the
// reader waits for more records rather than settling with a short batch.
func (r *Reader) ReadBulk(ctx context.Context, n int) (*Future, error) {
	if n <= 0 {
		return nil, fmt.Errorf("segmentreader: bulk read count must be positive, got %d", n)
	}
	return r.enqueue(ctx, n)
}

func (r *Reader) enqueue(ctx context.Context, want int) (*Future, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errored {
		return nil, r.err
	}
	if r.terminated {
		return nil, dlogerr.ErrEndOfStream
	}
	if r.closed {
		return nil, dlogerr.ErrCancelled
	}
	for len(r.pending) >= r.cfg.MaxPendingReads {
		r.cond.Wait()
		if r.errored {
			return nil, r.err
		}
		if r.terminated {
			return nil, dlogerr.ErrEndOfStream
		}
		if r.closed {
			return nil, dlogerr.ErrCancelled
		}
	}

	fut := newFuture()
	r.pending = append(r.pending, &pendingRead{ctx: ctx, want: want, fut: fut})
	r.cond.Broadcast()
	return fut, nil
}

// Close stops the consumer goroutine and fails every outstanding and
// future request with dlogerr.ErrCancelled. Safe to call more than once.
func (r *Reader) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pending := r.pending
	r.pending = nil
	r.cond.Broadcast()
	r.mu.Unlock()

	r.closeCancel()

	for _, p := range pending {
		p.fut.fail(dlogerr.ErrCancelled)
	}

	<-r.done

	r.mu.Lock()
	handle := r.curHandle
	worker := r.raWorker
	r.curHandle = nil
	r.raWorker = nil
	r.mu.Unlock()

	if worker != nil {
		worker.Stop()
	}
	if handle != nil {
		return handle.Close(ctx)
	}
	return nil
}

func (r *Reader) run() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.pending) == 0 && !r.closed {
			r.cond.Wait()
		}
		if r.closed {
			r.mu.Unlock()
			return
		}
		req := r.pending[0]
		r.mu.Unlock()

		r.serveRequest(req)

		r.mu.Lock()
		if len(r.pending) > 0 && r.pending[0] == req {
			r.pending = r.pending[1:]
		}
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

// serveRequest gathers up to req.want records for req, blocking as needed,
// and settles req.fut exactly once before returning.
func (r *Reader) serveRequest(req *pendingRead) {
	delivered := make([]Delivered, 0, req.want)
	for len(delivered) < req.want {
		d, err := r.nextRecord(req.ctx)
		if err != nil {
			if len(delivered) > 0 && err == dlogerr.ErrEndOfStream {
				req.fut.resolve(delivered)
				return
			}
			if err == context.Canceled || err == context.DeadlineExceeded || req.ctx.Err() != nil {
				// The request this consumer goroutine is actively
				// serving is always the oldest pending promise,
				// so its cancellation is fatal for the whole
				// reader: every other pending and future read
				// must fail too.
				r.fail(req.ctx.Err())
				return
			}
			if err == dlogerr.ErrEndOfStream {
				r.terminate()
				return
			}
			r.fail(err)
			return
		}
		delivered = append(delivered, d)
	}
	req.fut.resolve(delivered)
}

// nextRecord blocks until it can return the next record in stream order,
// or a terminal condition: ctx.Err(), dlogerr.ErrEndOfStream, or a fatal
// integrity/fencing error.
func (r *Reader) nextRecord(ctx context.Context) (Delivered, error) {
	for {
		if ctx.Err() != nil {
			return Delivered{}, ctx.Err()
		}

		if r.curSegSeq < 0 || r.curSegSeq != r.nextPosition.SegmentSeq {
			if err := r.openSegment(ctx, r.nextPosition.SegmentSeq); err != nil {
				return Delivered{}, err
			}
		}

		rec, fromCache, ok, err := r.tryReadFromCurrent(ctx)
		if err != nil {
			return Delivered{}, err
		}
		if ok {
			r.warnFired = 0
			pos := r.nextPosition
			r.advanceSlot()
			if rec.IsControl() {
				continue
			}
			if rec.IsEndOfStream() {
				return Delivered{}, dlogerr.ErrEndOfStream
			}
			metrics.ObserveDelivery(r.readerMetrics, fromCache)
			return Delivered{Record: rec, Position: pos}, nil
		}

		// Current transmission unit is exhausted. Either more entries
		// exist in this segment (in-progress, last-confirmed ahead of
		// us) or we need to wait/roll over.
		if _, err := r.awaitMoreOrCompletion(ctx); err != nil {
			return Delivered{}, err
		}
	}
}

// advanceSlot moves nextPosition to the following slot within the
// currently loaded transmission unit. Rolling over to the next entry is
// handled separately, the moment an entry is found exhausted.
func (r *Reader) advanceSlot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPosition.SlotID++
}

// advanceEntry moves nextPosition to slot 0 of the entry immediately
// following entryID, called the moment that entry's transmission unit is
// found exhausted.
func (r *Reader) advanceEntry(entryID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPosition.EntryID = entryID + 1
	r.nextPosition.SlotID = 0
}

// openSegment opens segSeq for reading, replacing any currently open
// segment. It blocks (polling meta.List) if segSeq hasn't been created
// yet: for a brand new stream whose first segment the log writer hasn't
// created yet, or during a roll, between completion of the previous
// segment and creation of the next.
func (r *Reader) openSegment(ctx context.Context, segSeq int64) error {
	if r.curHandle != nil {
		if r.raWorker != nil {
			r.raWorker.Stop()
			r.raWorker = nil
		}
		_ = r.curHandle.Close(ctx)
		r.curHandle = nil
	}
	r.curEntryID = -1
	r.curReader = nil

	for {
		list, err := r.meta.List(ctx)
		if err != nil {
			return fmt.Errorf("segmentreader: list segments: %w", err)
		}
		var m *segmentmeta.Metadata
		for i := range list {
			if list[i].SegmentSeq == segSeq {
				m = &list[i]
				break
			}
		}
		if m == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.closeCtx.Done():
				return dlogerr.ErrCancelled
			case <-time.After(r.cfg.PollInterval):
			}
			continue
		}

		if err := r.meta.CheckNotTruncated(ctx, r.nextPosition); err != nil {
			return err
		}

		handle, err := r.store.Open(ctx, strconv.FormatInt(segSeq, 10), false)
		if err != nil {
			return fmt.Errorf("segmentreader: open segment %d: %w", segSeq, err)
		}

		r.curSegSeq = segSeq
		r.curHandle = handle
		r.curInProgress = m.State == segmentmeta.InProgress
		r.curLastEntry = m.LastEntrySeq
		metrics.ObserveSegmentOpen(r.readerMetrics, r.curInProgress)

		if r.curInProgress && r.cfg.ReadAheadEnabled {
			r.raWorker = readahead.New(handle, r.nextPosition.EntryID, r.cfg.ReadAhead, r.readerMetrics)
			r.raWorker.Start(ctx)
		}

		logger.DebugCtx(ctx, "segment reader opened segment",
			"stream", r.streamName, "segment_seq", segSeq, "in_progress", r.curInProgress)
		return nil
	}
}

// tryReadFromCurrent returns the next record from the currently loaded
// transmission unit, loading (and, on a fresh segment position, skipping
// forward within) one from curHandle if needed. ok is false when no more
// entries are available right now (caller must wait or roll to the next
// segment); that is not itself an error.
func (r *Reader) tryReadFromCurrent(ctx context.Context) (record.Record, bool, bool, error) {
	for {
		if r.curReader == nil {
			entryID := r.nextPosition.EntryID
			data, fromCache, ok, err := r.fetchEntry(ctx, entryID)
			if err != nil {
				return record.Record{}, false, false, err
			}
			if !ok {
				return record.Record{}, false, false, nil
			}
			reader := record.NewReader(data)
			for i := int64(0); i < r.nextPosition.SlotID; i++ {
				if _, err := reader.Skip(); err != nil {
					return record.Record{}, false, false, dlogerr.New(dlogerr.ErrLogRead, err)
				}
			}
			// SlotID is only negative for the InitialLowerBound/NextSegment
			// sentinel meaning "before this entry's first real slot";
			// normalize it to 0 now that we're positioned inside a
			// concrete entry, so the position recorded against the first
			// record delivered from it is accurate.
			if r.nextPosition.SlotID < 0 {
				r.mu.Lock()
				r.nextPosition.SlotID = 0
				r.mu.Unlock()
			}
			r.curEntryID = entryID
			r.curReader = reader
			r.curFromCache = fromCache
			if r.raWorker != nil {
				r.raWorker.Evict(entryID)
			}
		}

		rec, more, err := r.curReader.Next()
		if err != nil {
			return record.Record{}, false, false, dlogerr.New(dlogerr.ErrLogRead, err)
		}
		if !more {
			r.curReader = nil
			r.advanceEntry(r.curEntryID)
			continue
		}
		return rec, r.curFromCache, true, nil
	}
}

// fetchEntry returns entryID's transmission unit payload, preferring the
// read-ahead cache, falling back to a synchronous segment-store read. ok
// is false when entryID hasn't been durably confirmed yet.
func (r *Reader) fetchEntry(ctx context.Context, entryID int64) ([]byte, bool, bool, error) {
	if r.raWorker != nil {
		if data, ok := r.raWorker.Get(entryID); ok {
			return data, true, true, nil
		}
	}

	lastConfirmed, err := r.curHandle.ReadLastConfirmed(ctx)
	if err != nil {
		return nil, false, false, fmt.Errorf("segmentreader: read last confirmed: %w", err)
	}
	if entryID > lastConfirmed {
		return nil, false, false, nil
	}

	entries, err := r.curHandle.ReadEntries(ctx, entryID, entryID)
	if err != nil {
		return nil, false, false, fmt.Errorf("segmentreader: read entry %d: %w", entryID, err)
	}
	return entries[0], false, true, nil
}

// awaitMoreOrCompletion is reached when the current segment has no more
// immediately available entries. For a complete segment this rolls over
// to the next segment unconditionally. For an in-progress segment it
// waits for either new data (via poll or coordinator watch) or the
// segment's completion, applying idle-warn/idle-error detection while it
// waits. It returns advanced=true once the caller should retry
// tryReadFromCurrent / re-check segment state.
func (r *Reader) awaitMoreOrCompletion(ctx context.Context) (bool, error) {
	if !r.curInProgress {
		r.mu.Lock()
		r.nextPosition = r.nextPosition.NextSegment()
		r.mu.Unlock()
		return true, nil
	}

	deadline := time.Now().Add(r.cfg.ErrorIdle)
	warnAt := time.Now().Add(r.cfg.WarnIdle)

	completed := make(chan struct{}, 1)
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	_ = r.meta.WatchCompletion(watchCtx, r.curSegSeq, func() {
		select {
		case completed <- struct{}{}:
		default:
		}
	})

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-r.closeCtx.Done():
			return false, dlogerr.ErrCancelled
		case <-completed:
			m, err := r.meta.Get(ctx, r.curSegSeq)
			if err != nil {
				return false, fmt.Errorf("segmentreader: re-read completed segment %d: %w", r.curSegSeq, err)
			}
			r.curInProgress = m.State == segmentmeta.InProgress
			r.curLastEntry = m.LastEntrySeq
			if !r.curInProgress {
				return true, nil
			}
			// Data-change event fired for some other reason; keep
			// waiting.
		case <-ticker.C:
			lastConfirmed, err := r.curHandle.ReadLastConfirmed(ctx)
			if err != nil {
				return false, fmt.Errorf("segmentreader: poll last confirmed: %w", err)
			}
			if r.nextPosition.EntryID <= lastConfirmed {
				return true, nil
			}

			now := time.Now()
			if now.After(deadline) {
				metrics.ObserveIdle(r.readerMetrics, "error")
				return false, dlogerr.ErrIdleReader
			}
			if now.After(warnAt) {
				r.warnFired++
				metrics.ObserveIdle(r.readerMetrics, "warn")
				logger.WarnCtx(ctx, "segment reader idle",
					"stream", r.streamName, "segment_seq", r.curSegSeq, "next_position", r.nextPosition)
				warnAt = now.Add(r.cfg.WarnIdle)
				if r.warnFired >= 2 {
					r.warnFired = 0
					if ok, err := r.forceBlockingRead(ctx, deadline); err != nil {
						return false, err
					} else if ok {
						return true, nil
					}
				}
			}
		}
	}
}

// forceBlockingRead is the second-warn-idle escalation: instead of polling
// again and waiting for the next tick, it forces the data fetch right now
// and blocks on it, bounded by deadline. With a read-ahead worker it nudges
// an immediate fill and then blocks on WaitForEntry until the worker's
// cache actually has nextPosition's entry. Without one, it bypasses the
// cache entirely and issues a direct segment-store read.
func (r *Reader) forceBlockingRead(ctx context.Context, deadline time.Time) (bool, error) {
	entryID := r.nextPosition.EntryID

	if r.raWorker != nil {
		r.raWorker.ForceFill(ctx)
		waitCtx, cancel := context.WithDeadline(ctx, deadline)
		_, ok := r.raWorker.WaitForEntry(waitCtx, entryID)
		cancel()
		return ok, nil
	}

	lastConfirmed, err := r.curHandle.ReadLastConfirmed(ctx)
	if err != nil {
		return false, fmt.Errorf("segmentreader: forced last confirmed read: %w", err)
	}
	if entryID > lastConfirmed {
		return false, nil
	}
	if _, err := r.curHandle.ReadEntries(ctx, entryID, entryID); err != nil {
		return false, fmt.Errorf("segmentreader: forced entry read: %w", err)
	}
	return true, nil
}

// fail puts the reader into the sticky-errored state and drains every
// pending promise (the one currently being served, and every later one)
// with cause.
func (r *Reader) fail(cause error) {
	r.mu.Lock()
	r.errored = true
	r.err = cause
	pending := r.pending
	r.pending = nil
	r.cond.Broadcast()
	r.mu.Unlock()

	for _, p := range pending {
		p.fut.fail(cause)
	}
	logger.ErrorCtx(context.Background(), "segment reader failed", "stream", r.streamName, "error", cause)
}

// terminate puts the reader into the graceful terminated state and drains
// every pending promise with dlogerr.ErrEndOfStream.
func (r *Reader) terminate() {
	r.mu.Lock()
	r.terminated = true
	pending := r.pending
	r.pending = nil
	r.cond.Broadcast()
	r.mu.Unlock()

	for _, p := range pending {
		p.fut.fail(dlogerr.ErrEndOfStream)
	}
}
