// Package readahead implements the segment reader's optional prefetch
// worker: it tails one in-progress segment's last-confirmed entry id and
// issues batched reads into a local cache, growing the batch size
// exponentially on successive full fills so a fast tailing reader doesn't
// pay a round trip per record.
package readahead

import (
	"context"
	"sync"
	"time"

	"github.com/dlogio/dlog/internal/logger"
	"github.com/dlogio/dlog/internal/telemetry"
	"github.com/dlogio/dlog/pkg/flusher"
	"github.com/dlogio/dlog/pkg/metrics"
	"github.com/dlogio/dlog/pkg/segmentstore"
)

// Worker prefetches entries from one segment-store handle into an entry
// cache. It never fences (the handle it's given must already be a
// read-only or already-fenced handle); it only reads.
type Worker struct {
	handle  segmentstore.Handle
	cfg     Config
	metrics metrics.ReaderMetrics

	scheduler *flusher.Scheduler

	mu            sync.Mutex
	cond          *sync.Cond
	cache         map[int64][]byte
	nextFetch     int64
	batch         int64
	lastConfirmed int64
	stopped       bool
}

// New constructs a Worker that starts prefetching from startEntryID. m may
// be nil to disable metrics collection.
func New(handle segmentstore.Handle, startEntryID int64, cfg Config, m metrics.ReaderMetrics) *Worker {
	cfg = cfg.WithDefaults()
	w := &Worker{
		handle:        handle,
		cfg:           cfg,
		metrics:       m,
		cache:         map[int64][]byte{},
		nextFetch:     startEntryID,
		batch:         cfg.InitialBatch,
		lastConfirmed: -1,
	}
	w.cond = sync.NewCond(&w.mu)
	w.scheduler = flusher.New(cfg.PollInterval, w.poll)
	return w
}

// Start begins the polling scheduler.
func (w *Worker) Start(ctx context.Context) { w.scheduler.Start(ctx) }

// Stop halts the polling scheduler and wakes any blocked WaitForEntry call.
func (w *Worker) Stop() {
	w.scheduler.Stop()
	w.mu.Lock()
	w.stopped = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *Worker) poll(ctx context.Context) {
	start := time.Now()

	lastConfirmed, err := w.handle.ReadLastConfirmed(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "read-ahead poll failed", "error", err)
		return
	}

	w.mu.Lock()
	w.lastConfirmed = lastConfirmed
	from := w.nextFetch
	if from > lastConfirmed {
		w.mu.Unlock()
		w.cond.Broadcast()
		return
	}
	to := from + w.batch - 1
	if to > lastConfirmed {
		to = lastConfirmed
	}
	w.mu.Unlock()

	ctx, span := telemetry.StartReadAheadFillSpan(ctx, from, to)
	defer span.End()

	entries, err := w.handle.ReadEntries(ctx, from, to)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "read-ahead batch fetch failed", "from", from, "to", to, "error", err)
		return
	}

	w.mu.Lock()
	for i, data := range entries {
		w.cache[from+int64(i)] = data
	}
	w.nextFetch = to + 1
	filled := to - from + 1
	if filled == w.batch && w.batch < w.cfg.MaxBatch {
		w.batch *= 2
		if w.batch > w.cfg.MaxBatch {
			w.batch = w.cfg.MaxBatch
		}
	}
	nextBatch := w.batch
	w.cond.Broadcast()
	w.mu.Unlock()

	metrics.ObserveReadAheadFill(w.metrics, len(entries), int(nextBatch), time.Since(start))
	logger.DebugCtx(ctx, "read-ahead fill", "from", from, "to", to, "cached_entries", len(entries))
}

// ForceFill runs one fetch cycle synchronously, bypassing the scheduler's
// poll cadence. Used by a caller that has been idle-warned twice and needs
// the cache to catch up immediately rather than wait for the next tick.
func (w *Worker) ForceFill(ctx context.Context) {
	w.poll(ctx)
}

// Get returns entryID's cached payload without blocking.
func (w *Worker) Get(entryID int64) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.cache[entryID]
	return data, ok
}

// Evict drops every cached entry strictly below entryID, reclaiming memory
// for records a reader has already delivered.
func (w *Worker) Evict(belowEntryID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id := range w.cache {
		if id < belowEntryID {
			delete(w.cache, id)
		}
	}
}

// LastConfirmed reports the most recently observed last-confirmed entry id.
func (w *Worker) LastConfirmed() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastConfirmed
}

// WaitForEntry blocks until entryID appears in the cache, the worker is
// stopped, or ctx is cancelled. Used for a forced blocking read when the
// cache hasn't caught up to a record a caller urgently needs.
func (w *Worker) WaitForEntry(ctx context.Context, entryID int64) ([]byte, bool) {
	cancelled := make(chan struct{})
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			close(cancelled)
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		if data, ok := w.cache[entryID]; ok {
			return data, true
		}
		select {
		case <-cancelled:
			return nil, false
		default:
		}
		if w.stopped {
			return nil, false
		}
		w.cond.Wait()
	}
}
