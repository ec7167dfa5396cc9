package segmentreader

import (
	"context"
	"sync"

	"github.com/dlogio/dlog/pkg/dlogerr"
	"github.com/dlogio/dlog/pkg/position"
	"github.com/dlogio/dlog/pkg/record"
)

// Delivered pairs one user record with the position it was read from.
type Delivered struct {
	Record   record.Record
	Position position.Position
}

// Future is the handle returned by ReadNext/ReadBulk: it settles exactly
// once, either with a batch of delivered records or with an error.
//
// resolve and fail may both be called from more than one goroutine path
// (the consumer loop completing the request normally, or Close draining
// it concurrently); only the first call has any effect.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	delivered []Delivered
	err       error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(delivered []Delivered) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return
	}
	f.settled = true
	f.delivered = delivered
	close(f.done)
}

func (f *Future) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return
	}
	f.settled = true
	f.err = err
	close(f.done)
}

// Done reports whether f has already settled.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until f settles or ctx is cancelled, returning the delivered
// batch (possibly shorter than requested at end of stream) or the error it
// failed with.
func (f *Future) Wait(ctx context.Context) ([]Delivered, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.delivered, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitOne is the read_next convenience form: it expects exactly one
// delivered record and reports dlogerr.ErrEndOfStream if the batch came
// back empty without an error (the stream ended with nothing left to
// deliver).
func (f *Future) WaitOne(ctx context.Context) (Delivered, error) {
	delivered, err := f.Wait(ctx)
	if err != nil {
		return Delivered{}, err
	}
	if len(delivered) == 0 {
		return Delivered{}, dlogerr.ErrEndOfStream
	}
	return delivered[0], nil
}
