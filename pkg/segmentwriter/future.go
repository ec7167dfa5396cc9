package segmentwriter

import (
	"context"

	"github.com/dlogio/dlog/pkg/position"
)

// Future is resolved exactly once, either with the position a record was
// assigned on acknowledgement, or with the error that failed its
// containing transmission unit. Exported so a caller composing across
// packages (the log writer's pending-write queue during a roll) can hand
// one out before the record is actually submitted to a segment writer.
type Future struct {
	done chan struct{}
	pos  position.Position
	err  error
}

// NewFuture creates an unresolved Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func newFuture() *Future {
	return NewFuture()
}

// Resolve satisfies f with pos. Calling Resolve or Fail more than once
// panics, mirroring a promise that must settle exactly once.
func (f *Future) Resolve(pos position.Position) {
	f.pos = pos
	close(f.done)
}

// Fail satisfies f with err.
func (f *Future) Fail(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until f resolves or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (position.Position, error) {
	select {
	case <-f.done:
		return f.pos, f.err
	case <-ctx.Done():
		return position.Position{}, ctx.Err()
	}
}

// Done reports whether f has resolved, without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
