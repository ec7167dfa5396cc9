// Package flusher implements a small pool of periodic background tasks
// that drive the segment writer's periodic flush and the read-ahead
// worker's last-confirmed polling, independent of the per-stream ordered
// task queue that carries the write path itself.
package flusher

import (
	"context"
	"sync"
	"time"

	"github.com/dlogio/dlog/internal/logger"
)

// Task is a periodic unit of work posted to a Scheduler. It is invoked with
// a fresh context derived from the scheduler's own, cancelled on Stop.
type Task func(ctx context.Context)

// Scheduler runs a single Task on a fixed interval until stopped. The
// segment writer creates one Scheduler per periodic-flush policy; the
// read-ahead worker creates one per tailed segment.
type Scheduler struct {
	period time.Duration
	task   Task

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Scheduler that will invoke task every period once Start is
// called. It does not start the ticker itself.
func New(period time.Duration, task Task) *Scheduler {
	return &Scheduler{period: period, task: task}
}

// Start begins firing task every period, derived from ctx. Calling Start on
// an already-running Scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.period <= 0 {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(runCtx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "scheduled task panicked", "recovered", r)
		}
	}()
	s.task(ctx)
}

// Stop cancels the scheduler and waits for its goroutine to exit. Safe to
// call on a Scheduler that was never started, and more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}
