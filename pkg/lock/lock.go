// Package lock implements a distributed single-writer lock: an
// ephemeral-sequential node under the coordinator, with the lowest
// sequence number holding the lock and every other contender watching its
// immediate predecessor.
package lock

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dlogio/dlog/internal/logger"
	"github.com/dlogio/dlog/pkg/coordinator"
)

// ErrSessionExpired is delivered to every registered dependent when the
// coordinator session backing the lock is lost.
type ErrSessionExpired struct{ LockPath string }

func (e *ErrSessionExpired) Error() string {
	return fmt.Sprintf("lock: session expired holding %s", e.LockPath)
}

// DistributedLock guards at-most-one-writer access to a stream. It is
// reentrant within a process via reason tags: N acquisitions with
// distinct reasons each hold a reference; the underlying coordinator node
// is released only once every reason has called Release.
type DistributedLock struct {
	coord    coordinator.Coordinator
	basePath string

	mu         sync.Mutex
	ownedPath  string
	held       bool
	reasons    map[string]struct{}
	expired    bool
	dependents []func(error)
}

// New creates a lock bound to basePath (e.g. "/locks/streams/my-stream").
// The node itself is created lazily on first Acquire.
func New(coord coordinator.Coordinator, basePath string) *DistributedLock {
	l := &DistributedLock{
		coord:    coord,
		basePath: basePath,
		reasons:  map[string]struct{}{},
	}
	coord.OnSessionExpired(l.onSessionExpired)
	return l
}

// OnExpire registers a dependent (SegmentWriter, LogWriter, SegmentReader)
// to be notified when this lock's session is lost, so it can flip into an
// errored state.
func (l *DistributedLock) OnExpire(cb func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dependents = append(l.dependents, cb)
}

// Acquire blocks until reason holds the lock, or ctx is cancelled, or the
// session expires while waiting. Calling Acquire again with a reason
// already held is a no-op: reasons are not counted, so a single Release
// of that reason drops its hold.
func (l *DistributedLock) Acquire(ctx context.Context, reason string) error {
	l.mu.Lock()
	if l.expired {
		l.mu.Unlock()
		return &ErrSessionExpired{LockPath: l.basePath}
	}
	if l.held {
		l.reasons[reason] = struct{}{}
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if _, err := l.coord.Create(ctx, l.basePath, nil, coordinator.Persistent); err != nil {
		var exists *coordinator.ErrNodeExists
		if !errors.As(err, &exists) {
			return fmt.Errorf("lock: create lock node: %w", err)
		}
	}

	lockNodeBase := path.Join(l.basePath, "lock-")
	ownedPath, err := l.coord.Create(ctx, lockNodeBase, nil, coordinator.EphemeralSequential)
	if err != nil {
		return fmt.Errorf("lock: create contender node: %w", err)
	}

	for {
		lower, err := l.lowestUnacquiredAncestor(ctx, ownedPath)
		if err != nil {
			return err
		}
		if lower == "" {
			break
		}

		woken := make(chan struct{}, 1)
		if err := l.coord.Watch(ctx, lower, func(ev coordinator.WatchEvent) {
			select {
			case woken <- struct{}{}:
			default:
			}
		}); err != nil {
			return fmt.Errorf("lock: watch predecessor: %w", err)
		}

		select {
		case <-woken:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	l.ownedPath = ownedPath
	l.held = true
	l.reasons[reason] = struct{}{}
	l.mu.Unlock()

	logger.InfoCtx(ctx, "lock acquired", "path", ownedPath)
	return nil
}

// lowestUnacquiredAncestor returns the path of the contender whose
// sequence number immediately precedes ownedPath's, or "" if ownedPath is
// already the lowest (i.e. the lock is held).
func (l *DistributedLock) lowestUnacquiredAncestor(ctx context.Context, ownedPath string) (string, error) {
	children, err := l.coord.Children(ctx, l.basePath)
	if err != nil {
		return "", fmt.Errorf("lock: list contenders: %w", err)
	}
	sort.Slice(children, func(i, j int) bool { return seqOf(children[i]) < seqOf(children[j]) })

	own := path.Base(ownedPath)
	for i, name := range children {
		if name == own {
			if i == 0 {
				return "", nil
			}
			return path.Join(l.basePath, children[i-1]), nil
		}
	}
	return "", fmt.Errorf("lock: own node %s missing from contenders", own)
}

func seqOf(name string) int64 {
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return 0
	}
	n, _ := strconv.ParseInt(name[idx+1:], 10, 64)
	return n
}

// Release drops reason's hold. The coordinator node is deleted only once
// no reason remains.
func (l *DistributedLock) Release(ctx context.Context, reason string) error {
	l.mu.Lock()
	delete(l.reasons, reason)
	remaining := len(l.reasons)
	ownedPath := l.ownedPath
	wasHeld := l.held
	if remaining == 0 {
		l.held = false
		l.ownedPath = ""
	}
	l.mu.Unlock()

	if remaining > 0 || !wasHeld || l.expired {
		return nil
	}

	if err := l.coord.Delete(ctx, ownedPath, -1); err != nil {
		return fmt.Errorf("lock: release %s: %w", ownedPath, err)
	}
	logger.InfoCtx(ctx, "lock released", "path", ownedPath)
	return nil
}

// Held reports whether this process currently holds the lock.
func (l *DistributedLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held && !l.expired
}

func (l *DistributedLock) onSessionExpired() {
	l.mu.Lock()
	l.expired = true
	l.held = false
	deps := append([]func(error){}, l.dependents...)
	lockPath := l.basePath
	l.mu.Unlock()

	err := &ErrSessionExpired{LockPath: lockPath}
	for _, dep := range deps {
		dep(err)
	}
}
