// Package coordinator declares the contract the segment writer, log writer,
// and segment reader use against the external metadata coordinator (a
// ZooKeeper-like service in the production system). This package is an
// interface only: the coordinator itself is an external collaborator.
//
// Reference backends live in sibling packages (pkg/coordinator/memory for
// tests, pkg/coordinator/badgerc for single-process local deployments) and
// are not the "real" coordinator implementation, only stand-ins that let
// the core run without one.
package coordinator

import "context"

// CreateMode controls the lifecycle of a created node.
type CreateMode int

const (
	// Persistent nodes survive session loss.
	Persistent CreateMode = iota
	// Ephemeral nodes are removed when the owning session expires.
	Ephemeral
	// EphemeralSequential nodes are ephemeral and the coordinator appends
	// a monotonically increasing suffix to the requested path, used for
	// lock queue entries.
	EphemeralSequential
)

// Node is a path, its data, and a version used for optimistic concurrency.
type Node struct {
	Path    string
	Data    []byte
	Version int64
}

// WatchEvent is delivered to a watch callback when the watched path
// changes. Watches are one-shot: after firing, the caller must re-register
// to observe further changes.
type WatchEvent struct {
	Path    string
	Type    EventType
	Deleted bool
}

// EventType classifies a WatchEvent.
type EventType int

const (
	EventNodeCreated EventType = iota
	EventNodeDeleted
	EventNodeDataChanged
	EventNodeChildrenChanged
	// EventSessionExpired fires on every outstanding watch when the
	// coordinator session is lost, so watchers don't wait forever on a
	// dead session.
	EventSessionExpired
)

// Coordinator is the external metadata coordinator contract: hierarchical
// nodes with ephemeral semantics, one-shot watches, and session expiration
// broadcast to all registered observers.
type Coordinator interface {
	// Create creates a node at path with the given data and mode. For
	// EphemeralSequential, the returned path has a sequence suffix
	// appended by the coordinator.
	Create(ctx context.Context, path string, data []byte, mode CreateMode) (actualPath string, err error)

	// Read returns the data and version stored at path.
	Read(ctx context.Context, path string) (Node, error)

	// Children lists the immediate child names of path, sorted.
	Children(ctx context.Context, path string) ([]string, error)

	// Watch registers a one-shot callback invoked on the next change to
	// path (data change, deletion, or child-set change), or immediately
	// with EventSessionExpired if the session is already lost.
	Watch(ctx context.Context, path string, cb func(WatchEvent)) error

	// Delete removes path. If expectedVersion is >= 0, the delete is
	// conditioned on the node still being at that version.
	Delete(ctx context.Context, path string, expectedVersion int64) error

	// SetData overwrites the data at path, conditioned on expectedVersion
	// when it is >= 0.
	SetData(ctx context.Context, path string, data []byte, expectedVersion int64) (newVersion int64, err error)

	// OnSessionExpired registers a callback invoked once when this
	// process's coordinator session is lost. Used by Lock, SegmentWriter,
	// LogWriter, and SegmentReader to flip into an errored state.
	OnSessionExpired(cb func())

	// Close releases the coordinator session.
	Close() error
}

// ErrNoNode is returned by Read/Children/Delete/SetData when the path does
// not exist.
type ErrNoNode struct{ Path string }

func (e *ErrNoNode) Error() string { return "coordinator: no node at " + e.Path }

// ErrVersionMismatch is returned by conditioned Delete/SetData calls.
type ErrVersionMismatch struct{ Path string }

func (e *ErrVersionMismatch) Error() string {
	return "coordinator: version mismatch at " + e.Path
}

// ErrNodeExists is returned by Create when path already exists and the
// mode does not tolerate collisions (i.e. anything but
// EphemeralSequential).
type ErrNodeExists struct{ Path string }

func (e *ErrNodeExists) Error() string { return "coordinator: node exists at " + e.Path }
