// Package segmentstore declares the contract the segment writer and reader
// use against the external entry store (a BookKeeper-like service in the
// production system): create, open, fence, append, read-last-confirmed,
// read-entries, close. This package is an interface only; reference
// backends live in sibling packages and are not the "real" segment store.
package segmentstore

import (
	"context"
	"errors"
)

// ErrFenced is returned by Append once a newer writer has taken ownership
// of the segment, or when the handle was not opened for writing.
var ErrFenced = errors.New("segmentstore: fenced by newer writer")

// ErrNoSuchEntry is returned by ReadEntries when the requested range
// extends past the last durably appended entry.
var ErrNoSuchEntry = errors.New("segmentstore: entry id out of range")

// Handle is an opened segment-store object bound to one segment.
//
// All methods are safe for concurrent use; the segment writer serializes
// its own calls via its critical section, but readers may call
// ReadEntries/ReadLastConfirmed concurrently with an independent handle on
// the same segment.
type Handle interface {
	// Append submits data as one new entry, returning its assigned
	// entry id. Fails with ErrFenced if a newer writer holds this
	// segment's fence epoch.
	Append(ctx context.Context, data []byte) (entryID int64, err error)

	// ReadLastConfirmed returns the highest entry id known to be durably
	// committed, or -1 if none have been confirmed yet.
	ReadLastConfirmed(ctx context.Context) (int64, error)

	// ReadEntries returns entries [from, to] inclusive. Returns
	// ErrNoSuchEntry if to exceeds the last confirmed entry.
	ReadEntries(ctx context.Context, from, to int64) ([][]byte, error)

	// Close releases the handle. For a writer's handle, this also drops
	// its fence epoch so a subsequent writer on the same segment ID
	// would need to re-fence via Open.
	Close(ctx context.Context) error
}

// Store opens and creates segment-store objects identified by an opaque
// segment id (the core uses the decimal segment_seq as the id).
type Store interface {
	// Create creates a new segment object and opens it for writing,
	// fencing off any existing writer on that id.
	Create(ctx context.Context, segmentID string) (Handle, error)

	// Open opens an existing segment object. forWrite fences any prior
	// writer (used when a roll needs to finish writing the old segment,
	// or when recovering ownership after a crash); forWrite=false opens
	// a read-only handle that never fences.
	Open(ctx context.Context, segmentID string, forWrite bool) (Handle, error)

	// Delete permanently removes a segment object's backing storage,
	// used by truncation.
	Delete(ctx context.Context, segmentID string) error
}
