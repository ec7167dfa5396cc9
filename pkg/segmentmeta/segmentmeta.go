// Package segmentmeta implements the segment metadata store: the
// coordinator-backed ledger of in-progress/complete segment state transitions
// that the log writer, segment writer, and segment reader all consult to
// agree on which segments exist, their boundaries, and the stream's
// truncation low-water-mark.
package segmentmeta

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"

	"github.com/dlogio/dlog/pkg/coordinator"
	"github.com/dlogio/dlog/pkg/dlogerr"
	"github.com/dlogio/dlog/pkg/position"
)

// State is a segment's place in its create → complete lifecycle (I: no
// resurrection, transitions are strictly one-directional).
type State int

const (
	InProgress State = iota
	Complete
)

func (s State) String() string {
	if s == Complete {
		return "complete"
	}
	return "in-progress"
}

// Metadata is the full set of attributes the coordinator tracks for one
// segment.
type Metadata struct {
	SegmentSeq    int64
	FirstEntrySeq int64
	LastEntrySeq  int64
	StartTxID     int64
	LastTxID      int64
	State         State
	RegionID      int64
	// RecordCount backs the record-count rolling threshold: the number of
	// user records (control and end-of-stream records excluded) appended
	// to this segment.
	RecordCount int64
}

// znode layout version. Additive fields go after the existing ones; the
// decoder tolerates unknown trailing bytes (forward compatibility) and
// rejects unknown leading version bytes.
const layoutVersion byte = 1

const minEncodedLen = 1 + 8*7 + 1 // version + 7 int64 fields + state byte

func encode(m Metadata) []byte {
	buf := make([]byte, minEncodedLen)
	buf[0] = layoutVersion
	off := 1
	putI64 := func(v int64) {
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(v))
		off += 8
	}
	putI64(m.SegmentSeq)
	putI64(m.FirstEntrySeq)
	putI64(m.LastEntrySeq)
	putI64(m.StartTxID)
	putI64(m.LastTxID)
	putI64(m.RegionID)
	putI64(m.RecordCount)
	buf[off] = byte(m.State)
	return buf
}

func decode(b []byte) (Metadata, error) {
	if len(b) < minEncodedLen {
		return Metadata{}, fmt.Errorf("segmentmeta: truncated znode, %d bytes", len(b))
	}
	if b[0] != layoutVersion {
		return Metadata{}, fmt.Errorf("segmentmeta: unknown layout version %d", b[0])
	}
	off := 1
	getI64 := func() int64 {
		v := int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
		return v
	}
	m := Metadata{
		SegmentSeq:    getI64(),
		FirstEntrySeq: getI64(),
		LastEntrySeq:  getI64(),
		StartTxID:     getI64(),
		LastTxID:      getI64(),
		RegionID:      getI64(),
		RecordCount:   getI64(),
		State:         State(b[off]),
	}
	// Trailing bytes beyond off+1 are tolerated unread: forward compat.
	return m, nil
}

// StartPosition is the lower-bound position of the first record this
// segment could contain.
func (m Metadata) StartPosition() position.Position {
	return position.Position{SegmentSeq: m.SegmentSeq, EntryID: 0, SlotID: -1}
}

// Store is the coordinator-backed metadata ledger for one stream.
type Store struct {
	coord      coordinator.Coordinator
	streamPath string
}

// New binds a Store to the znode subtree for a stream, e.g.
// "/dlog/streams/<name>". Segment nodes live under its "segments" child and
// the truncation mark under its "truncation" child.
func New(coord coordinator.Coordinator, streamPath string) *Store {
	return &Store{coord: coord, streamPath: streamPath}
}

func (s *Store) segmentsRoot() string { return path.Join(s.streamPath, "segments") }

func (s *Store) segmentPath(seq int64) string {
	return path.Join(s.segmentsRoot(), fmt.Sprintf("%020d", seq))
}

func (s *Store) truncationPath() string { return path.Join(s.streamPath, "truncation") }

// CreateInProgress records a new in-progress segment. Called by the holder
// of the stream lock (Log Writer) when opening a segment, either the
// stream's first or the result of a roll.
func (s *Store) CreateInProgress(ctx context.Context, segmentSeq, startTxID, regionID int64) error {
	m := Metadata{
		SegmentSeq: segmentSeq,
		StartTxID:  startTxID,
		LastTxID:   startTxID,
		RegionID:   regionID,
		State:      InProgress,
	}
	if _, err := s.coord.Create(ctx, s.segmentsRoot(), nil, coordinator.Persistent); err != nil {
		var exists *coordinator.ErrNodeExists
		if !errors.As(err, &exists) {
			return fmt.Errorf("segmentmeta: create segments root: %w", err)
		}
	}
	_, err := s.coord.Create(ctx, s.segmentPath(segmentSeq), encode(m), coordinator.Persistent)
	if err != nil {
		return fmt.Errorf("segmentmeta: create in-progress segment %d: %w", segmentSeq, err)
	}
	return nil
}

// Complete transitions a segment from in-progress to complete, recording
// its observed boundaries. It is an error (I: no resurrection) to call
// Complete on an already-complete segment.
func (s *Store) Complete(ctx context.Context, segmentSeq, lastEntrySeq, lastTxID, recordCount int64) error {
	p := s.segmentPath(segmentSeq)
	node, err := s.coord.Read(ctx, p)
	if err != nil {
		return fmt.Errorf("segmentmeta: read segment %d: %w", segmentSeq, err)
	}
	m, err := decode(node.Data)
	if err != nil {
		return err
	}
	if m.State == Complete {
		return fmt.Errorf("segmentmeta: segment %d already complete", segmentSeq)
	}
	m.LastEntrySeq = lastEntrySeq
	m.LastTxID = lastTxID
	m.RecordCount = recordCount
	m.State = Complete
	if _, err := s.coord.SetData(ctx, p, encode(m), node.Version); err != nil {
		return fmt.Errorf("segmentmeta: complete segment %d: %w", segmentSeq, err)
	}
	return nil
}

// List returns every segment's metadata, ordered by SegmentSeq ascending
// (I2: segment_seq increases strictly across consecutive segments).
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	children, err := s.coord.Children(ctx, s.segmentsRoot())
	if err != nil {
		if _, ok := err.(*coordinator.ErrNoNode); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("segmentmeta: list segments: %w", err)
	}
	out := make([]Metadata, 0, len(children))
	for _, name := range children {
		node, err := s.coord.Read(ctx, path.Join(s.segmentsRoot(), name))
		if err != nil {
			return nil, fmt.Errorf("segmentmeta: read segment %q: %w", name, err)
		}
		m, err := decode(node.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentSeq < out[j].SegmentSeq })
	return out, nil
}

// Get returns a single segment's metadata.
func (s *Store) Get(ctx context.Context, segmentSeq int64) (Metadata, error) {
	node, err := s.coord.Read(ctx, s.segmentPath(segmentSeq))
	if err != nil {
		return Metadata{}, fmt.Errorf("segmentmeta: read segment %d: %w", segmentSeq, err)
	}
	return decode(node.Data)
}

// MarkTruncatedBelow records p as the stream's truncation low-water-mark.
// It is idempotent: writing the same or a lower position twice leaves the
// stored mark unchanged in outcome.
func (s *Store) MarkTruncatedBelow(ctx context.Context, p position.Position) error {
	data := position.Encode(p)
	node, err := s.coord.Read(ctx, s.truncationPath())
	if err != nil {
		if _, ok := err.(*coordinator.ErrNoNode); ok {
			_, err := s.coord.Create(ctx, s.truncationPath(), data, coordinator.Persistent)
			return err
		}
		return fmt.Errorf("segmentmeta: read truncation mark: %w", err)
	}
	existing, err := position.Decode(node.Data)
	if err == nil && !existing.Less(p) {
		// Existing mark already at or above p: idempotent no-op.
		return nil
	}
	_, err = s.coord.SetData(ctx, s.truncationPath(), data, node.Version)
	return err
}

// TruncationMark returns the stream's current low-water-mark, or
// position.Invalid if none has been set.
func (s *Store) TruncationMark(ctx context.Context) (position.Position, error) {
	node, err := s.coord.Read(ctx, s.truncationPath())
	if err != nil {
		if _, ok := err.(*coordinator.ErrNoNode); ok {
			return position.Invalid, nil
		}
		return position.Invalid, fmt.Errorf("segmentmeta: read truncation mark: %w", err)
	}
	return position.Decode(node.Data)
}

// CheckNotTruncated returns dlogerr.ErrTruncated if p falls below the
// stream's current truncation mark.
func (s *Store) CheckNotTruncated(ctx context.Context, p position.Position) error {
	mark, err := s.TruncationMark(ctx)
	if err != nil {
		return err
	}
	if mark != position.Invalid && p.Less(mark) {
		return dlogerr.ErrTruncated
	}
	return nil
}

// WatchCompletion registers a one-shot callback invoked when segmentSeq
// transitions to complete (observed as a data-change event on its znode,
// since completion rewrites the node rather than deleting it) or when the
// coordinator session expires.
func (s *Store) WatchCompletion(ctx context.Context, segmentSeq int64, cb func()) error {
	return s.coord.Watch(ctx, s.segmentPath(segmentSeq), func(ev coordinator.WatchEvent) {
		cb()
	})
}

// parseSeqName recovers the numeric segment_seq encoded in a znode's base
// name, used by callers that only have a Children() listing.
func parseSeqName(name string) (int64, error) {
	return strconv.ParseInt(name, 10, 64)
}
