// Package position implements the stream-unique (segment_seq, entry_id,
// slot_id) record coordinate and its wire serialization.
package position

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Version identifies a Position's on-the-wire byte layout.
type Version byte

const (
	// V0 is the deprecated layout, kept only for decoding old data.
	V0 Version = 0
	// V1 is the current layout.
	V1 Version = 1

	// encodedLen is the fixed length of both v0 and v1 encodings: one
	// version byte plus three big-endian int64 fields.
	encodedLen = 1 + 8*3

	// CurrentVersion is the version written by Encode.
	CurrentVersion = V1
)

// Position is a stream-unique record coordinate. Within a stream it forms
// a strict total order under lexicographic comparison of its three fields
// in order.
type Position struct {
	SegmentSeq int64
	EntryID    int64
	SlotID     int64
}

// Invalid is the zero-value sentinel position, never assigned to a real
// record.
var Invalid = Position{SegmentSeq: 0, EntryID: -1, SlotID: -1}

// InitialLowerBound is the smallest position a reader may legitimately be
// asked to start from: the very first record of the very first segment.
var InitialLowerBound = Position{SegmentSeq: 1, EntryID: 0, SlotID: -1}

// Compare returns -1, 0, or 1 as p is less than, equal to, or greater than
// o, ordering first by SegmentSeq, then EntryID, then SlotID.
func (p Position) Compare(o Position) int {
	switch {
	case p.SegmentSeq != o.SegmentSeq:
		return cmp(p.SegmentSeq, o.SegmentSeq)
	case p.EntryID != o.EntryID:
		return cmp(p.EntryID, o.EntryID)
	default:
		return cmp(p.SlotID, o.SlotID)
	}
}

func cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether p sorts strictly before o.
func (p Position) Less(o Position) bool { return p.Compare(o) < 0 }

// NextSegment returns the lower-bound position of the segment immediately
// following p's, used by the reader when it exhausts a completed segment.
func (p Position) NextSegment() Position {
	return Position{SegmentSeq: p.SegmentSeq + 1, EntryID: 0, SlotID: -1}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.SegmentSeq, p.EntryID, p.SlotID)
}

// Encode serializes p using CurrentVersion (v1): one version byte followed
// by three big-endian int64 fields, 25 bytes total.
func Encode(p Position) []byte {
	buf := make([]byte, encodedLen)
	buf[0] = byte(CurrentVersion)
	binary.BigEndian.PutUint64(buf[1:9], uint64(p.SegmentSeq))
	binary.BigEndian.PutUint64(buf[9:17], uint64(p.EntryID))
	binary.BigEndian.PutUint64(buf[17:25], uint64(p.SlotID))
	return buf
}

// Decode parses a serialized Position, accepting both the v0 and v1
// layouts (they share the same byte shape; only the version byte differs).
// It rejects inputs of the wrong length and unrecognized version bytes.
func Decode(b []byte) (Position, error) {
	if len(b) != encodedLen {
		return Position{}, fmt.Errorf("position: wrong length %d, want %d", len(b), encodedLen)
	}
	v := Version(b[0])
	if v != V0 && v != V1 {
		return Position{}, fmt.Errorf("position: unknown version %d", v)
	}
	return Position{
		SegmentSeq: int64(binary.BigEndian.Uint64(b[1:9])),
		EntryID:    int64(binary.BigEndian.Uint64(b[9:17])),
		SlotID:     int64(binary.BigEndian.Uint64(b[17:25])),
	}, nil
}

// EncodeString base64-encodes the v1 wire form for carrying a Position in
// user-facing APIs.
func EncodeString(p Position) string {
	return base64.StdEncoding.EncodeToString(Encode(p))
}

// DecodeString is the inverse of EncodeString.
func DecodeString(s string) (Position, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Position{}, fmt.Errorf("position: invalid base64: %w", err)
	}
	return Decode(b)
}
