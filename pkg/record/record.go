// Package record defines the user record wire format and the limits and
// flags that govern it.
package record

import (
	"encoding/binary"
	"fmt"

	"github.com/dlogio/dlog/internal/bytesize"
	"github.com/dlogio/dlog/pkg/dlogerr"
)

// Flag bits carried in a record's flags field.
const (
	FlagControl     uint64 = 1 << 0
	FlagEndOfStream uint64 = 1 << 1
)

const (
	// MaxRecordSize is the largest payload a single record may carry:
	// 1 MiB minus 8 KiB of framing headroom.
	MaxRecordSize = int(1*bytesize.MiB - 8*bytesize.KiB)

	// MaxTransmissionSize is the largest a packed transmission unit may
	// grow before it must be flushed: 1 MiB minus 4 KiB.
	MaxTransmissionSize = int(1*bytesize.MiB - 4*bytesize.KiB)

	// MaxTxID is the reserved transaction id of the end-of-stream marker;
	// user records must never use it.
	MaxTxID int64 = 1<<63 - 1

	// InvalidTxID marks a record whose txid was never assigned.
	InvalidTxID int64 = -999

	// EmptySegmentTxID is reported for a segment with no records.
	EmptySegmentTxID int64 = -99

	// headerSize is the fixed-size prefix before a record's payload:
	// 8 bytes flags + 8 bytes txid + 4 bytes payload length.
	headerSize = 8 + 8 + 4
)

// Record is one user entry: a bit of metadata plus an opaque payload.
type Record struct {
	Flags   uint64
	TxID    int64
	Payload []byte
}

// IsControl reports whether r is a control record.
func (r Record) IsControl() bool { return r.Flags&FlagControl != 0 }

// IsEndOfStream reports whether r is the terminal end-of-stream marker.
func (r Record) IsEndOfStream() bool { return r.Flags&FlagEndOfStream != 0 }

// EncodedLen returns the on-the-wire persistent size of r:
// 16 bytes of flags+txid, 4 bytes of length, plus the payload.
func (r Record) EncodedLen() int {
	return headerSize + len(r.Payload)
}

// NewControl builds a control record carrying the given observed txid. Its
// payload is a short opaque marker, not meant to be interpreted by readers.
func NewControl(txid int64) Record {
	return Record{Flags: FlagControl, TxID: txid, Payload: []byte("ctrl")}
}

// NewEndOfStream builds the reserved terminal record.
func NewEndOfStream() Record {
	return Record{Flags: FlagEndOfStream, TxID: MaxTxID, Payload: nil}
}

// Validate checks r against the size and txid invariants a writer must
// enforce before buffering the record. allowMaxTxID permits TxID ==
// MaxTxID only on the end-of-stream marker path.
// maxSize is the caller's configured record size cap; pass MaxRecordSize
// to enforce only the wire-format limit.
func Validate(r Record, maxSize int, allowMaxTxID bool) error {
	if len(r.Payload) > maxSize {
		return dlogerr.New(dlogerr.ErrOverLimit,
			fmt.Errorf("record of %d bytes exceeds max %d", len(r.Payload), maxSize))
	}
	if r.IsEndOfStream() {
		return nil
	}
	if r.TxID < 0 || (r.TxID == MaxTxID && !allowMaxTxID) {
		return dlogerr.New(dlogerr.ErrInvalidTxID, fmt.Errorf("txid %d", r.TxID))
	}
	return nil
}

// Append encodes r and appends it to buf, returning the extended slice.
func Append(buf []byte, r Record) []byte {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint64(hdr[0:8], r.Flags)
	binary.BigEndian.PutUint64(hdr[8:16], uint64(r.TxID))
	binary.BigEndian.PutUint32(hdr[16:20], uint32(len(r.Payload)))
	buf = append(buf, hdr[:]...)
	buf = append(buf, r.Payload...)
	return buf
}

// Reader iterates the records packed into one transmission unit's buffer
// without copying the payload bytes out of buf.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf for sequential record iteration.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Next returns the next record in the buffer, or io.EOF-equivalent false
// once the buffer is exhausted. It returns an error on a truncated buffer
// or a negative length field, both integrity failures.
func (r *Reader) Next() (Record, bool, error) {
	if r.off == len(r.buf) {
		return Record{}, false, nil
	}
	if r.off+headerSize > len(r.buf) {
		return Record{}, false, fmt.Errorf("record: truncated header at offset %d", r.off)
	}
	flags := binary.BigEndian.Uint64(r.buf[r.off : r.off+8])
	txid := int64(binary.BigEndian.Uint64(r.buf[r.off+8 : r.off+16]))
	length := int32(binary.BigEndian.Uint32(r.buf[r.off+16 : r.off+20]))
	if length < 0 {
		return Record{}, false, fmt.Errorf("record: corrupt negative payload length %d", length)
	}
	start := r.off + headerSize
	end := start + int(length)
	if end > len(r.buf) {
		return Record{}, false, fmt.Errorf("record: truncated payload at offset %d", r.off)
	}
	rec := Record{Flags: flags, TxID: txid, Payload: r.buf[start:end]}
	r.off = end
	return rec, true, nil
}

// Skip advances past the next record without allocating or copying its
// payload, returning only the number of bytes consumed. Used by the reader
// to scan to a resume position without materializing skipped records.
func (r *Reader) Skip() (int, error) {
	if r.off+headerSize > len(r.buf) {
		return 0, fmt.Errorf("record: truncated header at offset %d", r.off)
	}
	length := int32(binary.BigEndian.Uint32(r.buf[r.off+16 : r.off+20]))
	if length < 0 {
		return 0, fmt.Errorf("record: corrupt negative payload length %d", length)
	}
	consumed := headerSize + int(length)
	if r.off+consumed > len(r.buf) {
		return 0, fmt.Errorf("record: truncated payload at offset %d", r.off)
	}
	r.off += consumed
	return consumed, nil
}

// Count returns the number of complete records remaining in the buffer
// without mutating r's cursor, used to size promise lists up front.
func Count(buf []byte) (int, error) {
	r := NewReader(buf)
	n := 0
	for {
		if _, more, err := r.Next(); err != nil {
			return 0, err
		} else if !more {
			return n, nil
		}
		n++
	}
}
