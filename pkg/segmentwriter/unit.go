package segmentwriter

import (
	"github.com/dlogio/dlog/pkg/bufpool"
	"github.com/dlogio/dlog/pkg/record"
)

// transmissionUnit is one buffered batch of records submitted as a single
// segment-store append and acknowledged atomically. Its promise list is
// owned by the unit itself; ownership transfers with it on hand-off to
// submit. buf is borrowed from bufpool at creation and returned once the
// unit is done being packed into, since every append during packing would
// otherwise repeatedly reallocate and copy as the slice grows toward
// MaxTransmissionSize.
type transmissionUnit struct {
	buf        []byte
	promises   []*Future
	isControl  bool
	segmentSeq int64
	lastTxID   int64
}

func newTransmissionUnit(segmentSeq int64) *transmissionUnit {
	return &transmissionUnit{segmentSeq: segmentSeq, buf: bufpool.Get(record.MaxTransmissionSize)[:0]}
}

func (u *transmissionUnit) empty() bool { return len(u.buf) == 0 }

// release returns u.buf to bufpool. Must only be called once no code
// holds a reference into u.buf, i.e. after the segment store's Append has
// returned (every backend copies the bytes it's given) and every promise
// referencing this unit has been resolved or failed.
func (u *transmissionUnit) release() {
	bufpool.Put(u.buf)
	u.buf = nil
}
