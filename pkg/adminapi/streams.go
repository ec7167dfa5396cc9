package adminapi

import (
	"context"

	"github.com/dlogio/dlog/pkg/catalog"
	"github.com/dlogio/dlog/pkg/position"
	"github.com/dlogio/dlog/pkg/segmentmeta"
)

// StreamManager is everything the admin API needs from the running daemon:
// the stream catalog plus the per-stream operations a live LogWriter
// exposes. cmd/dlogd supplies the concrete implementation, wiring together
// its catalog.Store and the map of running pkg/logwriter.LogWriter
// instances keyed by stream name.
//
// The read surface (ListStreams, GetStream, ListSegments) never touches a
// live writer; the mutating surface (Truncate, MarkEndOfStream, ForceRoll)
// requires the named stream to have a running writer and returns
// ErrStreamNotRunning otherwise.
type StreamManager interface {
	ListStreams(ctx context.Context) ([]*catalog.Stream, error)
	GetStream(ctx context.Context, name string) (*catalog.Stream, error)
	ListSegments(ctx context.Context, name string) ([]segmentmeta.Metadata, error)
	Truncate(ctx context.Context, name string, pos position.Position) error
	MarkEndOfStream(ctx context.Context, name string) error
	ForceRoll(ctx context.Context, name string) error
}

// StreamView is the admin API's JSON representation of a catalog stream,
// kept separate from catalog.Stream so the gorm model's storage shape is
// free to change without breaking the wire contract.
type StreamView struct {
	Name              string `json:"name"`
	CreatedAt         string `json:"created_at"`
	TruncatedPosition string `json:"truncated_position"`
}

func newStreamView(s *catalog.Stream) StreamView {
	return StreamView{
		Name:              s.Name,
		CreatedAt:         s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		TruncatedPosition: position.Position{SegmentSeq: s.TruncatedSegmentSeq, EntryID: s.TruncatedEntryID, SlotID: s.TruncatedSlotID}.String(),
	}
}

// SegmentView is the admin API's JSON representation of one segment's
// metadata.
type SegmentView struct {
	SegmentSeq    int64  `json:"segment_seq"`
	State         string `json:"state"`
	FirstEntrySeq int64  `json:"first_entry_seq"`
	LastEntrySeq  int64  `json:"last_entry_seq"`
	StartTxID     int64  `json:"start_txid"`
	LastTxID      int64  `json:"last_txid"`
	RegionID      int64  `json:"region_id"`
	RecordCount   int64  `json:"record_count"`
}

func newSegmentView(m segmentmeta.Metadata) SegmentView {
	return SegmentView{
		SegmentSeq:    m.SegmentSeq,
		State:         m.State.String(),
		FirstEntrySeq: m.FirstEntrySeq,
		LastEntrySeq:  m.LastEntrySeq,
		StartTxID:     m.StartTxID,
		LastTxID:      m.LastTxID,
		RegionID:      m.RegionID,
		RecordCount:   m.RecordCount,
	}
}
