// Package memory is an in-memory reference implementation of
// segmentstore.Store, used by unit and integration tests.
package memory

import (
	"context"
	"sync"

	"github.com/dlogio/dlog/pkg/segmentstore"
)

type segment struct {
	mu            sync.Mutex
	entries       [][]byte
	lastConfirmed int64
	epoch         int64
	deleted       bool
}

// Store is the in-memory backend. The zero value is not usable; use New.
type Store struct {
	mu       sync.Mutex
	segments map[string]*segment
}

// New returns an empty Store.
func New() *Store {
	return &Store{segments: map[string]*segment{}}
}

func (s *Store) getOrCreate(id string) *segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	if !ok {
		seg = &segment{lastConfirmed: -1}
		s.segments[id] = seg
	}
	return seg
}

func (s *Store) Create(_ context.Context, segmentID string) (segmentstore.Handle, error) {
	seg := s.getOrCreate(segmentID)
	seg.mu.Lock()
	seg.epoch++
	epoch := seg.epoch
	seg.mu.Unlock()
	return &handle{store: s, id: segmentID, seg: seg, epoch: epoch, canWrite: true}, nil
}

func (s *Store) Open(_ context.Context, segmentID string, forWrite bool) (segmentstore.Handle, error) {
	s.mu.Lock()
	seg, ok := s.segments[segmentID]
	s.mu.Unlock()
	if !ok {
		seg = s.getOrCreate(segmentID)
	}

	epoch := int64(0)
	if forWrite {
		seg.mu.Lock()
		seg.epoch++
		epoch = seg.epoch
		seg.mu.Unlock()
	}
	return &handle{store: s, id: segmentID, seg: seg, epoch: epoch, canWrite: forWrite}, nil
}

func (s *Store) Delete(_ context.Context, segmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seg, ok := s.segments[segmentID]; ok {
		seg.mu.Lock()
		seg.deleted = true
		seg.mu.Unlock()
	}
	delete(s.segments, segmentID)
	return nil
}

type handle struct {
	store    *Store
	id       string
	seg      *segment
	epoch    int64
	canWrite bool
}

func (h *handle) Append(_ context.Context, data []byte) (int64, error) {
	h.seg.mu.Lock()
	defer h.seg.mu.Unlock()

	if !h.canWrite || h.seg.epoch != h.epoch || h.seg.deleted {
		return 0, segmentstore.ErrFenced
	}
	h.seg.entries = append(h.seg.entries, append([]byte(nil), data...))
	entryID := int64(len(h.seg.entries) - 1)
	h.seg.lastConfirmed = entryID
	return entryID, nil
}

func (h *handle) ReadLastConfirmed(_ context.Context) (int64, error) {
	h.seg.mu.Lock()
	defer h.seg.mu.Unlock()
	return h.seg.lastConfirmed, nil
}

func (h *handle) ReadEntries(_ context.Context, from, to int64) ([][]byte, error) {
	h.seg.mu.Lock()
	defer h.seg.mu.Unlock()

	if to > h.seg.lastConfirmed {
		return nil, segmentstore.ErrNoSuchEntry
	}
	out := make([][]byte, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, append([]byte(nil), h.seg.entries[i]...))
	}
	return out, nil
}

func (h *handle) Close(_ context.Context) error {
	return nil
}

var _ segmentstore.Store = (*Store)(nil)
