package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dlogio/dlog/pkg/position"
)

// CreateStream registers a new stream. It returns ErrDuplicateStream if the
// name is already taken and dlogerr.ErrInvalidStreamName (via
// ValidateStreamName) for a reserved or malformed name.
func (s *Store) CreateStream(ctx context.Context, name string) (*Stream, error) {
	if err := ValidateStreamName(name); err != nil {
		return nil, err
	}

	stream := &Stream{
		ID:                  uuid.New().String(),
		Name:                name,
		CreatedAt:           time.Now(),
		TruncatedSegmentSeq: position.InitialLowerBound.SegmentSeq,
		TruncatedEntryID:    position.Invalid.EntryID,
		TruncatedSlotID:     position.Invalid.SlotID,
	}
	if err := s.db.WithContext(ctx).Create(stream).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateStream
		}
		return nil, err
	}
	return stream, nil
}

// GetStream fetches one stream by name.
func (s *Store) GetStream(ctx context.Context, name string) (*Stream, error) {
	var stream Stream
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&stream).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStreamNotFound
		}
		return nil, err
	}
	return &stream, nil
}

// ListStreams returns every registered stream, ordered by creation time.
func (s *Store) ListStreams(ctx context.Context) ([]*Stream, error) {
	var streams []*Stream
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&streams).Error; err != nil {
		return nil, err
	}
	return streams, nil
}

// DeleteStream removes a stream's catalog entry. It does not touch the
// stream's segments or coordinator state; callers are expected to have
// already torn those down.
func (s *Store) DeleteStream(ctx context.Context, name string) error {
	result := s.db.WithContext(ctx).Where("name = ?", name).Delete(&Stream{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStreamNotFound
	}
	return nil
}

// GetTruncation returns the stream's persisted truncation low-water-mark.
func (s *Store) GetTruncation(ctx context.Context, name string) (position.Position, error) {
	stream, err := s.GetStream(ctx, name)
	if err != nil {
		return position.Position{}, err
	}
	return stream.toPosition(), nil
}

// SetTruncation persists a new truncation low-water-mark for the stream.
// It is a no-op, not an error, if pos is not ahead of the stream's current
// mark, making repeated dlogctl truncate calls to the same position
// idempotent across process restarts.
func (s *Store) SetTruncation(ctx context.Context, name string, pos position.Position) error {
	stream, err := s.GetStream(ctx, name)
	if err != nil {
		return err
	}
	if !stream.toPosition().Less(pos) {
		return nil
	}
	result := s.db.WithContext(ctx).
		Model(&Stream{}).
		Where("id = ?", stream.ID).
		Updates(map[string]any{
			"truncated_segment_seq": pos.SegmentSeq,
			"truncated_entry_id":    pos.EntryID,
			"truncated_slot_id":     pos.SlotID,
		})
	return result.Error
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
