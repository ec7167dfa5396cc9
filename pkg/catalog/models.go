package catalog

import "time"

// Stream is the catalog record for one log stream: its creation time and
// persisted truncation low-water-mark. Unlike segmentmeta's truncation
// mark (a per-segment znode consulted by readers while they're running),
// this copy survives a full coordinator wipe or a dlogctl process restart,
// so a repeated "dlogctl truncate" call is observably idempotent even
// across restarts.
type Stream struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"uniqueIndex;not null;size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	// TruncatedSegmentSeq/EntryID/SlotID mirror position.Position. The
	// column default (0, -1, -1) matches position.Invalid and means
	// "nothing truncated yet".
	TruncatedSegmentSeq int64 `gorm:"not null;default:0"`
	TruncatedEntryID    int64 `gorm:"not null;default:-1"`
	TruncatedSlotID     int64 `gorm:"not null;default:-1"`
}

// TableName pins the table name so renaming the Go type doesn't silently
// rename the table out from under an existing migration.
func (Stream) TableName() string { return "streams" }

// allModels lists every GORM model the SQLite AutoMigrate path manages.
func allModels() []any {
	return []any{&Stream{}}
}
