package logwriter

import (
	"time"

	"github.com/dlogio/dlog/pkg/segmentwriter"
)

// Policy decides whether the currently open segment has accumulated enough
// state to roll into a new one. All three thresholds are independent; any
// one crossing triggers a roll.
type Policy struct {
	// Enabled gates rolling entirely; a disabled policy never rolls and the
	// log writer keeps appending to its first segment indefinitely.
	Enabled bool

	// MaxSegmentBytes rolls once the open segment's user-record bytes
	// reach this total. Zero disables the size threshold.
	MaxSegmentBytes int64

	// MaxSegmentAge rolls once the open segment has been open this long.
	// Zero disables the age threshold.
	MaxSegmentAge time.Duration

	// MaxRecordCount rolls once the open segment holds this many user
	// records. Zero disables the count threshold.
	MaxRecordCount int64
}

func (p Policy) shouldRoll(bytes, records int64, openedAt time.Time) bool {
	if !p.Enabled {
		return false
	}
	if p.MaxSegmentBytes > 0 && bytes >= p.MaxSegmentBytes {
		return true
	}
	if p.MaxRecordCount > 0 && records >= p.MaxRecordCount {
		return true
	}
	if p.MaxSegmentAge > 0 && !openedAt.IsZero() && time.Since(openedAt) >= p.MaxSegmentAge {
		return true
	}
	return false
}

// Config tunes one LogWriter instance.
type Config struct {
	// Policy governs automatic segment rolling.
	Policy Policy

	// FailFastOnRoll makes writes submitted while a roll is in flight fail
	// immediately with dlogerr.ErrStreamNotReady instead of queueing.
	FailFastOnRoll bool

	// Writer is passed through to every segment writer this log writer
	// opens.
	Writer segmentwriter.Config

	// RegionID tags every segment this log writer creates, recorded in its
	// metadata.
	RegionID int64

	// QueueDepth bounds the ordered task queue's buffer.
	QueueDepth int
}

// WithDefaults returns a copy of cfg with zero fields replaced by package
// defaults.
func (cfg Config) WithDefaults() Config {
	cfg.Writer = cfg.Writer.WithDefaults()
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	return cfg
}
