package segmentwriter

import (
	"time"

	"github.com/dlogio/dlog/pkg/record"
)

// Config tunes one Writer instance. Zero-value fields fall back to the
// package defaults via WithDefaults.
type Config struct {
	// MaxRecordSize caps a single record's payload.
	MaxRecordSize int

	// MaxTransmissionSize caps a packed transmission unit; appending a
	// record that would exceed it forces a transmit first.
	MaxTransmissionSize int

	// PeriodicFlush is the configured flush period; the scheduler fires
	// at PeriodicFlush/2. Zero disables periodic flush.
	PeriodicFlush time.Duration

	// FlushTimeout bounds how long Flush/Sync waits for outstanding
	// transmissions before failing with dlogerr.ErrFlushTimeout and
	// sticking the writer errored.
	FlushTimeout time.Duration

	// CloseRetryBudget bounds the segment-handle close retry loop on
	// Close instead of retrying unconditionally.
	CloseRetryBudget int
}

// WithDefaults returns a copy of cfg with zero fields replaced by package
// defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = record.MaxRecordSize
	}
	if cfg.MaxTransmissionSize <= 0 {
		cfg.MaxTransmissionSize = record.MaxTransmissionSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}
	if cfg.CloseRetryBudget <= 0 {
		cfg.CloseRetryBudget = 5
	}
	return cfg
}
