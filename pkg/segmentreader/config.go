package segmentreader

import (
	"time"

	"github.com/dlogio/dlog/pkg/readahead"
)

// Config tunes one Reader's idle detection, polling, and optional
// read-ahead behavior.
type Config struct {
	// WarnIdle is how long a tailing reader can go without a new record
	// before it logs a warning. When a second consecutive WarnIdle period
	// passes it forces one blocking read of the next entry, through the
	// read-ahead worker when one is running, otherwise straight from the
	// segment store.
	WarnIdle time.Duration

	// ErrorIdle is how long a tailing reader can go without a new record
	// before ReadNext/ReadBulk fail with dlogerr.ErrIdleReader.
	ErrorIdle time.Duration

	// PollInterval is the fallback polling period used while waiting on
	// an in-progress segment, alongside the coordinator watch.
	PollInterval time.Duration

	// ReadAheadEnabled turns on the background prefetch worker for
	// whichever segment the reader is currently tailing.
	ReadAheadEnabled bool

	// ReadAhead configures the prefetch worker when ReadAheadEnabled.
	ReadAhead readahead.Config

	// MaxPendingReads bounds how many ReadNext/ReadBulk calls may be
	// queued against the reader at once; further calls block in the
	// caller until a slot frees up.
	MaxPendingReads int
}

// WithDefaults returns a copy of cfg with zero fields replaced by package
// defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.WarnIdle <= 0 {
		cfg.WarnIdle = 5 * time.Second
	}
	if cfg.ErrorIdle <= 0 {
		cfg.ErrorIdle = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.MaxPendingReads <= 0 {
		cfg.MaxPendingReads = 256
	}
	cfg.ReadAhead = cfg.ReadAhead.WithDefaults()
	return cfg
}
