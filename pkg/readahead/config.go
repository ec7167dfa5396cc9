package readahead

import "time"

// Config tunes one Worker's prefetch behavior.
type Config struct {
	// InitialBatch is the first read_entries batch size.
	InitialBatch int64

	// MaxBatch caps how large a batch can grow after successive full
	// fills.
	MaxBatch int64

	// PollInterval is how often the worker checks last-confirmed on the
	// segment it is tailing.
	PollInterval time.Duration
}

// WithDefaults returns a copy of cfg with zero fields replaced by package
// defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.InitialBatch <= 0 {
		cfg.InitialBatch = 16
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 1024
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return cfg
}
