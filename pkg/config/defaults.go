package config

import (
	"time"

	"github.com/dlogio/dlog/internal/bytesize"
	"github.com/dlogio/dlog/pkg/catalog"
)

// GetDefaultConfig returns a complete Config populated entirely with
// defaults, used when no config file is found and the caller hasn't
// demanded one exist (e.g. dlogctl commands that can run against
// in-process defaults for quick local experiments).
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields across cfg with package
// defaults. Safe to call on a partially-populated Config decoded from a
// config file: only fields left at their zero value are touched.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	cfg.AdminAPI.ApplyDefaults()
	applyCatalogDefaults(&cfg.Catalog)
	applyCoordinatorDefaults(&cfg.Coordinator)
	applySegmentStoreDefaults(&cfg.SegmentStore)
	applyStreamDefaults(&cfg.Stream)
	applyRollingDefaults(&cfg.Rolling)
	applyReadAheadDefaults(&cfg.ReadAhead)
	applyReaderDefaults(&cfg.Reader)
}

func applyLoggingDefaults(c *LoggingConfig) {
	if c.Level == "" {
		c.Level = "INFO"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

func applyTelemetryDefaults(c *TelemetryConfig) {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.Profiling.Endpoint == "" {
		c.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(c.Profiling.ProfileTypes) == 0 {
		c.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space"}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(c *MetricsConfig) {
	// Enabled defaults to false; metrics are opt-in.
	_ = c
}

func applyCatalogDefaults(c *catalog.Config) {
	c.ApplyDefaults()
}

func applyCoordinatorDefaults(c *CoordinatorConfig) {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Badger.Dir == "" {
		c.Badger.Dir = defaultStateSubdir("coordinator")
	}
}

func applySegmentStoreDefaults(c *SegmentStoreConfig) {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
}

func applyStreamDefaults(c *StreamConfig) {
	if c.MaxRecordSize == 0 {
		c.MaxRecordSize = bytesize.ByteSize(1*bytesize.MiB - 8*bytesize.KiB)
	}
	if c.MaxTransmissionSize == 0 {
		c.MaxTransmissionSize = bytesize.ByteSize(1*bytesize.MiB - 4*bytesize.KiB)
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = 30 * time.Second
	}
	if c.CloseRetryBudget == 0 {
		c.CloseRetryBudget = 5
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 256
	}
}

func applyRollingDefaults(c *RollingConfig) {
	if c.MaxSegmentBytes == 0 {
		c.MaxSegmentBytes = bytesize.ByteSize(256 * bytesize.MiB)
	}
	if c.MaxSegmentAge == 0 {
		c.MaxSegmentAge = time.Hour
	}
}

func applyReadAheadDefaults(c *ReadAheadConfig) {
	if c.InitialBatch == 0 {
		c.InitialBatch = 16
	}
	if c.MaxBatch == 0 {
		c.MaxBatch = 1024
	}
	if c.PollInterval == 0 {
		c.PollInterval = 50 * time.Millisecond
	}
}

func applyReaderDefaults(c *ReaderConfig) {
	if c.WarnIdle == 0 {
		c.WarnIdle = 5 * time.Second
	}
	if c.ErrorIdle == 0 {
		c.ErrorIdle = 60 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MaxPendingReads == 0 {
		c.MaxPendingReads = 256
	}
}

// defaultStateSubdir returns "<configDir>/<name>", used for backends that
// need a local directory (BadgerDB) the way the catalog's sqlite default
// lives under the config dir.
func defaultStateSubdir(name string) string {
	return getConfigDir() + "/" + name
}
