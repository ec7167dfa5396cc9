// Package config loads, validates, and hot-reloads dlogd's configuration:
// ambient concerns (logging, telemetry, metrics), the catalog and admin API
// backends, and the tunables of the three core subsystems (segment writer,
// log writer, segment reader) for every stream the daemon runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dlogio/dlog/internal/bytesize"
	"github.com/dlogio/dlog/internal/telemetry"
	"github.com/dlogio/dlog/pkg/adminapi"
	"github.com/dlogio/dlog/pkg/catalog"
)

// Config is dlogd's top-level configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DLOG_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and Pyroscope
	// continuous profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout bounds how long dlogd waits for in-flight writes,
	// reads, and rolls to drain during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics controls whether the Prometheus registry is initialized.
	// When disabled, the admin API's /metrics route is not mounted.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// AdminAPI configures the read/control-plane HTTP surface.
	AdminAPI adminapi.Config `mapstructure:"adminapi" yaml:"adminapi"`

	// Catalog configures the stream registry's storage backend.
	Catalog catalog.Config `mapstructure:"catalog" yaml:"catalog"`

	// Coordinator selects and tunes the metadata coordinator backend.
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`

	// SegmentStore selects and tunes the segment-store backend.
	SegmentStore SegmentStoreConfig `mapstructure:"segmentstore" yaml:"segmentstore"`

	// Stream carries the per-stream defaults applied to every segment
	// writer and reader dlogd opens, unless a stream-specific override is
	// added later.
	Stream StreamConfig `mapstructure:"stream" yaml:"stream"`

	// Rolling governs automatic segment rolling for every log writer.
	Rolling RollingConfig `mapstructure:"rolling" yaml:"rolling"`

	// ReadAhead configures the background prefetch worker segment readers
	// use while tailing an in-progress segment.
	ReadAhead ReadAheadConfig `mapstructure:"read_ahead" yaml:"read_ahead"`

	// Reader configures idle detection and polling for segment readers.
	Reader ReaderConfig `mapstructure:"reader" yaml:"reader"`

	// RegionID tags every segment this daemon instance creates.
	RegionID int64 `mapstructure:"region_id" yaml:"region_id"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing and Pyroscope
// continuous profiling.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig controls whether the process-wide Prometheus registry is
// initialized. Binding happens on the admin API's /metrics route, not a
// separate listener.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// CoordinatorConfig selects and tunes the metadata coordinator backend.
type CoordinatorConfig struct {
	// Backend selects the implementation: "memory" or "badger".
	Backend string `mapstructure:"backend" validate:"required,oneof=memory badger" yaml:"backend"`

	// Badger configures the badgerc.Coordinator backend.
	Badger BadgerCoordinatorConfig `mapstructure:"badger" yaml:"badger"`
}

// BadgerCoordinatorConfig configures the BadgerDB-backed coordinator.
type BadgerCoordinatorConfig struct {
	// Dir is the directory BadgerDB stores its coordinator state in.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SegmentStoreConfig selects and tunes the segment-store backend.
type SegmentStoreConfig struct {
	// Backend selects the implementation: "memory" or "s3".
	Backend string `mapstructure:"backend" validate:"required,oneof=memory s3" yaml:"backend"`

	// S3 configures the S3-compatible segment-store backend.
	S3 S3SegmentStoreConfig `mapstructure:"s3" yaml:"s3"`
}

// S3SegmentStoreConfig configures the S3-backed segment store.
type S3SegmentStoreConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// StreamConfig carries the per-stream record/transmission-unit defaults
// applied to every segment writer this daemon opens.
type StreamConfig struct {
	// MaxRecordSize caps a single record's payload.
	// Default: 1MiB - 8KiB, the wire format's hard limit.
	MaxRecordSize bytesize.ByteSize `mapstructure:"max_record_size" yaml:"max_record_size"`

	// MaxTransmissionSize caps a packed transmission unit; appending a
	// record that would exceed it forces a transmit first.
	// Default: 1MiB - 4KiB, the wire format's hard limit.
	MaxTransmissionSize bytesize.ByteSize `mapstructure:"max_transmission_size" yaml:"max_transmission_size"`

	// PeriodicFlush is the configured flush period; zero disables
	// periodic flush.
	PeriodicFlush time.Duration `mapstructure:"periodic_flush" yaml:"periodic_flush"`

	// FlushTimeout bounds how long Flush/Sync waits for outstanding
	// transmissions before failing with dlogerr.ErrFlushTimeout.
	FlushTimeout time.Duration `mapstructure:"flush_timeout" yaml:"flush_timeout"`

	// CloseRetryBudget bounds the segment-handle close retry loop.
	CloseRetryBudget int `mapstructure:"close_retry_budget" yaml:"close_retry_budget"`

	// QueueDepth bounds a log writer's ordered task queue buffer.
	QueueDepth int `mapstructure:"queue_depth" yaml:"queue_depth"`
}

// RollingConfig governs automatic segment rolling for every log writer.
type RollingConfig struct {
	// Enabled gates rolling entirely.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxSegmentBytes rolls once the open segment's user-record bytes
	// reach this total. Zero disables the size threshold.
	MaxSegmentBytes bytesize.ByteSize `mapstructure:"max_segment_bytes" yaml:"max_segment_bytes"`

	// MaxSegmentAge rolls once the open segment has been open this long.
	// Zero disables the age threshold.
	MaxSegmentAge time.Duration `mapstructure:"max_segment_age" yaml:"max_segment_age"`

	// MaxRecordCount rolls once the open segment holds this many user
	// records. Zero disables the count threshold.
	MaxRecordCount int64 `mapstructure:"max_record_count" yaml:"max_record_count"`

	// FailFastOnRoll makes writes submitted while a roll is in flight
	// fail immediately with dlogerr.ErrStreamNotReady instead of
	// queueing.
	FailFastOnRoll bool `mapstructure:"fail_fast_on_roll" yaml:"fail_fast_on_roll"`
}

// ReadAheadConfig tunes the segment reader's prefetch worker.
type ReadAheadConfig struct {
	// Enabled turns on the background prefetch worker.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// InitialBatch is the first read_entries batch size.
	InitialBatch int64 `mapstructure:"initial_batch" yaml:"initial_batch"`

	// MaxBatch caps how large a batch can grow after successive full
	// fills.
	MaxBatch int64 `mapstructure:"max_batch" yaml:"max_batch"`

	// PollInterval is how often the worker checks last-confirmed on the
	// segment it is tailing.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// ReaderConfig tunes every segment reader's idle detection and polling.
type ReaderConfig struct {
	// WarnIdle is how long a tailing reader can go without a new record
	// before it logs a warning and forces a synchronous read.
	WarnIdle time.Duration `mapstructure:"warn_idle" yaml:"warn_idle"`

	// ErrorIdle is how long a tailing reader can go without a new record
	// before ReadNext/ReadBulk fail with dlogerr.ErrIdleReader.
	ErrorIdle time.Duration `mapstructure:"error_idle" yaml:"error_idle"`

	// PollInterval is the fallback polling period while waiting on an
	// in-progress segment, alongside the coordinator watch.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// MaxPendingReads bounds how many ReadNext/ReadBulk calls may be
	// queued against a reader at once.
	MaxPendingReads int `mapstructure:"max_pending_reads" yaml:"max_pending_reads"`
}

// TelemetryRuntimeConfig adapts Config.Telemetry into internal/telemetry's
// own Config shape, stamping the service name/version the daemon reports.
func (c *Config) TelemetryRuntimeConfig(serviceVersion string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "dlogd",
		ServiceVersion: serviceVersion,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}

// ProfilingRuntimeConfig adapts Config.Telemetry.Profiling into
// internal/telemetry's own ProfilingConfig shape.
func (c *Config) ProfilingRuntimeConfig(serviceVersion string) telemetry.ProfilingConfig {
	return telemetry.ProfilingConfig{
		Enabled:        c.Telemetry.Profiling.Enabled,
		ServiceName:    "dlogd",
		ServiceVersion: serviceVersion,
		Endpoint:       c.Telemetry.Profiling.Endpoint,
		ProfileTypes:   c.Telemetry.Profiling.ProfileTypes,
	}
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DLOG_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dlogctl config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dlogd start --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dlogctl config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file
// search settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the custom mapstructure decode hooks this
// config needs: ByteSize and time.Duration parsing from human-readable
// strings.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path: $XDG_CONFIG_HOME/
// dlog, falling back to ~/.config/dlog, or "." as a last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dlog")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dlog")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for
// dlogctl's init command).
func GetConfigDir() string {
	return getConfigDir()
}

// validate is the shared validator instance; go-playground/validator/v10
// instances are safe for concurrent use once built.
var validate = validator.New()

// Validate checks cfg's struct tags plus the cross-field rules ApplyDefaults
// cannot express via tags alone.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if err := cfg.Catalog.Validate(); err != nil {
		return err
	}
	if err := ValidateStreamConfig(cfg.Stream); err != nil {
		return err
	}
	if cfg.Coordinator.Backend == "badger" && cfg.Coordinator.Badger.Dir == "" {
		return fmt.Errorf("coordinator: badger backend requires coordinator.badger.dir")
	}
	if cfg.SegmentStore.Backend == "s3" && cfg.SegmentStore.S3.Bucket == "" {
		return fmt.Errorf("segmentstore: s3 backend requires segmentstore.s3.bucket")
	}
	return nil
}
