package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Coordinator.Backend)
	assert.Equal(t, "memory", cfg.SegmentStore.Backend)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
logging:
  level: DEBUG
  format: json
coordinator:
  backend: badger
  badger:
    dir: ` + filepath.Join(dir, "coord") + `
segmentstore:
  backend: memory
stream:
  max_record_size: 512Ki
  max_transmission_size: 1Mi
rolling:
  enabled: true
  max_segment_bytes: 64Mi
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "badger", cfg.Coordinator.Backend)
	assert.True(t, cfg.Rolling.Enabled)
}

func TestValidateRejectsUnsupportedCoordinatorBackend(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Coordinator.Backend = "zookeeper"
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsS3BackendWithoutBucket(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.SegmentStore.Backend = "s3"
	assert.Error(t, Validate(cfg))
}

func TestSaveAndReloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "WARN"
	require.NoError(t, SaveConfig(cfg, path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "WARN", reloaded.Logging.Level)
}

func TestGetDefaultConfigPathUsesXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "dlog", "config.yaml"), GetDefaultConfigPath())
}
