package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "lode-assets", cfg.Storage.Bucket)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	require.NotNil(t, cfg.Storage.ForcePathStyle)
	assert.True(t, *cfg.Storage.ForcePathStyle)
	assert.Equal(t, 7, cfg.Storage.RetentionDays)
	assert.Equal(t, 30, cfg.Storage.MainBranchRetentionDays)
	assert.Equal(t, 6334, cfg.Vector.Port)
	assert.False(t, cfg.Vector.Enabled)
	assert.Equal(t, "UTC", cfg.Lifecycle.Timezone)
	assert.Equal(t, "01:00", cfg.Lifecycle.AutoArchiveTime)
	assert.Equal(t, "02:00", cfg.Lifecycle.AutoDestroyTime)
	assert.Equal(t, 4, cfg.Lifecycle.UploadConcurrency)
	assert.Equal(t, time.Hour, cfg.Lifecycle.PresignExpiry)
	assert.Equal(t, 120, cfg.Lifecycle.AuditRetentionDays)

	require.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
  format: json
storage:
  endpoint: http://minio:9000
  bucket: my-assets
  access_key_id: minioadmin
  secret_access_key: minioadmin
vector:
  enabled: true
  host: qdrant.internal
lifecycle:
  timezone: Europe/Rome
  auto_archive_time: "03:30"
  upload_concurrency: 8
  presign_expiry: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "http://minio:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "my-assets", cfg.Storage.Bucket)
	assert.True(t, cfg.Vector.Enabled)
	assert.Equal(t, "qdrant.internal", cfg.Vector.Host)
	assert.Equal(t, 6334, cfg.Vector.Port)
	assert.Equal(t, "Europe/Rome", cfg.Lifecycle.Timezone)
	assert.Equal(t, "03:30", cfg.Lifecycle.AutoArchiveTime)
	assert.Equal(t, "02:00", cfg.Lifecycle.AutoDestroyTime)
	assert.Equal(t, 8, cfg.Lifecycle.UploadConcurrency)
	assert.Equal(t, 2*time.Hour, cfg.Lifecycle.PresignExpiry)

	location, err := cfg.Lifecycle.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Rome", location.String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	writeConfig := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		return path
	}

	t.Run("bad log level", func(t *testing.T) {
		path := writeConfig(t, "logging:\n  level: loud\nstorage:\n  endpoint: http://minio:9000\n")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("bad timezone", func(t *testing.T) {
		path := writeConfig(t, "storage:\n  endpoint: http://minio:9000\nlifecycle:\n  timezone: Mars/Olympus\n")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("bad schedule time", func(t *testing.T) {
		path := writeConfig(t, "storage:\n  endpoint: http://minio:9000\nlifecycle:\n  auto_archive_time: \"25:00\"\n")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		path := writeConfig(t, "logging:\n  level: info\n")
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestSaveAndReloadConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Bucket = "round-trip"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "round-trip", loaded.Storage.Bucket)
}

func TestValidateClockTime(t *testing.T) {
	assert.NoError(t, validateClockTime("00:00"))
	assert.NoError(t, validateClockTime("23:59"))
	assert.Error(t, validateClockTime("24:00"))
	assert.Error(t, validateClockTime("12:60"))
	assert.Error(t, validateClockTime("noon"))
}
