package config

import (
	"strings"
	"time"

	"github.com/lodehq/lode/pkg/store/metadata"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	cfg.Database.ApplyDefaults()
	applyStorageDefaults(&cfg.Storage)
	applyVectorDefaults(&cfg.Vector)
	applyLifecycleDefaults(&cfg.Lifecycle)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "lode-assets"
	}
	if cfg.ForcePathStyle == nil {
		pathStyle := true
		cfg.ForcePathStyle = &pathStyle
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 7
	}
	if cfg.MainBranchRetentionDays == 0 {
		cfg.MainBranchRetentionDays = 30
	}
}

func applyVectorDefaults(cfg *VectorConfig) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
}

func applyLifecycleDefaults(cfg *LifecycleConfig) {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.AutoArchiveTime == "" {
		cfg.AutoArchiveTime = "01:00"
	}
	if cfg.AutoDestroyTime == "" {
		cfg.AutoDestroyTime = "02:00"
	}
	if cfg.UploadConcurrency == 0 {
		cfg.UploadConcurrency = 4
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = time.Hour
	}
	if cfg.AuditRetentionDays == 0 {
		cfg.AuditRetentionDays = 120
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: metadata.Config{
			Type: metadata.DatabaseTypeSQLite,
		},
		Storage: StorageConfig{
			Endpoint: "http://localhost:9000",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
