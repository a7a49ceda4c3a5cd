// Package config loads the Lode server configuration from file,
// environment, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lodehq/lode/pkg/api"
	"github.com/lodehq/lode/pkg/store/metadata"
)

// Config represents the Lode server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (LODE_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Database configures the metadata store (SQLite or PostgreSQL).
	// This is the authoritative store for version records, users, and the
	// audit log.
	Database metadata.Config `mapstructure:"database" yaml:"database"`

	// Storage configures the S3-compatible versioned object store.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Vector configures the Qdrant search mirror.
	Vector VectorConfig `mapstructure:"vector" yaml:"vector"`

	// Metrics controls Prometheus instrumentation.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains HTTP server configuration.
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Lifecycle controls TTL defaults, scheduling, and upload fan-out.
	Lifecycle LifecycleConfig `mapstructure:"lifecycle" yaml:"lifecycle"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StorageConfig configures the S3-compatible object store holding asset
// blobs. Branches are key prefixes within the bucket; versioning must be
// supported by the endpoint.
type StorageConfig struct {
	// Endpoint is the S3 endpoint URL.
	// Example: http://minio:9000
	Endpoint string `mapstructure:"endpoint" validate:"required" yaml:"endpoint"`

	// Region is the S3 region. Default: us-east-1
	Region string `mapstructure:"region" yaml:"region"`

	// AccessKeyID and SecretAccessKey are the static credentials.
	// LODE_STORAGE_ACCESS_KEY_ID / LODE_STORAGE_SECRET_ACCESS_KEY override.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// Bucket is the bucket all branches live in. Default: lode-assets
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// ForcePathStyle must be true for MinIO and most self-hosted stores.
	// Default: true
	ForcePathStyle *bool `mapstructure:"force_path_style" yaml:"force_path_style"`

	// PublicURL, when set, replaces the scheme and host of presigned URLs
	// so clients outside the cluster network can reach the store.
	PublicURL string `mapstructure:"public_url" yaml:"public_url,omitempty"`

	// RetentionDays is how long noncurrent object versions survive on
	// non-main branches. Default: 7
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`

	// MainBranchRetentionDays is the retention for the main branch.
	// Default: 30
	MainBranchRetentionDays int `mapstructure:"main_branch_retention_days" yaml:"main_branch_retention_days"`
}

// VectorConfig configures the Qdrant mirror. When disabled the lifecycle
// runs with a no-op mirror.
type VectorConfig struct {
	// Enabled controls whether versions are mirrored into Qdrant.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the Qdrant host. Default: localhost
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the Qdrant gRPC port. Default: 6334
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// APIKey authenticates against a secured Qdrant instance.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`

	// UseTLS enables TLS on the gRPC connection. Default: false
	UseTLS bool `mapstructure:"use_tls" yaml:"use_tls"`
}

// MetricsConfig controls Prometheus instrumentation. Metrics are exposed on
// the API server's /metrics endpoint.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// LifecycleConfig controls TTL defaults and the daily scheduler.
type LifecycleConfig struct {
	// Timezone is the IANA timezone lifecycle dates are computed in and the
	// daily jobs are scheduled in. Default: UTC
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	// AutoArchiveTime is the daily auto-archive time in "HH:MM".
	// Default: "01:00"
	AutoArchiveTime string `mapstructure:"auto_archive_time" yaml:"auto_archive_time"`

	// AutoDestroyTime is the daily auto-destroy time in "HH:MM".
	// Default: "02:00"
	AutoDestroyTime string `mapstructure:"auto_destroy_time" yaml:"auto_destroy_time"`

	// UploadConcurrency caps the associated-file fan-out (1-16).
	// Default: 4
	UploadConcurrency int `mapstructure:"upload_concurrency" validate:"omitempty,min=1,max=16" yaml:"upload_concurrency"`

	// PresignExpiry is the lifetime of download URLs. Default: 1h
	PresignExpiry time.Duration `mapstructure:"presign_expiry" yaml:"presign_expiry"`

	// AuditRetentionDays is how long audit rows survive before the destroy
	// job prunes them. Default: 120
	AuditRetentionDays int `mapstructure:"audit_retention_days" yaml:"audit_retention_days"`
}

// Location resolves the configured timezone.
func (c *LifecycleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
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

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  lode init\n\n"+
				"Or specify a custom config file:\n"+
				"  lode <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  lode init --config %s",
				configPath, configPath)
		}
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

	// 0600: the file may contain credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the LODE_ prefix with underscores,
// e.g. LODE_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("LODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
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

// configDecodeHooks returns the combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to
// time.Duration.
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

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "lode")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "lode")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
