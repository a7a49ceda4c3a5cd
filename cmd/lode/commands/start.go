package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/api"
	"github.com/lodehq/lode/pkg/config"
	"github.com/lodehq/lode/pkg/lifecycle"
	"github.com/lodehq/lode/pkg/metrics"
	"github.com/lodehq/lode/pkg/scheduler"
	"github.com/lodehq/lode/pkg/store/metadata"
	"github.com/lodehq/lode/pkg/store/object/s3"
	"github.com/lodehq/lode/pkg/store/vector"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Lode server",
	Long: `Start the Lode server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/lode/config.yaml.

Examples:
  # Start with default config location
  lode start

  # Start with custom config file
  lode start --config /etc/lode/config.yaml

  # Start with environment variable overrides
  LODE_LOGGING_LEVEL=DEBUG lode start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metrics before the components that record into them
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		m = metrics.New()
		logger.Info("Metrics enabled", "endpoint", "/metrics")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Metadata store is authoritative; it must come up before anything else
	meta, err := metadata.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	logger.Info("Metadata store initialized", "type", cfg.Database.Type)

	// Versioned object store
	client, err := s3.NewClientFromConfig(
		ctx,
		cfg.Storage.Endpoint,
		cfg.Storage.Region,
		cfg.Storage.AccessKeyID,
		cfg.Storage.SecretAccessKey,
		*cfg.Storage.ForcePathStyle,
	)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	objects, err := s3.New(s3.Config{
		Client:                  client,
		Bucket:                  cfg.Storage.Bucket,
		PublicURL:               cfg.Storage.PublicURL,
		DefaultRetentionDays:    int32(cfg.Storage.RetentionDays),
		MainBranchRetentionDays: int32(cfg.Storage.MainBranchRetentionDays),
	})
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	if err := objects.EnsureRepository(ctx); err != nil {
		return fmt.Errorf("failed to provision bucket %q: %w", cfg.Storage.Bucket, err)
	}
	logger.Info("Object store ready", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)

	// Search mirror is optional; the coordinator runs with a no-op mirror
	// when disabled
	var mirror vector.Mirror
	if cfg.Vector.Enabled {
		qdrantMirror, err := vector.NewQdrantMirror(vector.QdrantConfig{
			Host:   cfg.Vector.Host,
			Port:   cfg.Vector.Port,
			APIKey: cfg.Vector.APIKey,
			UseTLS: cfg.Vector.UseTLS,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to vector store: %w", err)
		}
		defer func() {
			if err := qdrantMirror.Close(); err != nil {
				logger.Warn("Vector store close error", "error", err)
			}
		}()

		if err := qdrantMirror.EnsureCollections(ctx); err != nil {
			return fmt.Errorf("failed to provision vector collections: %w", err)
		}
		mirror = qdrantMirror
		logger.Info("Vector mirror enabled", "host", cfg.Vector.Host, "port", cfg.Vector.Port)
	} else {
		logger.Info("Vector mirror disabled")
	}

	location, err := cfg.Lifecycle.Location()
	if err != nil {
		return fmt.Errorf("invalid lifecycle timezone: %w", err)
	}

	coordinator, err := lifecycle.New(lifecycle.Config{
		Objects:            objects,
		Meta:               meta,
		Vectors:            mirror,
		Location:           location,
		UploadConcurrency:  cfg.Lifecycle.UploadConcurrency,
		PresignExpiry:      cfg.Lifecycle.PresignExpiry,
		AuditRetentionDays: cfg.Lifecycle.AuditRetentionDays,
		Metrics:            m,
	})
	if err != nil {
		return fmt.Errorf("failed to create lifecycle coordinator: %w", err)
	}

	// Daily TTL jobs
	sched, err := scheduler.New(coordinator, scheduler.Config{
		ArchiveAt: cfg.Lifecycle.AutoArchiveTime,
		DestroyAt: cfg.Lifecycle.AutoDestroyTime,
		Location:  location,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	logger.Info("Scheduler started",
		"archive_at", cfg.Lifecycle.AutoArchiveTime,
		"destroy_at", cfg.Lifecycle.AutoDestroyTime,
		"timezone", location.String())

	apiServer, err := api.NewServer(cfg.API, coordinator, meta)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", cfg.API.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
