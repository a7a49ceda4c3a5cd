// Package scheduler runs the daily TTL jobs: archiving active versions past
// their planned archive date and destroying archived versions past their
// planned destroy date.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/lifecycle"
	"github.com/lodehq/lode/pkg/metrics"
)

// Config controls when the daily jobs fire. Times are local to Location.
type Config struct {
	// ArchiveAt is the daily auto-archive time in "HH:MM". Default: "01:00".
	ArchiveAt string

	// DestroyAt is the daily auto-destroy time in "HH:MM". Default: "02:00".
	DestroyAt string

	// Location is the timezone the schedule is evaluated in. Default: UTC.
	Location *time.Location

	// JobTimeout bounds a single job run. Default: 30m.
	JobTimeout time.Duration

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// Scheduler owns the cron runner. Jobs that overlap a still-running prior
// invocation are skipped.
type Scheduler struct {
	cron        *cron.Cron
	coordinator *lifecycle.Coordinator
	jobTimeout  time.Duration
	metrics     *metrics.Metrics
}

// New builds a scheduler wired to the coordinator's auto jobs.
func New(coordinator *lifecycle.Coordinator, cfg Config) (*Scheduler, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("scheduler: coordinator is required")
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	archiveSpec, err := cronSpec(cfg.ArchiveAt, "01:00")
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid archive time: %w", err)
	}
	destroySpec, err := cronSpec(cfg.DestroyAt, "02:00")
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid destroy time: %w", err)
	}

	s := &Scheduler{
		coordinator: coordinator,
		jobTimeout:  timeout,
		metrics:     cfg.Metrics,
	}
	s.cron = cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if _, err := s.cron.AddFunc(archiveSpec, s.runArchive); err != nil {
		return nil, fmt.Errorf("scheduler: register archive job: %w", err)
	}
	if _, err := s.cron.AddFunc(destroySpec, s.runDestroy); err != nil {
		return nil, fmt.Errorf("scheduler: register destroy job: %w", err)
	}
	return s, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("scheduler stopped")
}

func (s *Scheduler) runArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	archived, err := s.coordinator.AutoArchive(ctx)
	if err != nil {
		logger.Error("auto-archive run failed", "error", err)
		s.metrics.RecordSchedulerRun("auto_archive", "error")
		return
	}
	logger.Info("auto-archive run completed", "archived", len(archived))
	s.metrics.RecordSchedulerRun("auto_archive", "ok")
}

func (s *Scheduler) runDestroy() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	destroyed, err := s.coordinator.AutoDestroy(ctx)
	if err != nil {
		logger.Error("auto-destroy run failed", "error", err)
		s.metrics.RecordSchedulerRun("auto_destroy", "error")
		return
	}
	logger.Info("auto-destroy run completed", "destroyed", len(destroyed))
	s.metrics.RecordSchedulerRun("auto_destroy", "ok")
}

// cronSpec converts a "HH:MM" wall-clock time to a daily cron expression.
func cronSpec(at, fallback string) (string, error) {
	if at == "" {
		at = fallback
	}
	hh, mm, ok := strings.Cut(at, ":")
	if !ok {
		return "", fmt.Errorf("expected HH:MM, got %q", at)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", at)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", at)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
