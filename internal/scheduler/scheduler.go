// Package scheduler provides cron-based scheduling of monitoring passes.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/farewatch/backend/internal/monitor"
)

// Config holds the scheduler configuration
type Config struct {
	// Schedule is a cron expression for when to run a pass (e.g., "*/15 * * * *")
	Schedule string
	// Timeout is the maximum duration for a complete monitoring pass
	Timeout time.Duration
	// Enabled determines if the scheduler should run
	Enabled bool
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Schedule: "*/15 * * * *", // Every 15 minutes
		Timeout:  30 * time.Minute,
		Enabled:  true,
	}
}

// Scheduler manages scheduled monitoring passes
type Scheduler struct {
	cron    *cron.Cron
	monitor *monitor.Monitor
	config  Config
	logger  *slog.Logger
	entryID cron.EntryID
}

// New creates a new Scheduler instance
func New(cfg Config, mon *monitor.Monitor, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		monitor: mon,
		config:  cfg,
		logger:  logger,
	}
}

// Start begins the scheduler
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled, skipping start")
		return nil
	}

	// Convert standard cron (5 fields) to cron with seconds (6 fields)
	schedule := "0 " + s.config.Schedule

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.runPass()
	})
	if err != nil {
		return err
	}

	s.entryID = entryID
	s.cron.Start()

	s.logger.Info("Scheduler started",
		slog.String("schedule", s.config.Schedule),
		slog.Duration("timeout", s.config.Timeout),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping scheduler...")
	return s.cron.Stop()
}

// RunNow triggers an immediate pass (useful for manual triggers)
func (s *Scheduler) RunNow() {
	go s.runPass()
}

// runPass executes one monitoring pass
func (s *Scheduler) runPass() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Info("Starting scheduled monitoring pass",
		slog.Time("start_time", startTime),
	)

	result, err := s.monitor.RunPass(ctx)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Monitoring pass failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
		return
	}

	s.logger.Info("Monitoring pass finished",
		slog.Int("checked", result.Checked),
		slog.Int("expired", result.Expired),
		slog.Int("dropped", result.Dropped),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", duration),
	)
}

// GetNextRunTime returns the next scheduled run time
func (s *Scheduler) GetNextRunTime() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRunTime returns the last run time
func (s *Scheduler) GetLastRunTime() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	entry := s.cron.Entry(s.entryID)
	return entry.Prev
}

// IsRunning returns true if the scheduler is running
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
