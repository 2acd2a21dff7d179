/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 2 * time.Minute

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger.With("component", "scheduler"),
	}
}

// Start registers the jobs and starts the cron scheduler. An invalid schedule
// is reported as an error and nothing is started.
func (s *Scheduler) Start() error {
	schedule := s.jobs.opts.StaleSchedule
	if _, err := s.cron.AddFunc(schedule, s.runStaleProposals); err != nil {
		return fmt.Errorf("schedule stale proposal job %q: %w", schedule, err)
	}
	s.logger.Info("scheduled stale proposal job", "schedule", schedule, "stale_after", s.jobs.opts.StaleAfter)

	s.cron.Start()
	return nil
}

func (s *Scheduler) runStaleProposals() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.jobs.ReportStaleProposals(ctx)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
