// Package sched runs periodic background jobs, currently just the index
// refresh, on standard 5-field cron schedules.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Schedule returns a 5-field cron expression (e.g. "0 3 * * *").
	Schedule() string

	// Run executes the job. Implementations should honor ctx
	// cancellation; returning an error only marks the tick as failed.
	Run(ctx context.Context) error
}

// Scheduler wraps a cron runner. Times are interpreted in UTC so a
// daily schedule fires at the same wall-clock moment on every host.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger,
	}
}

// Add registers a job. The returned error is non-nil only for an
// invalid cron expression.
func (s *Scheduler) Add(ctx context.Context, job Job) error {
	_, err := s.cron.AddFunc(job.Schedule(), func() {
		if s.logger != nil {
			s.logger.Info("scheduled job firing", "job", job.Name())
		}
		if err := job.Run(ctx); err != nil {
			if s.logger != nil {
				s.logger.Warn("scheduled job failed", "job", job.Name(), "error", err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name(), job.Schedule(), err)
	}
	return nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
