// Package scheduler runs the ingestion job on a fixed period.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs one job every interval, starting immediately. A run never
// starts while the previous one is still in progress.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler. It does nothing until Start is called.
func New(interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{scheduler: s, interval: interval, logger: logger}
}

// Start schedules job and returns without waiting for it. ctx is passed to
// every run; cancelling it does not stop the schedule, Stop does.
func (s *Scheduler) Start(ctx context.Context, name string, job func(ctx context.Context)) error {
	if s.interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive, got %s", name, s.interval)
	}

	_, err := s.scheduler.Every(s.interval).StartImmediately().Tag(name).Do(func() {
		if ctx.Err() != nil {
			return
		}
		s.logger.Debug("scheduled job starting", "job", name)
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "job", name, "interval", s.interval)
	return nil
}

// Stop cancels future runs and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
