// Package scheduler runs MindCare's periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the expired-session sweep every 15 minutes.
const DefaultSweepSchedule = "*/15 * * * *"

// Purger deletes sessions idle for longer than ttl. flow.Manager implements it.
type Purger interface {
	PurgeExpired(ctx context.Context, ttl time.Duration) (int, error)
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// ScheduleSweep purges sessions idle longer than ttl on every tick of expr.
func (s *Scheduler) ScheduleSweep(ctx context.Context, expr string, p Purger, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("sweep ttl must be positive, got %s", ttl)
	}
	if err := s.AddJob(expr, func() { Sweep(ctx, p, ttl) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	slog.Info("Scheduler.ScheduleSweep: expired-session sweep scheduled", "schedule", expr, "ttl", ttl)
	return nil
}

// Sweep runs one purge and logs the outcome.
func Sweep(ctx context.Context, p Purger, ttl time.Duration) {
	n, err := p.PurgeExpired(ctx, ttl)
	if err != nil {
		slog.Error("Scheduler.Sweep: purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Scheduler.Sweep: expired sessions removed", "count", n, "ttl", ttl)
	}
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
