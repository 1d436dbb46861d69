// Package scheduler fires the monthly period boundary event on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"memberbudget/internal/logger"
	"memberbudget/internal/period"
	"memberbudget/internal/services"
)

// Scheduler runs the monthly rollover without an external job runner.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *services.Dispatcher
	clock      period.Clock
}

// New creates a scheduler around the event dispatcher.
func New(dispatcher *services.Dispatcher, clock period.Clock) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		dispatcher: dispatcher,
		clock:      clock,
	}
}

// Schedule registers the rollover at the given cron expression (with a
// seconds field) and starts the scheduler.
func (s *Scheduler) Schedule(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.runRollover); err != nil {
		return fmt.Errorf("failed to add rollover cron job: %w", err)
	}
	s.cron.Start()
	logger.Get().Infow("rollover scheduler started", "schedule", schedule)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Get().Info("rollover scheduler stopped")
}

func (s *Scheduler) runRollover() {
	target := period.Current(s.clock)
	err := s.dispatcher.Dispatch(context.Background(), services.PeriodBoundaryReached{Target: target})
	if err != nil {
		logger.Get().Errorw("scheduled rollover failed",
			"month", target.Month, "year", target.Year, "error", err)
	}
}
