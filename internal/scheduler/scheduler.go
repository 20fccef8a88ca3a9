// Package scheduler runs a pipeline execution on a fixed interval, or once
// when the interval is zero.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/scwf/prod-scout/pkg/logger"
)

// Scheduler wraps gocron to drive periodic pipeline runs.
type Scheduler struct {
	sched gocron.Scheduler
	log   logger.Logger
}

func New(log logger.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}
	return &Scheduler{sched: sched, log: log.WithComponent("scheduler")}, nil
}

// Run executes runFn immediately, then every interval, until ctx is
// cancelled. An interval of zero runs runFn exactly once and returns.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, runFn func(ctx context.Context)) error {
	if interval <= 0 {
		runFn(ctx)
		return nil
	}

	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			runFn(ctx)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("scheduler: schedule job: %w", err)
	}

	s.sched.Start()
	s.log.Info("scheduler started", "interval", interval.String())

	<-ctx.Done()
	return s.sched.Shutdown()
}
