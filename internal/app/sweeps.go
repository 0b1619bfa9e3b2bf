package app

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/academy-payments/internal/jobs"
	jobsmem "github.com/dvloznov/academy-payments/internal/jobs/inmemory"
	"github.com/dvloznov/academy-payments/internal/logger"
	"github.com/rs/zerolog"
)

const sweepQueueSize = 100

// SweepOptions configures the background overdue sweep.
type SweepOptions struct {
	Workers int
	// Interval between scheduled sweeps. Zero disables the scheduler; jobs
	// can still be published through Queue.
	Interval time.Duration
	Backoff  time.Duration
}

// Sweeps is the running sweep machinery: a job store for status queries, a
// queue feeding workers, and the optional scheduler.
type Sweeps struct {
	Jobs  *jobsmem.Store
	Queue *jobsmem.Queue

	cancel context.CancelFunc
}

// StartSweeps starts sweep workers against the app's service. Workers and
// scheduler run until ctx ends or Shutdown is called.
func (a *App) StartSweeps(ctx context.Context, opts SweepOptions, log zerolog.Logger) (*Sweeps, error) {
	ctx, cancel := context.WithCancel(logger.WithContext(ctx, log))
	s := &Sweeps{Jobs: jobsmem.NewStore(), cancel: cancel}
	s.Queue = jobsmem.NewQueue(sweepQueueSize, s.Jobs).WithWorkers(opts.Workers)
	if opts.Backoff > 0 {
		s.Queue.WithBackoff(opts.Backoff)
	}

	if err := s.Queue.Start(ctx, jobs.NewSweepHandler(a.Service, time.Now)); err != nil {
		cancel()
		return nil, err
	}
	if opts.Interval > 0 {
		go jobs.NewScheduler(s.Queue, opts.Interval, log).Run(ctx)
	}
	return s, nil
}

// Shutdown stops the scheduler and waits for in-flight sweeps, or for ctx.
func (s *Sweeps) Shutdown(ctx context.Context) error {
	s.cancel()
	return errors.Join(s.Queue.Stop(ctx), s.Queue.Close())
}
