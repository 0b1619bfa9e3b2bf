package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper runs the due-date evaluator for a calendar date and reports how
// many records changed.
type Sweeper interface {
	RecomputeOverdue(ctx context.Context, today time.Time) (int, error)
}

// NewSweepHandler returns a Handler that runs sweeper for the job's date,
// or for now() when the job carries none.
func NewSweepHandler(sweeper Sweeper, now func() time.Time) Handler {
	return func(ctx context.Context, job *SweepOverdueJob) error {
		today, err := job.Date(now())
		if err != nil {
			return fmt.Errorf("sweep handler: %w", err)
		}
		updated, err := sweeper.RecomputeOverdue(ctx, today)
		job.Updated = updated
		return err
	}
}

// Scheduler publishes a sweep job at a fixed interval.
type Scheduler struct {
	publisher Publisher
	interval  time.Duration
	log       zerolog.Logger
}

// NewScheduler creates a scheduler; a non-positive interval means hourly.
func NewScheduler(publisher Publisher, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{publisher: publisher, interval: interval, log: log}
}

// Run publishes one sweep immediately, then one per tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("Sweep scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.publish(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Sweep scheduler stopped")
			return
		case <-ticker.C:
			s.publish(ctx)
		}
	}
}

func (s *Scheduler) publish(ctx context.Context) {
	job := &SweepOverdueJob{Trigger: TriggerSchedule}
	if err := s.publisher.PublishSweepOverdue(ctx, job); err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("Failed to publish scheduled sweep")
		}
		return
	}
	s.log.Debug().Str("job_id", job.JobID).Msg("Scheduled sweep published")
}
