// Package jobs runs the due-date sweep in the background: a publisher/consumer
// pair moves SweepOverdueJobs to workers, a Store keeps their status for the
// API, and a Scheduler publishes them periodically.
package jobs

import (
	"context"
	"fmt"
	"time"
)

// Status is where a sweep job is in its run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusRetrying means the last attempt failed and another is scheduled.
	StatusRetrying Status = "retrying"
)

// Trigger records who asked for a sweep.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// DateLayout is the format of SweepOverdueJob.Today.
const DateLayout = "2006-01-02"

// SweepOverdueJob asks a worker to run the due-date evaluator.
type SweepOverdueJob struct {
	JobID string `json:"job_id"`

	// Today is the calendar date to evaluate against. Empty means the
	// worker's current date.
	Today   string  `json:"today,omitempty"`
	Trigger Trigger `json:"trigger"`
	Status  Status  `json:"status"`

	// Updated counts the records whose timeliness changed on the last attempt.
	Updated int `json:"updated"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// Date resolves the evaluation date, using now when Today is empty.
func (j *SweepOverdueJob) Date(now time.Time) (time.Time, error) {
	if j.Today == "" {
		return now, nil
	}
	d, err := time.Parse(DateLayout, j.Today)
	if err != nil {
		return time.Time{}, fmt.Errorf("job %s: invalid date %q: %w", j.JobID, j.Today, err)
	}
	return d, nil
}

// MarkRunning records the start of an attempt.
func (j *SweepOverdueJob) MarkRunning(at time.Time) {
	j.Status = StatusRunning
	j.StartedAt = &at
	j.CompletedAt = nil
}

// Finish records the outcome of an attempt and reports whether the job
// should run again.
func (j *SweepOverdueJob) Finish(err error, at time.Time) (retry bool) {
	j.CompletedAt = &at
	if err == nil {
		j.Status = StatusCompleted
		j.Error = ""
		return false
	}
	j.Error = err.Error()
	if j.RetryCount < j.MaxRetries {
		j.RetryCount++
		j.Status = StatusRetrying
		return true
	}
	j.Status = StatusFailed
	return false
}

// Clone returns a deep copy.
func (j *SweepOverdueJob) Clone() *SweepOverdueJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Handler runs one attempt of a job. A non-nil error schedules a retry
// while the job has retries left.
type Handler func(ctx context.Context, job *SweepOverdueJob) error

// Publisher enqueues sweep jobs.
type Publisher interface {
	PublishSweepOverdue(ctx context.Context, job *SweepOverdueJob) error
	Close() error
}

// Consumer feeds queued jobs to a Handler.
type Consumer interface {
	// Start returns immediately; jobs are handled until ctx ends or Stop is called.
	Start(ctx context.Context, handler Handler) error
	// Stop waits for in-flight attempts to finish.
	Stop(ctx context.Context) error
}

// Store keeps job state for status queries.
type Store interface {
	SaveJob(ctx context.Context, job *SweepOverdueJob) error
	GetJob(ctx context.Context, jobID string) (*SweepOverdueJob, error)
	// ListJobs returns matching jobs, newest first.
	ListJobs(ctx context.Context, filter Filter) ([]*SweepOverdueJob, error)
}

// Filter narrows ListJobs. Zero fields match everything.
type Filter struct {
	Status  Status
	Trigger Trigger
	Limit   int
	Offset  int
}

// Matches reports whether job passes the status and trigger filters.
func (f Filter) Matches(job *SweepOverdueJob) bool {
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	return f.Trigger == "" || job.Trigger == f.Trigger
}
