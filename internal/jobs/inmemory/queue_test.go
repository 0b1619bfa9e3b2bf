package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/academy-payments/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.Status) *jobs.SweepOverdueJob {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached %s (last: %+v)", jobID, want, job)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store).WithWorkers(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job *jobs.SweepOverdueJob) error {
		job.Updated = 7
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}
	defer q.Stop(context.Background())

	job := &jobs.SweepOverdueJob{Trigger: jobs.TriggerManual, Today: "2024-03-11"}
	if err := q.PublishSweepOverdue(ctx, job); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if job.JobID == "" || job.MaxRetries != defaultMaxRetries {
		t.Errorf("Expected defaults to be filled, got %+v", job)
	}

	done := waitForStatus(t, store, job.JobID, jobs.StatusCompleted)
	if done.Updated != 7 || done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("Unexpected completed job: %+v", done)
	}
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store).WithWorkers(1).WithBackoff(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	handler := func(ctx context.Context, job *jobs.SweepOverdueJob) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}
	defer q.Stop(context.Background())

	job := &jobs.SweepOverdueJob{}
	if err := q.PublishSweepOverdue(ctx, job); err != nil {
		t.Fatal(err)
	}
	done := waitForStatus(t, store, job.JobID, jobs.StatusCompleted)
	if done.RetryCount != 2 || done.Error != "" {
		t.Errorf("Expected 2 retries and no error, got %+v", done)
	}
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store).WithWorkers(1).WithBackoff(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job *jobs.SweepOverdueJob) error { return errors.New("permanent") }
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}
	defer q.Stop(context.Background())

	job := &jobs.SweepOverdueJob{MaxRetries: 1}
	if err := q.PublishSweepOverdue(ctx, job); err != nil {
		t.Fatal(err)
	}
	failed := waitForStatus(t, store, job.JobID, jobs.StatusFailed)
	if failed.Error != "permanent" || failed.RetryCount != 1 {
		t.Errorf("Unexpected failed job: %+v", failed)
	}
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, nil)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishSweepOverdue(context.Background(), &jobs.SweepOverdueJob{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, ErrQueueClosed) {
		t.Error("Expected start on closed queue to fail")
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("Second stop should be a no-op, got %v", err)
	}
}
