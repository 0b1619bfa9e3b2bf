package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/academy-payments/internal/jobs"
)

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	seed := []*jobs.SweepOverdueJob{
		{JobID: "a", Trigger: jobs.TriggerSchedule, Status: jobs.StatusCompleted, CreatedAt: base},
		{JobID: "b", Trigger: jobs.TriggerManual, Status: jobs.StatusFailed, CreatedAt: base.Add(time.Hour)},
		{JobID: "c", Trigger: jobs.TriggerSchedule, Status: jobs.StatusCompleted, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, j := range seed {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	all, _ := s.ListJobs(ctx, jobs.Filter{})
	if len(all) != 3 || all[0].JobID != "c" || all[2].JobID != "a" {
		t.Errorf("Expected newest first, got %d jobs", len(all))
	}

	scheduled, _ := s.ListJobs(ctx, jobs.Filter{Trigger: jobs.TriggerSchedule})
	if len(scheduled) != 2 {
		t.Errorf("Expected 2 scheduled jobs, got %d", len(scheduled))
	}

	failed, _ := s.ListJobs(ctx, jobs.Filter{Status: jobs.StatusFailed})
	if len(failed) != 1 || failed[0].JobID != "b" {
		t.Errorf("Expected job b, got %v", failed)
	}

	page, _ := s.ListJobs(ctx, jobs.Filter{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].JobID != "b" {
		t.Errorf("Unexpected page %v", page)
	}
}

func TestStore_GetJob(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.SaveJob(ctx, &jobs.SweepOverdueJob{}); err == nil {
		t.Error("Expected error for missing job ID")
	}
	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}

	started := time.Now()
	job := &jobs.SweepOverdueJob{JobID: "j", Status: jobs.StatusPending, StartedAt: &started}
	_ = s.SaveJob(ctx, job)
	job.Status = jobs.StatusRunning

	got, _ := s.GetJob(ctx, "j")
	if got.Status != jobs.StatusPending {
		t.Error("Store must keep its own copy")
	}

	page, err := s.ListJobs(ctx, jobs.Filter{Offset: 5})
	if err != nil || page == nil || len(page) != 0 {
		t.Errorf("Expected empty non-nil page past the end, got %v, %v", page, err)
	}
}
