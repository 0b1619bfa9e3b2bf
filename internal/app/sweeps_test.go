package app

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/jobs"
	"github.com/dvloznov/academy-payments/internal/logger"
	"github.com/dvloznov/academy-payments/internal/payments"
)

func TestStartSweeps_RunsPublishedJob(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig("memory", ""), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	rec, err := a.Service.CreatePayment(ctx, payments.NewPayment{
		PayerSubjectID: "student-1",
		CategoryRef:    "monthly",
		DueDate:        time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	sweeps, err := a.StartSweeps(ctx, SweepOptions{Workers: 1}, logger.Nop())
	if err != nil {
		t.Fatalf("StartSweeps: %v", err)
	}
	defer sweeps.Shutdown(context.Background())

	job := &jobs.SweepOverdueJob{Today: "2025-01-10", Trigger: jobs.TriggerManual}
	if err := sweeps.Queue.PublishSweepOverdue(ctx, job); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, err := sweeps.Jobs.GetJob(ctx, job.JobID)
		if err == nil && got.Status == jobs.StatusCompleted {
			if got.Updated != 1 {
				t.Errorf("Expected 1 updated record, got %d", got.Updated)
			}
			stored, _ := a.Store.Get(ctx, rec.ID)
			if stored.Status.Timeliness() != domain.TimelinessOverdue {
				t.Errorf("Expected overdue record, got %v", stored.Status)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Sweep job never completed")
}

func TestSweeps_ShutdownStopsQueue(t *testing.T) {
	a, err := New(context.Background(), testConfig("memory", ""), logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	sweeps, err := a.StartSweeps(context.Background(), SweepOptions{Workers: 2, Interval: time.Hour}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := sweeps.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := sweeps.Queue.PublishSweepOverdue(context.Background(), &jobs.SweepOverdueJob{}); err == nil {
		t.Error("Expected publish after shutdown to fail")
	}
}
