package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockPublisher struct {
	mu   sync.Mutex
	jobs []*SweepOverdueJob
}

func (m *mockPublisher) PublishSweepOverdue(ctx context.Context, job *SweepOverdueJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.JobID = "job"
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

type mockSweeper struct {
	RecomputeOverdueFunc func(ctx context.Context, today time.Time) (int, error)
}

func (m *mockSweeper) RecomputeOverdue(ctx context.Context, today time.Time) (int, error) {
	return m.RecomputeOverdueFunc(ctx, today)
}

func TestScheduler_Run(t *testing.T) {
	pub := &mockPublisher{}
	s := NewScheduler(pub, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if pub.count() < 3 {
		t.Fatalf("Expected at least 3 published sweeps, got %d", pub.count())
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, j := range pub.jobs {
		if j.Trigger != TriggerSchedule {
			t.Errorf("Expected schedule trigger, got %s", j.Trigger)
		}
	}
}

func TestSweepHandler(t *testing.T) {
	now := time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC)
	var got time.Time
	sweeper := &mockSweeper{RecomputeOverdueFunc: func(ctx context.Context, today time.Time) (int, error) {
		got = today
		return 4, nil
	}}
	handler := NewSweepHandler(sweeper, func() time.Time { return now })

	job := &SweepOverdueJob{JobID: "j1"}
	if err := handler(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(now) || job.Updated != 4 {
		t.Errorf("Expected sweep at %v updating 4, got %v updating %d", now, got, job.Updated)
	}

	job = &SweepOverdueJob{JobID: "j2", Today: "2024-01-31"}
	if err := handler(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected explicit date, got %v", got)
	}

	if err := handler(context.Background(), &SweepOverdueJob{Today: "31/01/2024"}); err == nil {
		t.Error("Expected error for malformed date")
	}
}

func TestSweepHandler_PropagatesError(t *testing.T) {
	boom := errors.New("store down")
	handler := NewSweepHandler(&mockSweeper{RecomputeOverdueFunc: func(ctx context.Context, today time.Time) (int, error) {
		return 1, boom
	}}, time.Now)

	job := &SweepOverdueJob{}
	if err := handler(context.Background(), job); !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}
	if job.Updated != 1 {
		t.Errorf("Expected partial count 1, got %d", job.Updated)
	}
}
