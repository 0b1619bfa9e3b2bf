// Package inmemory holds the single-process job queue and job store.
// State is lost on restart.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/academy-payments/internal/jobs"
)

// ErrJobNotFound is returned for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// Store is a jobs.Store over a map. It stores and returns copies.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*jobs.SweepOverdueJob
}

func NewStore() *Store {
	return &Store{byID: make(map[string]*jobs.SweepOverdueJob)}
}

func (s *Store) SaveJob(ctx context.Context, job *jobs.SweepOverdueJob) error {
	if job.JobID == "" {
		return errors.New("save job: missing job ID")
	}
	s.mu.Lock()
	s.byID[job.JobID] = job.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.SweepOverdueJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.byID[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}

// ListJobs orders by creation time, newest first, then by ID.
func (s *Store) ListJobs(ctx context.Context, filter jobs.Filter) ([]*jobs.SweepOverdueJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.SweepOverdueJob, 0, len(s.byID))
	for _, job := range s.byID {
		if filter.Matches(job) {
			matched = append(matched, job.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.JobID < b.JobID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*jobs.SweepOverdueJob{}, nil
	}
	if filter.Offset > 0 {
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

var _ jobs.Store = (*Store)(nil)
