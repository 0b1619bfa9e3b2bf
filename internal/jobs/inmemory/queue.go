package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvloznov/academy-payments/internal/jobs"
	"github.com/dvloznov/academy-payments/internal/logger"
	"github.com/google/uuid"
)

const (
	defaultWorkers    = 5
	defaultMaxRetries = 3
)

// ErrQueueClosed is returned by a stopped Queue.
var ErrQueueClosed = errors.New("job queue is closed")

// Queue is a channel-backed jobs.Publisher and jobs.Consumer for a single
// process. Job state is mirrored into the optional Store after every change.
type Queue struct {
	pending chan *jobs.SweepOverdueJob
	quit    chan struct{}
	store   jobs.Store

	workers int
	backoff time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue returns a queue holding up to bufferSize jobs before publishers block.
func NewQueue(bufferSize int, store jobs.Store) *Queue {
	return &Queue{
		pending: make(chan *jobs.SweepOverdueJob, bufferSize),
		quit:    make(chan struct{}),
		store:   store,
		workers: defaultWorkers,
		backoff: time.Second,
		now:     time.Now,
	}
}

// WithWorkers sets the number of goroutines started by Start.
func (q *Queue) WithWorkers(n int) *Queue {
	if n > 0 {
		q.workers = n
	}
	return q
}

// WithBackoff sets the delay unit; attempt n waits n units before rerunning.
func (q *Queue) WithBackoff(d time.Duration) *Queue {
	q.backoff = d
	return q
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// PublishSweepOverdue fills in the ID, status, creation time and retry limit
// when missing, saves the job and enqueues a private copy of it.
func (q *Queue) PublishSweepOverdue(ctx context.Context, job *jobs.SweepOverdueJob) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}
	if err := q.save(ctx, job); err != nil {
		return err
	}
	return q.enqueue(ctx, job.Clone())
}

func (q *Queue) enqueue(ctx context.Context, job *jobs.SweepOverdueJob) error {
	select {
	case q.pending <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return ErrQueueClosed
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.SweepOverdueJob) error {
	if q.store == nil {
		return nil
	}
	return q.store.SaveJob(ctx, job)
}

// Start launches the workers and returns.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go q.work(ctx, handler)
	}
	return nil
}

func (q *Queue) work(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.quit:
			return
		case job := <-q.pending:
			q.attempt(ctx, job, handler)
		}
	}
}

// attempt runs handler once and schedules the rerun when the job still has
// retries left.
func (q *Queue) attempt(ctx context.Context, job *jobs.SweepOverdueJob, handler jobs.Handler) {
	log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Logger()

	job.MarkRunning(q.now())
	if err := q.save(ctx, job); err != nil {
		log.Warn().Err(err).Msg("Failed to save job state")
	}

	err := handler(ctx, job)
	retry := job.Finish(err, q.now())
	if saveErr := q.save(ctx, job); saveErr != nil {
		log.Warn().Err(saveErr).Msg("Failed to save job state")
	}

	switch {
	case err == nil:
		log.Info().Int("updated", job.Updated).Msg("Sweep job completed")
	case retry:
		log.Warn().Err(err).Int("retry_count", job.RetryCount).Msg("Sweep job failed, retrying")
		next := job.Clone()
		next.Status = jobs.StatusPending
		next.StartedAt, next.CompletedAt = nil, nil
		time.AfterFunc(time.Duration(job.RetryCount)*q.backoff, func() {
			if q.isClosed() {
				return
			}
			if err := q.save(ctx, next); err != nil {
				log.Warn().Err(err).Msg("Failed to save job state")
			}
			if err := q.enqueue(ctx, next); err != nil && !errors.Is(err, ErrQueueClosed) {
				log.Error().Err(err).Msg("Failed to requeue sweep job")
			}
		})
	default:
		log.Error().Err(err).Int("retry_count", job.RetryCount).Msg("Sweep job failed")
	}
}

// Stop closes the queue and waits for running attempts, or for ctx.
// Calling it again is a no-op.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.quit)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
