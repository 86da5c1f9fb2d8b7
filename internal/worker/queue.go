// Package worker provides a small background job queue for outbound message
// dispatch. Send endpoints return immediately after enqueueing; a single
// worker goroutine drains the queue in FIFO order, pausing between jobs so
// provider rate limits are respected.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Job is one unit of background work.
type Job struct {
	// Name identifies the job in logs.
	Name string
	// Run does the work. It must honor ctx cancellation.
	Run func(context.Context)
}

// Queue runs jobs sequentially on one background goroutine.
type Queue struct {
	delay time.Duration
	log   zerolog.Logger
	jobs  chan Job

	running atomic.Bool
	pending atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a queue with the given buffer capacity and inter-job delay.
// A zero delay disables pausing between jobs.
func New(buffer int, delay time.Duration, log zerolog.Logger) (*Queue, error) {
	if buffer <= 0 {
		return nil, errors.New("buffer must be > 0")
	}
	if delay < 0 {
		return nil, errors.New("delay must be >= 0")
	}
	return &Queue{
		delay: delay,
		log:   log,
		jobs:  make(chan Job, buffer),
		done:  make(chan struct{}),
	}, nil
}

// Start launches the worker goroutine. It reports false when already running.
func (q *Queue) Start() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	q.running.Store(true)

	go func() {
		defer close(q.done)

		q.log.Info().Dur("delay", q.delay).Msg("worker queue started")

		for {
			select {
			case <-ctx.Done():
				q.log.Info().Msg("worker queue stopping")
				return
			case job := <-q.jobs:
				q.pending.Add(-1)
				q.safeRun(ctx, job)

				if q.delay > 0 {
					select {
					case <-ctx.Done():
						q.log.Info().Msg("worker queue stopping")
						return
					case <-time.After(q.delay):
					}
				}
			}
		}
	}()

	return true
}

// Stop cancels the worker and waits for it to exit. Jobs still buffered are
// dropped. It reports false when the queue was not running.
func (q *Queue) Stop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running.Load() {
		return false
	}

	q.cancel()
	<-q.done
	q.running.Store(false)

	q.log.Info().Int64("dropped", q.pending.Load()).Msg("worker queue stopped")
	return true
}

// IsRunning reports whether the worker goroutine is active.
func (q *Queue) IsRunning() bool {
	return q.running.Load()
}

// Pending returns the number of jobs waiting in the buffer.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// Enqueue adds a job without blocking. It reports false when the buffer is
// full; callers surface that as a retryable condition.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		q.pending.Add(1)
		return true
	default:
		q.log.Warn().Str("job", job.Name).Msg("worker queue full, job rejected")
		return false
	}
}

func (q *Queue) safeRun(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Str("job", job.Name).Any("panic", r).Msg("worker job panic recovered")
		}
	}()

	start := time.Now()
	job.Run(ctx)
	q.log.Info().Str("job", job.Name).Int64("duration_ms", time.Since(start).Milliseconds()).Msg("worker job completed")
}
