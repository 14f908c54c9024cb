package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convoflow/go-message-pipeline/internal/events"
)

// MemoryRuntime is an in-process Runtime with the same at-least-once and
// retry semantics as the Redis runtime, minus durability and backoff delays.
// It drives unit tests and lets the pipeline be exercised end to end without
// a broker.
type MemoryRuntime struct {
	handler Handler
	emitter events.Emitter
	opts    Options

	mu      sync.Mutex
	pending []Job
}

// NewMemoryRuntime constructs an empty in-memory runtime.
func NewMemoryRuntime(handler Handler, emitter events.Emitter, opts Options) *MemoryRuntime {
	return &MemoryRuntime{
		handler: handler,
		emitter: emitter,
		opts:    opts.withDefaults(),
	}
}

// Enqueue implements Runtime.
func (q *MemoryRuntime) Enqueue(_ context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.MaxAttempts
	}

	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()
	return nil
}

// Len returns the number of jobs waiting to be drained.
func (q *MemoryRuntime) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain processes queued jobs (including retries it schedules itself) until
// the queue is empty. Retries run immediately; the production backoff delay
// is a broker concern, not part of the handler contract under test.
func (q *MemoryRuntime) Drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		err := q.handler(ctx, job)
		if err == nil {
			continue
		}

		willRetry := job.Attempt < job.MaxAttempts
		q.emitter.EmitFailure(ctx, jobFields(job), events.Failure{
			AttemptsMade: job.Attempt,
			AttemptsMax:  job.MaxAttempts,
			WillRetry:    willRetry,
			Err:          err,
		})
		if !willRetry {
			continue
		}
		retry := job
		retry.Attempt++
		q.mu.Lock()
		q.pending = append(q.pending, retry)
		q.mu.Unlock()
		q.emitter.Emit(ctx, events.JobRetryScheduled, jobFields(job))
	}
}
