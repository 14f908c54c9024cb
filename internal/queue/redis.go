package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/convoflow/go-message-pipeline/internal/events"
)

// Redis key layout. Job records live under jobKeyPrefix with a TTL; ids move
// between the pending list, the processing list, and the delayed zset.
const (
	jobKeyPrefix  = "msgjob:"
	pendingKey    = "msgjob_queue"
	processingKey = "msgjob_processing"
	delayedKey    = "msgjob_delayed"

	claimTimeout = 2 * time.Second
)

// Job record statuses persisted inside the envelope.
const (
	statusQueued     = "queued"
	statusProcessing = "processing"
	statusFailed     = "failed"
)

// jobRecord is the stored envelope around a Job: runtime bookkeeping that is
// not part of the producer-facing payload.
type jobRecord struct {
	Job       Job        `json:"job"`
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RedisRuntime is the production Runtime: a Redis-list work queue with a
// worker pool, exponential-backoff retries via a delayed zset, and a sweeper
// that requeues jobs stuck in processing after a worker crash.
type RedisRuntime struct {
	client  *redis.Client
	handler Handler
	emitter events.Emitter
	opts    Options

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRedisRuntime constructs a runtime over an injected client. Start must be
// called before jobs are processed; Enqueue works either way.
func NewRedisRuntime(client *redis.Client, handler Handler, emitter events.Emitter, opts Options) *RedisRuntime {
	return &RedisRuntime{
		client:  client,
		handler: handler,
		emitter: emitter,
		opts:    opts.withDefaults(),
	}
}

// Enqueue implements Runtime. Missing identifiers and attempt counters are
// filled with defaults.
func (q *RedisRuntime) Enqueue(ctx context.Context, job Job) error {
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

	rec := jobRecord{Job: job, Status: statusQueued, UpdatedAt: time.Now().UTC()}
	if err := q.saveRecord(ctx, rec); err != nil {
		return err
	}
	if err := q.client.LPush(ctx, pendingKey, job.ID).Err(); err != nil {
		return fmt.Errorf("queue: push %s: %w", job.ID, err)
	}
	return nil
}

// Start launches the worker pool, the delayed-job promoter, and the
// stuck-processing sweeper. Calling Start on a running runtime is a no-op.
func (q *RedisRuntime) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})

	log.Info().Int("workers", q.opts.Workers).Msg("queue: starting workers")
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(2)
	go q.promoteDelayed()
	go q.sweepStuck()
}

// Stop signals all goroutines and waits for them to drain.
func (q *RedisRuntime) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	log.Info().Msg("queue: all workers stopped")
}

// worker claims jobs until stopped. BLMove gives single-claimer semantics:
// an id lands on the processing list atomically with its removal from
// pending.
func (q *RedisRuntime) worker(n int) {
	defer q.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		id, err := q.client.BLMove(ctx, pendingKey, processingKey, "RIGHT", "LEFT", claimTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Int("worker", n).Msg("queue: claim failed")
			select {
			case <-q.stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}
		q.process(ctx, id)
	}
}

// process runs the handler for one claimed job id and settles the outcome.
func (q *RedisRuntime) process(ctx context.Context, id string) {
	rec, err := q.loadRecord(ctx, id)
	if err != nil {
		// Record expired or corrupt; drop the stray processing entry.
		log.Warn().Err(err).Str("job_id", id).Msg("queue: claimed job has no record")
		q.client.LRem(ctx, processingKey, 1, id)
		return
	}

	now := time.Now().UTC()
	rec.Status = statusProcessing
	rec.StartedAt = &now
	rec.UpdatedAt = now
	if err := q.saveRecord(ctx, *rec); err != nil {
		log.Warn().Err(err).Str("job_id", id).Msg("queue: processing marker not saved")
	}

	start := time.Now()
	handlerErr := q.handler(ctx, rec.Job)
	jobDuration.Observe(time.Since(start).Seconds())

	if handlerErr == nil {
		jobsTotal.WithLabelValues("ok").Inc()
		q.client.LRem(ctx, processingKey, 1, id)
		q.client.Del(ctx, jobKeyPrefix+id)
		return
	}
	q.settleFailure(ctx, *rec, handlerErr)
}

// settleFailure emits the failure events and either schedules a retry or
// parks the record as failed for operator inspection.
func (q *RedisRuntime) settleFailure(ctx context.Context, rec jobRecord, handlerErr error) {
	job := rec.Job
	willRetry := job.Attempt < job.MaxAttempts
	q.emitter.EmitFailure(ctx, jobFields(job), events.Failure{
		AttemptsMade: job.Attempt,
		AttemptsMax:  job.MaxAttempts,
		WillRetry:    willRetry,
		Err:          handlerErr,
	})

	q.client.LRem(ctx, processingKey, 1, job.ID)

	if !willRetry {
		jobsTotal.WithLabelValues("dead").Inc()
		rec.Status = statusFailed
		rec.UpdatedAt = time.Now().UTC()
		if err := q.saveRecord(ctx, rec); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("queue: dead job record not saved")
		}
		return
	}

	jobsTotal.WithLabelValues("retry").Inc()
	delay := retryDelay(q.opts.RetryBackoff, job.Attempt)
	rec.Job.Attempt++
	rec.Status = statusQueued
	rec.StartedAt = nil
	rec.UpdatedAt = time.Now().UTC()
	if err := q.saveRecord(ctx, rec); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("queue: retry record not saved")
		return
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, delayedKey, redis.Z{Score: readyAt, Member: job.ID}).Err(); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("queue: retry not scheduled")
		return
	}
	q.emitter.Emit(ctx, events.JobRetryScheduled, jobFields(job))
}

// promoteDelayed moves due retries from the delayed zset to the pending list.
func (q *RedisRuntime) promoteDelayed() {
	defer q.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			now := fmt.Sprintf("%d", time.Now().UnixMilli())
			ids, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
				Min: "-inf", Max: now, Count: 100,
			}).Result()
			if err != nil {
				log.Error().Err(err).Msg("queue: delayed scan failed")
				continue
			}
			for _, id := range ids {
				// Remove first so two promoters cannot double-queue one id.
				removed, err := q.client.ZRem(ctx, delayedKey, id).Result()
				if err != nil || removed == 0 {
					continue
				}
				if err := q.client.LPush(ctx, pendingKey, id).Err(); err != nil {
					log.Error().Err(err).Str("job_id", id).Msg("queue: promote failed")
				}
			}
		}
	}
}

// sweepStuck requeues jobs that have sat in processing longer than
// SweepMaxAge, recovering work lost to crashed workers.
func (q *RedisRuntime) sweepStuck() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.SweepInterval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			ids, err := q.client.LRange(ctx, processingKey, 0, -1).Result()
			if err != nil {
				log.Error().Err(err).Msg("queue: sweeper scan failed")
				continue
			}
			now := time.Now().UTC()
			for _, id := range ids {
				rec, err := q.loadRecord(ctx, id)
				if err != nil {
					q.client.LRem(ctx, processingKey, 1, id)
					continue
				}
				if rec.Status != statusProcessing {
					q.client.LRem(ctx, processingKey, 1, id)
					continue
				}
				started := rec.UpdatedAt
				if rec.StartedAt != nil {
					started = *rec.StartedAt
				}
				if now.Sub(started) <= q.opts.SweepMaxAge {
					continue
				}
				log.Warn().
					Str("job_id", id).
					Dur("age", now.Sub(started)).
					Msg("queue: recovering stuck job")
				rec.Status = statusQueued
				rec.StartedAt = nil
				rec.UpdatedAt = now
				if err := q.saveRecord(ctx, *rec); err != nil {
					continue
				}
				q.client.LRem(ctx, processingKey, 1, id)
				q.client.LPush(ctx, pendingKey, id)
			}
		}
	}
}

func (q *RedisRuntime) saveRecord(ctx context.Context, rec jobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("queue: marshal %s: %w", rec.Job.ID, err)
	}
	if err := q.client.Set(ctx, jobKeyPrefix+rec.Job.ID, data, q.opts.JobTTL).Err(); err != nil {
		return fmt.Errorf("queue: save %s: %w", rec.Job.ID, err)
	}
	return nil
}

func (q *RedisRuntime) loadRecord(ctx context.Context, id string) (*jobRecord, error) {
	data, err := q.client.Get(ctx, jobKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: load %s: %w", id, err)
	}
	var rec jobRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("queue: decode %s: %w", id, err)
	}
	return &rec, nil
}

func jobFields(job Job) events.Fields {
	return events.Fields{
		JobID:             job.ID,
		ProviderMessageID: job.ProviderMessageID,
		TenantID:          job.TenantID,
		ConversationID:    job.ConversationID,
	}
}
