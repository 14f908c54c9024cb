// Package queue provides the durable, at-least-once job runtime that feeds
// the message pipeline. The runtime is a narrow interface over a Redis-backed
// implementation so the pipeline stays testable without a broker; tests use
// the in-memory runtime from this package.
//
// Delivery contract: a job is handled by exactly one worker at a time, may be
// delivered more than once across retries or provider-side duplication, and
// is retried with exponential backoff until MaxAttempts. Exhausted jobs are
// surfaced through the job_failed event, never silently dropped.
package queue

import (
	"context"
	"time"
)

// Job is one unit of inbound work. Immutable once enqueued; the runtime owns
// it until a worker claims it. Attempt starts at 1 and the runtime advances
// it on each redelivery.
type Job struct {
	ID                string    `json:"job_id"`
	TenantID          string    `json:"tenant_id"`
	ChannelID         string    `json:"channel_id"`
	ConversationID    string    `json:"conversation_id"`
	MessageID         string    `json:"message_id"`
	ProviderMessageID string    `json:"provider_message_id"`
	SenderID          string    `json:"sender_id"`
	Text              string    `json:"text"`
	EnqueuedAt        time.Time `json:"enqueued_at"`
	Attempt           int       `json:"attempt_count"`
	MaxAttempts       int       `json:"max_attempts"`
}

// Handler processes one job. A nil return acks the job; an error schedules a
// retry (or the terminal failure event once attempts are exhausted).
type Handler func(ctx context.Context, job Job) error

// Runtime is the enqueue-side contract exposed to producers (webhook ingress
// lives behind this boundary).
type Runtime interface {
	Enqueue(ctx context.Context, job Job) error
}

// Options tunes a runtime.
type Options struct {
	Workers       int
	MaxAttempts   int
	RetryBackoff  time.Duration // base; doubled per completed attempt
	JobTTL        time.Duration
	SweepInterval time.Duration
	SweepMaxAge   time.Duration
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Second
	}
	if o.JobTTL <= 0 {
		o.JobTTL = 24 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.SweepMaxAge <= 0 {
		o.SweepMaxAge = 10 * time.Minute
	}
	return o
}

// retryDelay returns the backoff before the next attempt: base doubled per
// completed attempt (attempt 1 -> base, attempt 2 -> 2*base, ...).
func retryDelay(base time.Duration, attemptsMade int) time.Duration {
	d := base
	for i := 1; i < attemptsMade; i++ {
		d *= 2
	}
	return d
}
