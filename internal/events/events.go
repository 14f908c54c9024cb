// Package events defines the canonical pipeline event stream. Downstream
// billing and incident tooling parses these events by exact field name, so
// the names here are a wire contract: do not rename fields or events without
// coordinating with the consumers.
//
// Every event carries job_id, provider_message_id, tenant_id, and
// conversation_id. Failure events additionally carry attempts_made,
// attempts_max, will_retry, and error.
package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Canonical event names.
const (
	DuplicateMessageDropped = "duplicate_message_dropped"
	RateLimited             = "rate_limited"
	QuotaExceeded           = "quota_exceeded"
	QuotaExceededHandled    = "quota_exceeded_handled"
	LLMRequest              = "llm_request"
	LLMRequestCompleted     = "llm_request_completed"
	MessageSent             = "message_sent"
	JobFailed               = "job_failed"
	JobRetryScheduled       = "job_retry_scheduled"
)

// Fields identifies the job an event belongs to.
type Fields struct {
	JobID             string
	ProviderMessageID string
	TenantID          string
	ConversationID    string
}

// Failure carries the extra payload of a job_failed event.
type Failure struct {
	AttemptsMade int
	AttemptsMax  int
	WillRetry    bool
	Err          error
}

// Emitter publishes pipeline events. Implementations must be safe for
// concurrent use by multiple workers.
type Emitter interface {
	Emit(ctx context.Context, event string, f Fields)
	EmitFailure(ctx context.Context, f Fields, fail Failure)
}

// eventsTotal counts emitted events by name; the operational twin of the log
// stream, used for alerting thresholds.
var eventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_events_total",
		Help: "Total number of pipeline events emitted, by event name.",
	},
	[]string{"event"},
)

func init() {
	prometheus.MustRegister(eventsTotal)
}

// Log is the production Emitter: one structured log line per event plus a
// Prometheus counter increment.
type Log struct {
	Logger zerolog.Logger
}

// NewLog constructs a Log emitter writing through the given logger.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{Logger: logger}
}

// Emit implements Emitter.
func (l *Log) Emit(_ context.Context, event string, f Fields) {
	eventsTotal.WithLabelValues(event).Inc()
	l.Logger.Info().
		Str("event", event).
		Str("job_id", f.JobID).
		Str("provider_message_id", f.ProviderMessageID).
		Str("tenant_id", f.TenantID).
		Str("conversation_id", f.ConversationID).
		Msg("pipeline event")
}

// EmitFailure implements Emitter.
func (l *Log) EmitFailure(_ context.Context, f Fields, fail Failure) {
	eventsTotal.WithLabelValues(JobFailed).Inc()
	errMsg := ""
	if fail.Err != nil {
		errMsg = fail.Err.Error()
	}
	l.Logger.Error().
		Str("event", JobFailed).
		Str("job_id", f.JobID).
		Str("provider_message_id", f.ProviderMessageID).
		Str("tenant_id", f.TenantID).
		Str("conversation_id", f.ConversationID).
		Int("attempts_made", fail.AttemptsMade).
		Int("attempts_max", fail.AttemptsMax).
		Bool("will_retry", fail.WillRetry).
		Str("error", errMsg).
		Msg("pipeline event")
}
