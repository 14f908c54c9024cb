package events

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogEmitFieldNames(t *testing.T) {
	var buf bytes.Buffer
	em := NewLog(zerolog.New(&buf))

	em.Emit(context.Background(), MessageSent, Fields{
		JobID:             "j1",
		ProviderMessageID: "pm1",
		TenantID:          "t1",
		ConversationID:    "c1",
	})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}

	// Bit-exact field names: downstream tooling greps these.
	want := map[string]string{
		"event":               "message_sent",
		"job_id":              "j1",
		"provider_message_id": "pm1",
		"tenant_id":           "t1",
		"conversation_id":     "c1",
	}
	for k, v := range want {
		got, ok := line[k]
		if !ok {
			t.Fatalf("field %q missing from %v", k, line)
		}
		if got != v {
			t.Fatalf("field %q = %v, want %q", k, got, v)
		}
	}
}

func TestLogEmitFailureFieldNames(t *testing.T) {
	var buf bytes.Buffer
	em := NewLog(zerolog.New(&buf))

	em.EmitFailure(context.Background(),
		Fields{JobID: "j1", TenantID: "t1", ConversationID: "c1"},
		Failure{AttemptsMade: 2, AttemptsMax: 3, WillRetry: true, Err: context.DeadlineExceeded},
	)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	if line["event"] != "job_failed" {
		t.Fatalf("event = %v, want job_failed", line["event"])
	}
	if line["attempts_made"] != float64(2) || line["attempts_max"] != float64(3) {
		t.Fatalf("attempt fields wrong: %v", line)
	}
	if line["will_retry"] != true {
		t.Fatalf("will_retry = %v, want true", line["will_retry"])
	}
	if line["error"] != context.DeadlineExceeded.Error() {
		t.Fatalf("error = %v", line["error"])
	}
}

func TestEventNameValues(t *testing.T) {
	// These strings are a wire contract with downstream consumers.
	fixed := map[string]string{
		DuplicateMessageDropped: "duplicate_message_dropped",
		RateLimited:             "rate_limited",
		QuotaExceeded:           "quota_exceeded",
		QuotaExceededHandled:    "quota_exceeded_handled",
		LLMRequest:              "llm_request",
		LLMRequestCompleted:     "llm_request_completed",
		MessageSent:             "message_sent",
		JobFailed:               "job_failed",
		JobRetryScheduled:       "job_retry_scheduled",
	}
	for got, want := range fixed {
		if got != want {
			t.Fatalf("event constant %q drifted from contract value %q", got, want)
		}
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	r.Emit(ctx, LLMRequest, Fields{JobID: "j1"})
	r.Emit(ctx, MessageSent, Fields{JobID: "j1"})
	r.Emit(ctx, RateLimited, Fields{JobID: "j2"})
	r.EmitFailure(ctx, Fields{JobID: "j3"}, Failure{AttemptsMade: 1, AttemptsMax: 3, WillRetry: true})

	if got := r.ForJob("j1"); len(got) != 2 || got[0] != LLMRequest || got[1] != MessageSent {
		t.Fatalf("ForJob(j1) = %v", got)
	}
	if !r.Has(JobFailed) {
		t.Fatal("Has(JobFailed) = false")
	}
	if names := r.Names(); len(names) != 4 {
		t.Fatalf("Names() = %v", names)
	}

	r.Reset()
	if len(r.All()) != 0 {
		t.Fatal("Reset did not clear events")
	}
}
