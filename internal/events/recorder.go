package events

import (
	"context"
	"sync"
)

// Recorded is one captured event with its payload.
type Recorded struct {
	Event   string
	Fields  Fields
	Failure *Failure
}

// Recorder is an Emitter that captures events in memory. It backs unit tests
// that assert on the event stream, in particular the cross-event invariants.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, event string, f Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Fields: f})
}

// EmitFailure implements Emitter.
func (r *Recorder) EmitFailure(_ context.Context, f Fields, fail Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := fail
	r.events = append(r.events, Recorded{Event: JobFailed, Fields: f, Failure: &cp})
}

// All returns a copy of every captured event in emission order.
func (r *Recorder) All() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the captured event names in emission order.
func (r *Recorder) Names() []string {
	all := r.All()
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = e.Event
	}
	return out
}

// ForJob returns the event names captured for one job id, in order.
func (r *Recorder) ForJob(jobID string) []string {
	var out []string
	for _, e := range r.All() {
		if e.Fields.JobID == jobID {
			out = append(out, e.Event)
		}
	}
	return out
}

// Has reports whether an event with the given name was captured.
func (r *Recorder) Has(event string) bool {
	for _, e := range r.All() {
		if e.Event == event {
			return true
		}
	}
	return false
}

// Reset discards all captured events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
