// Package guard implements the admission checks a worker runs for every
// queued inbound message: duplicate-delivery suppression, per-conversation
// and per-sender throughput limiting, and tenant quota enforcement.
//
// Each guard declares an explicit FailurePolicy for infrastructure errors.
// The asymmetry is deliberate and load-bearing: the idempotence guard and the
// rate limiter fail open (availability of message delivery outranks the cost
// of an occasional duplicate or burst), while the quota gate fails closed
// (unbounded generation cost outranks availability).
package guard

// FailurePolicy states how a guard behaves when its backing store errors.
type FailurePolicy int

const (
	// FailOpen lets the message proceed when the check cannot be performed.
	FailOpen FailurePolicy = iota
	// FailClosed blocks the message when the check cannot be performed.
	FailClosed
)

// String returns the policy name for logs.
func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "closed"
	}
	return "open"
}
