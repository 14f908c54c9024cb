package guard

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/convoflow/go-message-pipeline/internal/domain"
	"github.com/convoflow/go-message-pipeline/internal/repo"
)

// Quota rejection reasons.
const (
	ReasonQuotaExceeded   = "quota_exceeded"
	ReasonQuotaCheckError = "quota_check_error"
)

// QuotaResult is the stateless outcome of one Evaluate call.
//
// Cached reports that the rejection came from the conversation's cached
// block flag without consulting the authoritative counter; the orchestrator
// emits a distinct event for that path.
type QuotaResult struct {
	Allowed      bool
	Reason       string
	Cached       bool
	CurrentUsage int
	Limit        int
}

// QuotaGate decides whether a tenant may consume one more unit of generation
// capacity. The fast path is the conversation's cached block flag; the slow
// path atomically consumes the tenant's daily counter.
//
// FailurePolicy: FailClosed. Any error evaluating quota blocks the message —
// the opposite of the other guards, because an unbounded generation bill is
// worse than a delayed reply.
//
// The cached flag is day-scoped (domain.QuotaState.ActiveAt): a block from a
// previous UTC day is stale and forces one authoritative re-check, since the
// counter has a fresh row for the new day.
type QuotaGate struct {
	DB *gorm.DB

	// now is a clock seam for tests.
	now func() time.Time
}

// NewQuotaGate constructs a gate over the durable store.
func NewQuotaGate(db *gorm.DB) *QuotaGate {
	return &QuotaGate{DB: db, now: time.Now}
}

// Policy returns the guard's failure policy.
func (g *QuotaGate) Policy() FailurePolicy { return FailClosed }

// IsBlocked reports whether the conversation's cached block flag currently
// applies.
func (g *QuotaGate) IsBlocked(conv *domain.Conversation) bool {
	return conv.Quota.ActiveAt(g.now())
}

// Evaluate decides whether one more generation unit may be consumed for the
// tenant. When the conversation is cache-blocked, no counter access occurs.
// Otherwise one unit is consumed atomically; a rejected consume means the
// daily budget is exhausted and the orchestrator must call MarkBlocked.
func (g *QuotaGate) Evaluate(ctx context.Context, tenant *domain.Tenant, conv *domain.Conversation) QuotaResult {
	if g.IsBlocked(conv) {
		decisions.WithLabelValues("quota", "blocked_cached").Inc()
		return QuotaResult{
			Allowed: false,
			Reason:  ReasonQuotaExceeded,
			Cached:  true,
			Limit:   tenant.DailyMessageLimit,
		}
	}

	day := domain.UsageDay(g.now())
	count, allowed, err := repo.ConsumeDailyUsage(ctx, g.DB, tenant.ID, day, tenant.DailyMessageLimit)
	if err != nil {
		log.Error().Err(err).
			Str("tenant_id", tenant.ID).
			Str("day", day).
			Str("failure_policy", g.Policy().String()).
			Msg("quota check failed, blocking message")
		decisions.WithLabelValues("quota", "error").Inc()
		return QuotaResult{
			Allowed: false,
			Reason:  ReasonQuotaCheckError,
			Limit:   tenant.DailyMessageLimit,
		}
	}
	if !allowed {
		decisions.WithLabelValues("quota", "exhausted").Inc()
		return QuotaResult{
			Allowed:      false,
			Reason:       ReasonQuotaExceeded,
			CurrentUsage: count,
			Limit:        tenant.DailyMessageLimit,
		}
	}

	decisions.WithLabelValues("quota", "allowed").Inc()
	return QuotaResult{
		Allowed:      true,
		CurrentUsage: count,
		Limit:        tenant.DailyMessageLimit,
	}
}

// MarkBlocked records the start of a blocking episode on the conversation so
// later messages take the fast path. Called by the orchestrator exactly once
// per episode, on the first slow-path exhaustion.
func (g *QuotaGate) MarkBlocked(ctx context.Context, conv *domain.Conversation) error {
	at := g.now().UTC()
	if err := repo.MarkConversationBlocked(ctx, g.DB, conv.ID, at); err != nil {
		return err
	}
	conv.Quota.Blocked = true
	conv.Quota.BlockedAt = &at
	return nil
}

// ClearStaleBlock drops a cached block left over from a previous UTC day.
// Called when the slow-path re-check succeeds after a rollover.
func (g *QuotaGate) ClearStaleBlock(ctx context.Context, conv *domain.Conversation) error {
	if !conv.Quota.Blocked || g.IsBlocked(conv) {
		return nil
	}
	if err := repo.ClearConversationBlock(ctx, g.DB, conv.ID); err != nil {
		return err
	}
	conv.Quota.Blocked = false
	conv.Quota.BlockedAt = nil
	return nil
}
