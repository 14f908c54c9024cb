package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/convoflow/go-message-pipeline/internal/faststore"
)

// IdempotencyResult is the stateless outcome of one Claim call. It is
// consumed immediately by the orchestrator and never persisted.
type IdempotencyResult struct {
	IsDuplicate bool
}

// IdempotencyGuard decides whether an inbound message, identified by
// (tenant, provider message id), has been seen before. The first claim of a
// key wins; every later claim within the TTL is a duplicate.
//
// FailurePolicy: FailOpen. A fast-store error admits the message.
type IdempotencyGuard struct {
	Store faststore.Store
	// TTL is the dedup-key lifetime, typically 24h: providers do not redeliver
	// older messages.
	TTL time.Duration
}

// NewIdempotencyGuard constructs a guard over the given store.
func NewIdempotencyGuard(store faststore.Store, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{Store: store, TTL: ttl}
}

// Policy returns the guard's failure policy.
func (g *IdempotencyGuard) Policy() FailurePolicy { return FailOpen }

// Claim attempts to claim the (tenant, provider message id) key.
//
// An empty provider message id cannot be deduplicated; the message is
// admitted and a warning is logged. This is a deliberate permissive default.
func (g *IdempotencyGuard) Claim(ctx context.Context, tenantID, providerMessageID string) IdempotencyResult {
	if providerMessageID == "" {
		log.Warn().
			Str("tenant_id", tenantID).
			Msg("inbound message has no provider message id, skipping dedup")
		decisions.WithLabelValues("idempotency", "no_key").Inc()
		return IdempotencyResult{IsDuplicate: false}
	}

	key := idempotencyKey(tenantID, providerMessageID)
	created, err := g.Store.SetNX(ctx, key, "1", g.TTL)
	if err != nil {
		log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("provider_message_id", providerMessageID).
			Str("failure_policy", g.Policy().String()).
			Msg("idempotency claim failed, admitting message")
		decisions.WithLabelValues("idempotency", "error").Inc()
		return IdempotencyResult{IsDuplicate: false}
	}
	if created {
		decisions.WithLabelValues("idempotency", "claimed").Inc()
		return IdempotencyResult{IsDuplicate: false}
	}
	decisions.WithLabelValues("idempotency", "duplicate").Inc()
	return IdempotencyResult{IsDuplicate: true}
}

func idempotencyKey(tenantID, providerMessageID string) string {
	return fmt.Sprintf("idempotence:%s:%s", tenantID, providerMessageID)
}
