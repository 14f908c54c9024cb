package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/convoflow/go-message-pipeline/internal/faststore"
)

// Rate-limit scopes. Conversation-level bursts are the primary abuse signal;
// the sender scope is a looser backstop used when no conversation has been
// resolved yet.
const (
	ScopeConversation = "conversation"
	ScopeSender       = "sender"
)

// RateLimitResult is the stateless outcome of one Check call.
//
// AlreadyNotified reports whether the caller was told about the throttle
// earlier in this window. The call that first crosses the limit gets
// AlreadyNotified=false and is responsible for sending the one-time notice;
// later over-limit calls in the same window are silent drops.
type RateLimitResult struct {
	IsLimited       bool
	CurrentCount    int64
	Limit           int
	WindowSeconds   int
	Scope           string
	AlreadyNotified bool
}

// RateLimiter enforces a fixed-window message budget per conversation or,
// when no conversation is resolved, per sender.
//
// FailurePolicy: FailOpen. A fast-store error admits the message.
type RateLimiter struct {
	Store faststore.Store

	ConversationLimit  int
	ConversationWindow time.Duration
	SenderLimit        int
	SenderWindow       time.Duration
}

// NewRateLimiter constructs a limiter with the standard budgets
// (5 per 30s per conversation, 20 per 300s per sender).
func NewRateLimiter(store faststore.Store) *RateLimiter {
	return &RateLimiter{
		Store:              store,
		ConversationLimit:  5,
		ConversationWindow: 30 * time.Second,
		SenderLimit:        20,
		SenderWindow:       300 * time.Second,
	}
}

// Policy returns the guard's failure policy.
func (l *RateLimiter) Policy() FailurePolicy { return FailOpen }

// Check atomically counts this message against the scoped window and reports
// whether it exceeds the budget.
//
// The counter TTL is set when the window starts: on the first increment, or
// when the key is found without a TTL (a crash between increment and expire
// on a previous call). Concurrent increments never lose updates; the window
// boundary itself is imprecise by design (a message arriving as the TTL
// expires starts a fresh window).
func (l *RateLimiter) Check(ctx context.Context, tenantID, conversationID, senderID string) RateLimitResult {
	scope, scopeID := ScopeConversation, conversationID
	limit, window := l.ConversationLimit, l.ConversationWindow
	if conversationID == "" {
		scope, scopeID = ScopeSender, senderID
		limit, window = l.SenderLimit, l.SenderWindow
	}

	res := RateLimitResult{
		Limit:         limit,
		WindowSeconds: int(window / time.Second),
		Scope:         scope,
	}

	key := rateKey(scope, tenantID, scopeID)
	count, err := l.Store.Incr(ctx, key)
	if err != nil {
		log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("scope", scope).
			Str("scope_id", scopeID).
			Str("failure_policy", l.Policy().String()).
			Msg("rate-limit increment failed, admitting message")
		decisions.WithLabelValues("ratelimit", "error").Inc()
		return res
	}
	res.CurrentCount = count

	if count == 1 {
		if _, err := l.Store.Expire(ctx, key, window); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("rate-limit window TTL not set")
		}
	} else if ttl, err := l.Store.TTL(ctx, key); err == nil && ttl == faststore.NoTTL {
		// Key survived without an expiry; repair the window.
		if _, err := l.Store.Expire(ctx, key, window); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("rate-limit window TTL not repaired")
		}
	}

	if count <= int64(limit) {
		decisions.WithLabelValues("ratelimit", "allowed").Inc()
		return res
	}

	res.IsLimited = true
	decisions.WithLabelValues("ratelimit", "limited").Inc()

	// One notice per window: the caller that creates the flag owns the notice.
	created, err := l.Store.SetNX(ctx, notifiedKey(scope, tenantID, scopeID), "1", window)
	if err != nil {
		// Suppress the notice rather than resending it on every over-limit
		// message while the store is flapping.
		log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("scope", scope).
			Msg("notified-flag check failed, suppressing throttle notice")
		res.AlreadyNotified = true
		return res
	}
	res.AlreadyNotified = !created
	return res
}

func rateKey(scope, tenantID, scopeID string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", scope, tenantID, scopeID)
}

func notifiedKey(scope, tenantID, scopeID string) string {
	return fmt.Sprintf("ratelimit_notified:%s:%s:%s", scope, tenantID, scopeID)
}
