// Package pipeline implements the per-job state machine that turns one
// inbound chat message into at most one delivered reply. The Orchestrator
// runs nine strictly ordered steps, each a potential early terminal:
//
//  1. resolve tenant, channel, conversation
//  2. idempotence guard
//  3. rate limiter
//  4. persist inbound message
//  5. quota gate
//  6. generate reply
//  7. persist reply
//  8. deliver reply
//  9. update conversation statistics
//
// Guard rejections (steps 2, 3, 5) are business outcomes, not errors: the job
// is acked and the corresponding event is emitted. Collaborator failures
// (steps 6 and 8) return an error so the queue runtime retries the job.
// Admission is decided once, on the first attempt; redelivered attempts skip
// the guards and resume at step 4.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/convoflow/go-message-pipeline/internal/domain"
	"github.com/convoflow/go-message-pipeline/internal/events"
	"github.com/convoflow/go-message-pipeline/internal/guard"
	"github.com/convoflow/go-message-pipeline/internal/notify"
	"github.com/convoflow/go-message-pipeline/internal/provider"
	"github.com/convoflow/go-message-pipeline/internal/queue"
	"github.com/convoflow/go-message-pipeline/internal/repo"
)

// Orchestrator wires the guards, stores, and outward collaborators into the
// job handler run by queue workers. All dependencies are injected; the
// orchestrator holds no ambient state and is safe for concurrent use.
type Orchestrator struct {
	DB *gorm.DB

	Idempotency *guard.IdempotencyGuard
	RateLimit   *guard.RateLimiter
	Quota       *guard.QuotaGate

	Generator provider.ReplyGenerator
	Deliverer provider.Deliverer
	Emitter   events.Emitter

	// HistoryMessages caps the conversation context handed to the generator.
	HistoryMessages int
}

// Handle processes one job end to end. A nil return acks the job; an error
// asks the queue runtime to retry it.
func (o *Orchestrator) Handle(ctx context.Context, job queue.Job) error {
	tr := otel.Tracer("pipeline/Orchestrator")
	ctx, span := tr.Start(ctx, "Handle",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("tenant.id", job.TenantID),
			attribute.String("conversation.id", job.ConversationID),
			attribute.Int("job.attempt", job.Attempt),
		),
	)
	defer span.End()

	fields := events.Fields{
		JobID:             job.ID,
		ProviderMessageID: job.ProviderMessageID,
		TenantID:          job.TenantID,
		ConversationID:    job.ConversationID,
	}
	logger := log.With().
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("conversation_id", job.ConversationID).
		Logger()

	// Step 1: resolve context. A row missing here means the job references
	// entities that no longer exist (or never did); retrying cannot help.
	tenant, channel, conv, err := o.resolve(ctx, job)
	if errors.Is(err, repo.ErrNotFound) {
		logger.Warn().Err(err).Msg("pipeline: context not found, dropping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("pipeline: resolve context: %w", err)
	}

	// Steps 2, 3, and 5 are admission guards and run on the first attempt
	// only. A redelivered job was already admitted; its earlier attempt failed
	// after these steps, and re-running them would re-charge the rate window
	// and the daily budget, or reject a job that already emitted llm_request.
	if job.Attempt <= 1 {
		// Step 2: idempotence. The claim outlives the attempt, so a redelivery
		// must not be dropped as a duplicate of itself.
		if res := o.Idempotency.Claim(ctx, tenant.ID, job.ProviderMessageID); res.IsDuplicate {
			o.Emitter.Emit(ctx, events.DuplicateMessageDropped, fields)
			return nil
		}

		// Step 3: rate limit.
		if res := o.RateLimit.Check(ctx, tenant.ID, conv.ID, job.SenderID); res.IsLimited {
			o.Emitter.Emit(ctx, events.RateLimited, fields)
			if _, err := repo.CreateMessage(ctx, o.DB, conv.ID, domain.DirectionIn, domain.RoleUser,
				job.Text, job.ProviderMessageID, domain.StatusRateLimited); err != nil {
				logger.Warn().Err(err).Msg("pipeline: throttled message not persisted")
			}
			if !res.AlreadyNotified {
				o.sendFallback(ctx, logger, channel, conv, notify.Throttled(tenant.Locale), domain.StatusRateLimited)
			}
			return nil
		}
	}

	// Step 4: persist inbound. From here the message is traceable even if a
	// later step fails. Redelivered attempts reuse the row from attempt 1.
	inbound, err := o.persistInbound(ctx, job, conv)
	if err != nil {
		return fmt.Errorf("pipeline: persist inbound: %w", err)
	}

	if job.Attempt <= 1 {
		// Step 5: quota.
		if res := o.Quota.Evaluate(ctx, tenant, conv); !res.Allowed {
			return o.handleQuotaDenied(ctx, logger, fields, res, tenant, channel, conv, inbound)
		}
		if conv.Quota.Blocked && !o.Quota.IsBlocked(conv) {
			// Budget is back after a day rollover; drop the stale cached block.
			if err := o.Quota.ClearStaleBlock(ctx, conv); err != nil {
				logger.Warn().Err(err).Msg("pipeline: stale quota block not cleared")
			}
		}
	}

	// Step 6: generate.
	o.Emitter.Emit(ctx, events.LLMRequest, fields)
	reply, err := o.generate(ctx, logger, tenant, conv, inbound, job.Text)
	if err != nil {
		return fmt.Errorf("pipeline: generate reply: %w", err)
	}
	o.Emitter.Emit(ctx, events.LLMRequestCompleted, fields)

	// Step 7: persist reply.
	outbound, err := repo.CreateMessage(ctx, o.DB, conv.ID, domain.DirectionOut, domain.RoleAssistant,
		reply, "", domain.StatusPending)
	if err != nil {
		return fmt.Errorf("pipeline: persist reply: %w", err)
	}

	// Step 8: deliver. On failure the reply stays persisted as pending and the
	// job is retried; message_sent must not be emitted without a delivery.
	pmid, err := o.Deliverer.Send(ctx, destination(channel, conv), reply)
	if err != nil {
		return fmt.Errorf("pipeline: deliver reply: %w", err)
	}
	if err := repo.MarkMessageSent(ctx, o.DB, outbound.ID, pmid); err != nil {
		logger.Error().Err(err).Str("message_id", outbound.ID).Msg("pipeline: sent status not recorded")
	}
	if err := repo.UpdateMessageStatus(ctx, o.DB, inbound.ID, domain.StatusReplied); err != nil {
		logger.Warn().Err(err).Str("message_id", inbound.ID).Msg("pipeline: inbound status not updated")
	}
	o.Emitter.Emit(ctx, events.MessageSent, fields)

	// Step 9: statistics. Best effort; the reply is already out.
	if err := repo.BumpConversationStats(ctx, o.DB, conv.ID, outbound.CreatedAt); err != nil {
		logger.Warn().Err(err).Msg("pipeline: conversation stats not updated")
	}
	return nil
}

// resolve loads the tenant, channel, and conversation the job references,
// enforcing tenant scoping on every lookup.
func (o *Orchestrator) resolve(ctx context.Context, job queue.Job) (*domain.Tenant, *domain.Channel, *domain.Conversation, error) {
	tenant, err := repo.GetTenant(ctx, o.DB, job.TenantID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tenant %s: %w", job.TenantID, err)
	}
	channel, err := repo.GetChannel(ctx, o.DB, job.ChannelID, tenant.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("channel %s: %w", job.ChannelID, err)
	}
	conv, err := repo.GetConversation(ctx, o.DB, job.ConversationID, tenant.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("conversation %s: %w", job.ConversationID, err)
	}
	return tenant, channel, conv, nil
}

// persistInbound stores the inbound message, reusing the row a previous
// attempt of the same job already wrote.
func (o *Orchestrator) persistInbound(ctx context.Context, job queue.Job, conv *domain.Conversation) (*domain.Message, error) {
	if job.Attempt > 1 && job.ProviderMessageID != "" {
		m, err := repo.FindInboundMessage(ctx, o.DB, conv.ID, job.ProviderMessageID)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	return repo.CreateMessage(ctx, o.DB, conv.ID, domain.DirectionIn, domain.RoleUser,
		job.Text, job.ProviderMessageID, domain.StatusReceived)
}

// handleQuotaDenied finishes a job the quota gate rejected. Every denial is a
// terminal ack; what gets persisted, emitted, and delivered depends on how
// the denial was reached.
func (o *Orchestrator) handleQuotaDenied(
	ctx context.Context,
	logger zerolog.Logger,
	fields events.Fields,
	res guard.QuotaResult,
	tenant *domain.Tenant,
	channel *domain.Channel,
	conv *domain.Conversation,
	inbound *domain.Message,
) error {
	if res.Reason == guard.ReasonQuotaCheckError {
		// Infra failure, not a budget decision: no billing event, no user
		// notice. The guard already logged and counted the error.
		if err := repo.UpdateMessageStatus(ctx, o.DB, inbound.ID, domain.StatusFailed); err != nil {
			logger.Warn().Err(err).Msg("pipeline: inbound status not updated")
		}
		return nil
	}

	if err := repo.UpdateMessageStatus(ctx, o.DB, inbound.ID, domain.StatusQuotaExceeded); err != nil {
		logger.Warn().Err(err).Msg("pipeline: inbound status not updated")
	}

	if res.Cached {
		// The conversation was already blocked; the peer got the notice when
		// the episode started.
		o.Emitter.Emit(ctx, events.QuotaExceededHandled, fields)
		return nil
	}

	// First exhaustion of the episode: block the conversation and send the
	// one-time fallback reply.
	o.Emitter.Emit(ctx, events.QuotaExceeded, fields)
	if err := o.Quota.MarkBlocked(ctx, conv); err != nil {
		logger.Error().Err(err).Msg("pipeline: conversation block not recorded")
	}
	o.sendFallback(ctx, logger, channel, conv, notify.QuotaExceeded(tenant.Locale), domain.StatusQuotaExceeded)
	return nil
}

// generate builds the conversation context and calls the reply generator.
// The freshly persisted inbound row is excluded from the history; it rides
// along as the prompt.
func (o *Orchestrator) generate(ctx context.Context, logger zerolog.Logger, tenant *domain.Tenant, conv *domain.Conversation, inbound *domain.Message, prompt string) (string, error) {
	history, err := repo.ListRecentMessages(ctx, o.DB, conv.ID, o.HistoryMessages)
	if err != nil {
		// Context is an enrichment; a failed read must not block the reply.
		logger.Warn().Err(err).Msg("pipeline: history not loaded, generating without context")
		history = nil
	}
	turns := make([]provider.Turn, 0, len(history))
	for _, m := range history {
		if m.ID == inbound.ID {
			continue
		}
		turns = append(turns, provider.Turn{Role: m.Role, Content: m.Content})
	}
	return o.Generator.Generate(ctx, provider.GenerateRequest{
		TenantID:       tenant.ID,
		ConversationID: conv.ID,
		History:        turns,
		Prompt:         prompt,
	})
}

// sendFallback persists a localized fallback reply under the given status and
// delivers it. The status names the episode and is kept; a successful delivery
// records the provider message id on the row. Delivery is best effort: a
// failure is logged, never retried, and never fails the job.
func (o *Orchestrator) sendFallback(ctx context.Context, logger zerolog.Logger, channel *domain.Channel, conv *domain.Conversation, text, status string) {
	row, err := repo.CreateMessage(ctx, o.DB, conv.ID, domain.DirectionOut, domain.RoleAssistant,
		text, "", status)
	if err != nil {
		logger.Warn().Err(err).Msg("pipeline: fallback reply not persisted")
		row = nil
	}
	pmid, err := o.Deliverer.Send(ctx, destination(channel, conv), text)
	if err != nil {
		logger.Warn().Err(err).Msg("pipeline: fallback notice not delivered")
		return
	}
	if row != nil {
		if err := repo.SetMessageProviderID(ctx, o.DB, row.ID, pmid); err != nil {
			logger.Warn().Err(err).Str("message_id", row.ID).Msg("pipeline: fallback delivery not recorded")
		}
	}
}

// destination builds the provider address for outbound delivery.
func destination(channel *domain.Channel, conv *domain.Conversation) provider.Destination {
	return provider.Destination{
		Provider: channel.Provider,
		Channel:  channel.Destination,
		Peer:     conv.PeerID,
	}
}
