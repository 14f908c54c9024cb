// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model, including the quota-block cache transitions.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/convoflow/go-message-pipeline/internal/domain"
)

// GetConversation fetches a conversation by ID ensuring it belongs to the
// tenant, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id, tenantID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkConversationBlocked records the start of a quota-blocking episode.
// Later messages on the conversation short-circuit on this flag instead of
// re-consuming the authoritative counter.
func MarkConversationBlocked(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	at = at.UTC()
	res := db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quota_blocked":    true,
			"quota_blocked_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearConversationBlock resets the cached quota flag, used when a stale
// block from a previous UTC day is re-checked and the tenant has budget again.
func ClearConversationBlock(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quota_blocked":    false,
			"quota_blocked_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpConversationStats advances the message counter and last-activity
// timestamp after a fully processed message.
func BumpConversationStats(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	at = at.UTC()
	return db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + 1"),
			"last_message_at": at,
		}).Error
}
