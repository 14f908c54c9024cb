// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/convoflow/go-message-pipeline/internal/domain"
)

// CreateMessage inserts a new message row.
func CreateMessage(ctx context.Context, db *gorm.DB, conversationID, direction, role, content, providerMessageID, status string) (*domain.Message, error) {
	m := &domain.Message{
		ID:                uuid.NewString(),
		ConversationID:    conversationID,
		Direction:         direction,
		Role:              role,
		Content:           content,
		ProviderMessageID: providerMessageID,
		Status:            status,
		CreatedAt:         time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// FindInboundMessage looks up an inbound row by its provider message id
// within a conversation, or ErrNotFound. Redelivered jobs reuse the row their
// first attempt persisted instead of inserting a duplicate.
func FindInboundMessage(ctx context.Context, db *gorm.DB, conversationID, providerMessageID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND provider_message_id = ? AND direction = ?",
			conversationID, providerMessageID, domain.DirectionIn).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageStatus sets the lifecycle status of a message.
func UpdateMessageStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkMessageSent records a successful provider delivery: the outbound row
// gets its provider-assigned ID and moves to the sent state in one update.
func MarkMessageSent(ctx context.Context, db *gorm.DB, id, providerMessageID string) error {
	res := db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":              domain.StatusSent,
			"provider_message_id": providerMessageID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMessageProviderID records the provider-assigned ID on a row without
// touching its status. Fallback replies keep their episode status after a
// successful delivery.
func SetMessageProviderID(ctx context.Context, db *gorm.DB, id, providerMessageID string) error {
	res := db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Update("provider_message_id", providerMessageID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentMessages returns the newest messages of a conversation in
// chronological order, capped at limit. Used to build generation context.
func ListRecentMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var newest []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&newest).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	out := make([]domain.Message, len(newest))
	for i, m := range newest {
		out[len(newest)-1-i] = m
	}
	return out, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&total).Error
	return total, err
}
