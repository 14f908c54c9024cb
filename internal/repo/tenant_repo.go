// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides lookups for the tenant and channel
// aggregates resolved at the start of every pipeline run.
//
// Error semantics:
//   - When a row is not found, functions return ErrNotFound.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/convoflow/go-message-pipeline/internal/domain"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// GetTenant fetches a tenant by ID, or ErrNotFound.
func GetTenant(ctx context.Context, db *gorm.DB, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetChannel fetches a channel by ID ensuring it belongs to the tenant.
func GetChannel(ctx context.Context, db *gorm.DB, id, tenantID string) (*domain.Channel, error) {
	var ch domain.Channel
	err := db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}
