// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the authoritative daily usage counter.
//
// ConsumeDailyUsage is the only write in the system that needs conditional
// atomicity: many workers increment the same tenant row under burst load, and
// the limit must hold without application-level locking. The increment is a
// single conditional UPDATE (count + 1 <= limit), so the database serializes
// contention and a full counter simply matches zero rows.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/convoflow/go-message-pipeline/internal/domain"
)

// ConsumeDailyUsage atomically consumes one unit of the tenant's daily
// generation budget for the given UTC day key ("YYYY-MM-DD").
//
// Return values:
//   - count:   the counter value after this call (the pre-existing value when
//     the consume was rejected)
//   - allowed: whether a unit was consumed (false ⇒ quota exhausted)
//   - err:     database error, if any
func ConsumeDailyUsage(ctx context.Context, db *gorm.DB, tenantID, day string, limit int) (count int, allowed bool, err error) {
	if limit <= 0 {
		return 0, false, nil
	}

	// Ensure the row for (tenant, day) exists. A lost race on the insert is
	// fine: the loser sees a unique violation and proceeds to the update.
	now := time.Now().UTC()
	seed := &domain.DailyUsage{TenantID: tenantID, Day: day, CreatedAt: now, UpdatedAt: now}
	if err := db.WithContext(ctx).Create(seed).Error; err != nil && !isDuplicateErr(err) {
		return 0, false, err
	}

	res := db.WithContext(ctx).Model(&domain.DailyUsage{}).
		Where("tenant_id = ? AND day = ? AND count + 1 <= ?", tenantID, day, limit).
		Updates(map[string]any{
			"count":      gorm.Expr("count + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, false, res.Error
	}

	var row domain.DailyUsage
	if err := db.WithContext(ctx).Where("tenant_id = ? AND day = ?", tenantID, day).First(&row).Error; err != nil {
		return 0, false, err
	}
	return row.Count, res.RowsAffected > 0, nil
}

// GetDailyUsage returns the current counter value for (tenant, day); a
// missing row reads as zero.
func GetDailyUsage(ctx context.Context, db *gorm.DB, tenantID, day string) (int, error) {
	var row domain.DailyUsage
	err := db.WithContext(ctx).Where("tenant_id = ? AND day = ?", tenantID, day).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Count, nil
}

// isDuplicateErr detects primary-key violations across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
