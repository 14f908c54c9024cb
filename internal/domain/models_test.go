package domain

import (
	"testing"
	"time"
)

func TestQuotaStateActiveAt(t *testing.T) {
	noon := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		q    QuotaState
		now  time.Time
		want bool
	}{
		{"unblocked", QuotaState{}, noon, false},
		{"blocked without timestamp", QuotaState{Blocked: true}, noon, false},
		{"blocked same day", QuotaState{Blocked: true, BlockedAt: ptr(noon.Add(-3 * time.Hour))}, noon, true},
		{"blocked earlier that day", QuotaState{Blocked: true, BlockedAt: ptr(noon.Truncate(24 * time.Hour))}, noon, true},
		{"blocked previous day", QuotaState{Blocked: true, BlockedAt: ptr(noon.Add(-24 * time.Hour))}, noon, false},
		{"blocked previous day, checked at midnight", QuotaState{Blocked: true, BlockedAt: ptr(noon)}, noon.Add(12*time.Hour + time.Second), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.q.ActiveAt(tc.now); got != tc.want {
				t.Fatalf("ActiveAt() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestQuotaStateActiveAtCrossesTimezone(t *testing.T) {
	// 23:30 UTC on March 10, observed from a zone where the local date is
	// already March 11. The comparison must use UTC on both sides.
	blocked := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	q := QuotaState{Blocked: true, BlockedAt: &blocked}

	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2025, 3, 11, 1, 0, 0, 0, loc) // 22:00 UTC March 10
	if !q.ActiveAt(now) {
		t.Fatal("block should still be active: same UTC day")
	}
}

func TestUsageDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	ts := time.Date(2025, 3, 10, 22, 0, 0, 0, loc) // 03:00 UTC March 11
	if got := UsageDay(ts); got != "2025-03-11" {
		t.Fatalf("UsageDay() = %q, want %q", got, "2025-03-11")
	}
}

func TestTableNames(t *testing.T) {
	if got := (Tenant{}).TableName(); got != "tenants" {
		t.Errorf("Tenant table = %q", got)
	}
	if got := (Channel{}).TableName(); got != "channels" {
		t.Errorf("Channel table = %q", got)
	}
	if got := (Conversation{}).TableName(); got != "conversations" {
		t.Errorf("Conversation table = %q", got)
	}
	if got := (Message{}).TableName(); got != "messages" {
		t.Errorf("Message table = %q", got)
	}
	if got := (DailyUsage{}).TableName(); got != "daily_usages" {
		t.Errorf("DailyUsage table = %q", got)
	}
}

func ptr(t time.Time) *time.Time { return &t }
