package guard

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/convoflow/go-message-pipeline/internal/domain"
	"github.com/convoflow/go-message-pipeline/internal/repo"
)

func newQuotaDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func quotaFixtures(t *testing.T, db *gorm.DB, limit int) (*domain.Tenant, *domain.Conversation) {
	t.Helper()
	tenant := &domain.Tenant{ID: "t1", Name: "Acme", DailyMessageLimit: limit, Locale: "en"}
	conv := &domain.Conversation{ID: "c1", TenantID: "t1", ChannelID: "ch1", PeerID: "p1"}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(conv).Error; err != nil {
		t.Fatal(err)
	}
	return tenant, conv
}

func TestQuotaEvaluateConsumesUnits(t *testing.T) {
	db := newQuotaDB(t, &domain.Tenant{}, &domain.Conversation{}, &domain.DailyUsage{})
	tenant, conv := quotaFixtures(t, db, 2)
	g := NewQuotaGate(db)
	ctx := context.Background()

	res := g.Evaluate(ctx, tenant, conv)
	if !res.Allowed || res.CurrentUsage != 1 || res.Limit != 2 {
		t.Fatalf("first evaluate = %+v", res)
	}
	res = g.Evaluate(ctx, tenant, conv)
	if !res.Allowed || res.CurrentUsage != 2 {
		t.Fatalf("second evaluate = %+v", res)
	}
}

func TestQuotaExhaustionThenCachedFastPath(t *testing.T) {
	db := newQuotaDB(t, &domain.Tenant{}, &domain.Conversation{}, &domain.DailyUsage{})
	tenant, conv := quotaFixtures(t, db, 1)
	g := NewQuotaGate(db)
	ctx := context.Background()

	if res := g.Evaluate(ctx, tenant, conv); !res.Allowed {
		t.Fatalf("first evaluate rejected: %+v", res)
	}

	// Exhaustion comes from the slow path exactly once.
	res := g.Evaluate(ctx, tenant, conv)
	if res.Allowed || res.Cached || res.Reason != ReasonQuotaExceeded {
		t.Fatalf("exhaustion evaluate = %+v", res)
	}

	if err := g.MarkBlocked(ctx, conv); err != nil {
		t.Fatalf("MarkBlocked: %v", err)
	}
	if !g.IsBlocked(conv) {
		t.Fatal("conversation not blocked after MarkBlocked")
	}

	day := domain.UsageDay(time.Now())
	before, err := repo.GetDailyUsage(ctx, db, tenant.ID, day)
	if err != nil {
		t.Fatal(err)
	}

	// Every subsequent evaluate takes the fast path: cached rejection with
	// zero authoritative counter access.
	for i := 0; i < 3; i++ {
		res = g.Evaluate(ctx, tenant, conv)
		if res.Allowed || !res.Cached {
			t.Fatalf("cached evaluate #%d = %+v", i+1, res)
		}
	}
	after, err := repo.GetDailyUsage(ctx, db, tenant.ID, day)
	if err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Fatalf("counter moved on the fast path: %d -> %d", before, after)
	}
}

func TestQuotaFailClosed(t *testing.T) {
	// No daily_usages table: the slow path errors and the gate must block.
	db := newQuotaDB(t, &domain.Tenant{}, &domain.Conversation{})
	tenant, conv := quotaFixtures(t, db, 5)
	g := NewQuotaGate(db)

	if g.Policy() != FailClosed {
		t.Fatalf("policy = %v, want FailClosed", g.Policy())
	}
	res := g.Evaluate(context.Background(), tenant, conv)
	if res.Allowed {
		t.Fatal("store error must block the message (fail-closed)")
	}
	if res.Reason != ReasonQuotaCheckError {
		t.Fatalf("reason = %q, want %q", res.Reason, ReasonQuotaCheckError)
	}
}

func TestQuotaBlockExpiresWithUTCDay(t *testing.T) {
	db := newQuotaDB(t, &domain.Tenant{}, &domain.Conversation{}, &domain.DailyUsage{})
	tenant, conv := quotaFixtures(t, db, 1)
	g := NewQuotaGate(db)
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	g.Evaluate(ctx, tenant, conv) // consume the single unit
	if res := g.Evaluate(ctx, tenant, conv); res.Allowed {
		t.Fatal("limit 1 not enforced")
	}
	if err := g.MarkBlocked(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if !g.IsBlocked(conv) {
		t.Fatal("block not active on the same day")
	}

	// UTC day rolls over: the cached flag is stale and the slow path runs
	// against the new day's row.
	now = now.Add(2 * time.Hour) // 01:00 on March 11
	if g.IsBlocked(conv) {
		t.Fatal("block must not survive the day rollover")
	}
	res := g.Evaluate(ctx, tenant, conv)
	if !res.Allowed || res.CurrentUsage != 1 {
		t.Fatalf("post-rollover evaluate = %+v", res)
	}

	if err := g.ClearStaleBlock(ctx, conv); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetConversation(ctx, db, conv.ID, tenant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Quota.Blocked {
		t.Fatal("stale block not cleared in the durable store")
	}
}
