package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/convoflow/go-message-pipeline/internal/domain"
)

func TestGetTenant(t *testing.T) {
	db := newTestDB(t, &domain.Tenant{})
	ctx := context.Background()

	if err := db.Create(&domain.Tenant{ID: "t1", Name: "Acme", DailyMessageLimit: 100, Locale: "en"}).Error; err != nil {
		t.Fatal(err)
	}

	got, err := GetTenant(ctx, db, "t1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got.Name != "Acme" || got.DailyMessageLimit != 100 {
		t.Fatalf("unexpected tenant: %+v", got)
	}

	if _, err := GetTenant(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetChannel_ScopedByTenant(t *testing.T) {
	db := newTestDB(t, &domain.Channel{})
	ctx := context.Background()

	if err := db.Create(&domain.Channel{ID: "ch1", TenantID: "t1", Provider: "whatsapp", Destination: "+15550001111"}).Error; err != nil {
		t.Fatal(err)
	}

	got, err := GetChannel(ctx, db, "ch1", "t1")
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if got.Provider != "whatsapp" {
		t.Fatalf("unexpected channel: %+v", got)
	}

	if _, err := GetChannel(ctx, db, "ch1", "t2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant read = %v, want ErrNotFound", err)
	}
}
