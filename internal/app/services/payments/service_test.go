package payments

import (
	"context"
	"testing"

	"github.com/apex-authority/backoffice/internal/app/services/audit"
	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/app/storage/memory"
	"github.com/apex-authority/backoffice/internal/database"
)

func TestUpsertNormalizesAndReplaces(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, audit.New(store, nil), nil, nil)

	first, err := svc.Upsert(ctx, storage.PaymentAddress{
		Method:  "  BTC ",
		Address: " bc1qfirst ",
		Network: "bitcoin",
		Active:  true,
	}, "admin", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.Method != "btc" || first.Address != "bc1qfirst" {
		t.Fatalf("normalization failed: %+v", first)
	}

	second, err := svc.Upsert(ctx, storage.PaymentAddress{Method: "btc", Address: "bc1qsecond", Active: true}, "admin", "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same record replaced, got %s and %s", first.ID, second.ID)
	}

	addrs, err := svc.List(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(addrs) != 1 || addrs[0].Address != "bc1qsecond" {
		t.Fatalf("expected one replaced address, got %+v", addrs)
	}
}

func TestUpsertValidation(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil, nil, nil)

	if _, err := svc.Upsert(ctx, storage.PaymentAddress{Address: "x"}, "admin", ""); err == nil {
		t.Fatal("expected error for missing method")
	}
	if _, err := svc.Upsert(ctx, storage.PaymentAddress{Method: "btc"}, "admin", ""); err == nil {
		t.Fatal("expected error for missing address")
	}
}

func TestListActiveOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, nil, nil, nil)

	if _, err := svc.Upsert(ctx, storage.PaymentAddress{Method: "btc", Address: "bc1q", Active: true}, "admin", ""); err != nil {
		t.Fatalf("upsert btc: %v", err)
	}
	if _, err := svc.Upsert(ctx, storage.PaymentAddress{Method: "eth", Address: "0xdead", Active: false}, "admin", ""); err != nil {
		t.Fatalf("upsert eth: %v", err)
	}

	active, err := svc.List(ctx, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].Method != "btc" {
		t.Fatalf("expected only btc active, got %+v", active)
	}

	all, err := svc.List(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(all))
	}
}

func TestDeleteAudited(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, audit.New(store, nil), nil, nil)

	saved, err := svc.Upsert(ctx, storage.PaymentAddress{Method: "btc", Address: "bc1q", Active: true}, "admin", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := svc.Delete(ctx, saved.ID, "admin", ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, saved.ID, "admin", ""); err == nil {
		t.Fatal("expected error deleting twice")
	}

	entries, err := store.ListAudit(ctx, database.TablePaymentAddresses, 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries (upsert, delete), got %d", len(entries))
	}
}
