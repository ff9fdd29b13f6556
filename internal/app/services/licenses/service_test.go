package licenses

import (
	"context"
	"testing"
	"time"

	"github.com/apex-authority/backoffice/internal/app/storage/memory"
	"github.com/apex-authority/backoffice/internal/domain/license"
)

func seedLicense(t *testing.T, store *memory.Store, category int) license.License {
	t.Helper()
	licenseID, err := license.NewLicenseID(category, time.Now())
	if err != nil {
		t.Fatalf("new license id: %v", err)
	}
	lic, err := store.CreateLicense(context.Background(), license.License{
		LicenseID:     licenseID,
		ApplicationID: "app-1",
		HolderName:    "Jordan Mills",
		Category:      category,
		IssuedAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("create license: %v", err)
	}
	return lic
}

func TestVerifyFindsIssuedLicense(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, nil)

	lic := seedLicense(t, store, 3)

	found, err := svc.Verify(ctx, lic.LicenseID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if found.HolderName != "Jordan Mills" || found.Category != 3 {
		t.Fatalf("unexpected license %+v", found)
	}

	// Surrounding whitespace is tolerated; the identifier itself is not
	// case-folded.
	if _, err := svc.Verify(ctx, "  "+lic.LicenseID+"  "); err != nil {
		t.Fatalf("verify trimmed: %v", err)
	}
}

func TestVerifyRejectsUnknownAndEmpty(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	if _, err := svc.Verify(ctx, ""); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := svc.Verify(ctx, "APEX-C1-2026-deadbeef"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, nil)

	seedLicense(t, store, 1)
	seedLicense(t, store, 2)

	lics, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lics) != 2 {
		t.Fatalf("expected 2 licenses, got %d", len(lics))
	}

	got, err := svc.Get(ctx, lics[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != lics[0].ID {
		t.Fatalf("get returned %s, want %s", got.ID, lics[0].ID)
	}
}
