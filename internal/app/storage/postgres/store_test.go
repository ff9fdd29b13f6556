package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/apex-authority/backoffice/internal/domain/application"
	"github.com/apex-authority/backoffice/internal/domain/contact"
	"github.com/apex-authority/backoffice/internal/domain/settings"
	"github.com/apex-authority/backoffice/internal/platform/migrations"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)

	rows := []settings.Row{{Key: "category1Price", Value: json.RawMessage(`"$499"`), Category: "category_1"}}
	if err := store.UpsertSettingRows(ctx, rows); err != nil {
		t.Fatalf("upsert settings: %v", err)
	}
	if err := store.UpsertSettingRows(ctx, rows); err != nil {
		t.Fatalf("re-upsert settings: %v", err)
	}

	app, err := store.CreateApplication(ctx, application.Application{
		Name:     "Integration Applicant",
		Email:    "applicant@example.com",
		Category: 1,
		Status:   application.StatusPending,
		Amount:   "$499",
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}

	app.Status = application.StatusProcessing
	if _, err := store.UpdateApplication(ctx, app); err != nil {
		t.Fatalf("update application: %v", err)
	}

	msg, err := store.CreateContact(ctx, contact.Contact{
		Name:    "Integration Contact",
		Email:   "contact@example.com",
		Subject: "Ping",
		Message: "Hello",
		Status:  contact.StatusUnread,
	})
	if err != nil {
		t.Fatalf("create contact: %v", err)
	}
	if err := store.DeleteContact(ctx, msg.ID); err != nil {
		t.Fatalf("delete contact: %v", err)
	}

	for _, table := range store.ExportTables() {
		if _, err := store.TableRows(ctx, table); err != nil {
			t.Fatalf("export %s: %v", table, err)
		}
	}
}
