package contacts

import (
	"context"
	"testing"

	"github.com/apex-authority/backoffice/internal/app/services/audit"
	"github.com/apex-authority/backoffice/internal/app/storage/memory"
	"github.com/apex-authority/backoffice/internal/database"
	"github.com/apex-authority/backoffice/internal/domain/contact"
	"github.com/apex-authority/backoffice/internal/events"
)

func TestSubmitStoresUnreadMessage(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := events.NewNotifier()
	svc := New(store, nil, notifier, nil, nil)

	notified := 0
	notifier.Contacts.Subscribe(func(contact.Contact) { notified++ })

	msg, err := svc.Submit(ctx, SubmitInput{
		Name:    "Riley Chen",
		Email:   "riley@example.com",
		Subject: "Processing times",
		Message: "How long does category 2 take?",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if msg.Status != contact.StatusUnread {
		t.Fatalf("status = %s", msg.Status)
	}
	if notified != 1 {
		t.Fatalf("notified = %d", notified)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := New(memory.New(), nil, nil, nil, nil)
	ctx := context.Background()

	cases := []SubmitInput{
		{Email: "a@example.com", Message: "hi"},
		{Name: "A", Email: "bad", Message: "hi"},
		{Name: "A", Email: "a@example.com"},
	}
	for i, input := range cases {
		if _, err := svc.Submit(ctx, input); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, audit.New(store, nil), nil, nil, nil)

	msg, err := svc.Submit(ctx, SubmitInput{Name: "A", Email: "a@example.com", Message: "hi"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// unread -> responded skips read and is rejected.
	if _, err := svc.UpdateStatus(ctx, msg.ID, contact.StatusResponded, "admin", ""); err == nil {
		t.Fatal("expected transition error")
	}

	msg, err = svc.UpdateStatus(ctx, msg.ID, contact.StatusRead, "admin", "")
	if err != nil {
		t.Fatalf("to read: %v", err)
	}
	msg, err = svc.UpdateStatus(ctx, msg.ID, contact.StatusResponded, "admin", "")
	if err != nil {
		t.Fatalf("to responded: %v", err)
	}
	if _, err = svc.UpdateStatus(ctx, msg.ID, contact.StatusArchived, "admin", ""); err != nil {
		t.Fatalf("to archived: %v", err)
	}

	entries, err := store.ListAudit(ctx, database.TableContacts, 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(entries))
	}
}

func TestDeleteAuditsRemoval(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, audit.New(store, nil), nil, nil, nil)

	msg, err := svc.Submit(ctx, SubmitInput{Name: "A", Email: "a@example.com", Message: "hi"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.Delete(ctx, msg.ID, "admin@example.com", ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, msg.ID); err == nil {
		t.Fatal("expected not found after delete")
	}
	if err := svc.Delete(ctx, msg.ID, "admin@example.com", ""); err == nil {
		t.Fatal("expected error deleting missing message")
	}

	entries, err := store.ListAudit(ctx, database.TableContacts, 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Action != "delete" {
		t.Fatalf("action = %s", entries[0].Action)
	}
}
