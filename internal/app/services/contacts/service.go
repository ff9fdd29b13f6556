// Package contacts manages inbound contact messages and their read/response
// lifecycle.
package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/broadcast"
	"github.com/apex-authority/backoffice/internal/database"
	"github.com/apex-authority/backoffice/internal/domain/contact"
	"github.com/apex-authority/backoffice/internal/events"
	"github.com/apex-authority/backoffice/internal/logging"
)

// Auditor records admin actions.
type Auditor interface {
	Record(ctx context.Context, actor, action, table, recordID string, oldValue, newValue any) error
}

// SubmitInput is the public contact form payload.
type SubmitInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Service manages contact messages.
type Service struct {
	store       storage.ContactStore
	auditor     Auditor
	notifier    *events.Notifier
	broadcaster *broadcast.Broadcaster
	log         *logging.Logger
}

// New constructs the contacts service. auditor, notifier and broadcaster may
// be nil.
func New(store storage.ContactStore, auditor Auditor, notifier *events.Notifier, broadcaster *broadcast.Broadcaster, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("contacts")
	}
	return &Service{
		store:       store,
		auditor:     auditor,
		notifier:    notifier,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Submit validates and stores a new message as unread.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (contact.Contact, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	input.Subject = strings.TrimSpace(input.Subject)
	input.Message = strings.TrimSpace(input.Message)

	if input.Name == "" {
		return contact.Contact{}, fmt.Errorf("name is required")
	}
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return contact.Contact{}, fmt.Errorf("a valid email is required")
	}
	if input.Message == "" {
		return contact.Contact{}, fmt.Errorf("message is required")
	}

	msg, err := s.store.CreateContact(ctx, contact.Contact{
		Name:    input.Name,
		Email:   input.Email,
		Subject: input.Subject,
		Message: input.Message,
		Status:  contact.StatusUnread,
	})
	if err != nil {
		return contact.Contact{}, fmt.Errorf("create contact: %w", err)
	}

	s.log.WithField("contact_id", msg.ID).Info("contact message received")

	if s.notifier != nil {
		s.notifier.Contacts.Publish(msg)
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Send(ctx, broadcast.Message{Event: broadcast.EventContactCreated}, ""); err != nil {
			s.log.WithError(err).Warn("contact broadcast failed")
		}
	}
	return msg, nil
}

// Get returns one message.
func (s *Service) Get(ctx context.Context, id string) (contact.Contact, error) {
	return s.store.GetContact(ctx, id)
}

// List returns every message, newest first.
func (s *Service) List(ctx context.Context) ([]contact.Contact, error) {
	return s.store.ListContacts(ctx)
}

// UpdateStatus moves a message through its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id string, next contact.Status, actor, originID string) (contact.Contact, error) {
	current, err := s.store.GetContact(ctx, id)
	if err != nil {
		return contact.Contact{}, err
	}
	if !contact.CanTransition(current.Status, next) {
		return contact.Contact{}, fmt.Errorf("cannot move contact from %s to %s", current.Status, next)
	}

	updated := current
	updated.Status = next
	updated, err = s.store.UpdateContact(ctx, updated)
	if err != nil {
		return contact.Contact{}, fmt.Errorf("update contact: %w", err)
	}

	if s.auditor != nil {
		if err := s.auditor.Record(ctx, actor, "status_change", database.TableContacts, updated.ID, current, updated); err != nil {
			s.log.WithError(err).Warn("audit record failed")
		}
	}
	if s.notifier != nil {
		s.notifier.Contacts.Publish(updated)
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Send(ctx, broadcast.Message{Event: broadcast.EventContactUpdated}, originID); err != nil {
			s.log.WithError(err).Warn("contact broadcast failed")
		}
	}
	return updated, nil
}

// Delete removes a message permanently and audits the removal.
func (s *Service) Delete(ctx context.Context, id, actor, originID string) error {
	current, err := s.store.GetContact(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteContact(ctx, id); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	if s.auditor != nil {
		if err := s.auditor.Record(ctx, actor, "delete", database.TableContacts, id, current, nil); err != nil {
			s.log.WithError(err).Warn("audit record failed")
		}
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Send(ctx, broadcast.Message{Event: broadcast.EventContactUpdated}, originID); err != nil {
			s.log.WithError(err).Warn("contact broadcast failed")
		}
	}
	return nil
}
