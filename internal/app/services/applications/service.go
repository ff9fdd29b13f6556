// Package applications handles license application intake and review.
package applications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/broadcast"
	"github.com/apex-authority/backoffice/internal/database"
	"github.com/apex-authority/backoffice/internal/domain/application"
	"github.com/apex-authority/backoffice/internal/domain/license"
	"github.com/apex-authority/backoffice/internal/domain/settings"
	"github.com/apex-authority/backoffice/internal/events"
	"github.com/apex-authority/backoffice/internal/logging"
)

// Availability answers whether a category currently accepts applications.
type Availability interface {
	CategoryAvailable(n int) (bool, error)
}

// Auditor records admin actions.
type Auditor interface {
	Record(ctx context.Context, actor, action, table, recordID string, oldValue, newValue any) error
}

// SubmitInput is the public application form payload.
type SubmitInput struct {
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Company       string          `json:"company"`
	Category      int             `json:"category"`
	PaymentMethod string          `json:"payment_method"`
	TransactionID string          `json:"transaction_id"`
	Documents     json.RawMessage `json:"documents"`
}

// Service manages the application lifecycle.
type Service struct {
	store        storage.ApplicationStore
	licenses     storage.LicenseStore
	availability Availability
	pricing      func(category int) (string, error)
	auditor      Auditor
	notifier     *events.Notifier
	broadcaster  *broadcast.Broadcaster
	log          *logging.Logger
}

// New constructs the applications service. licenses, auditor, notifier and
// broadcaster may be nil; availability must not be.
func New(store storage.ApplicationStore, licenses storage.LicenseStore, availability Availability, auditor Auditor, notifier *events.Notifier, broadcaster *broadcast.Broadcaster, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("applications")
	}
	return &Service{
		store:        store,
		licenses:     licenses,
		availability: availability,
		auditor:      auditor,
		notifier:     notifier,
		broadcaster:  broadcaster,
		log:          log,
	}
}

// WithPricing sets the amount lookup used to price a submission.
func (s *Service) WithPricing(pricing func(category int) (string, error)) {
	s.pricing = pricing
}

// Submit validates the form and creates a pending application. No record is
// written when validation fails or the category is closed.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (application.Application, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Company = strings.TrimSpace(input.Company)

	if input.Name == "" {
		return application.Application{}, fmt.Errorf("name is required")
	}
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return application.Application{}, fmt.Errorf("a valid email is required")
	}
	if input.Category < 1 || input.Category > settings.NumCategories {
		return application.Application{}, fmt.Errorf("category must be between 1 and %d", settings.NumCategories)
	}

	available, err := s.availability.CategoryAvailable(input.Category)
	if err != nil {
		return application.Application{}, err
	}
	if !available {
		return application.Application{}, fmt.Errorf("category %d is not accepting applications", input.Category)
	}

	amount := ""
	if s.pricing != nil {
		if amount, err = s.pricing(input.Category); err != nil {
			return application.Application{}, err
		}
	}

	app, err := s.store.CreateApplication(ctx, application.Application{
		Name:          input.Name,
		Email:         input.Email,
		Phone:         input.Phone,
		Company:       input.Company,
		Category:      input.Category,
		Status:        application.StatusPending,
		Amount:        amount,
		PaymentMethod: strings.TrimSpace(input.PaymentMethod),
		TransactionID: strings.TrimSpace(input.TransactionID),
		Documents:     input.Documents,
	})
	if err != nil {
		return application.Application{}, fmt.Errorf("create application: %w", err)
	}

	s.log.WithField("application_id", app.ID).
		WithField("category", app.Category).
		Info("application submitted")

	if s.notifier != nil {
		s.notifier.Applications.Publish(app)
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Send(ctx, broadcast.Message{Event: broadcast.EventApplicationCreated}, ""); err != nil {
			s.log.WithError(err).Warn("application broadcast failed")
		}
	}
	return app, nil
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, id string) (application.Application, error) {
	return s.store.GetApplication(ctx, id)
}

// List returns every application, newest first.
func (s *Service) List(ctx context.Context) ([]application.Application, error) {
	return s.store.ListApplications(ctx)
}

func (s *Service) issueLicense(ctx context.Context, app application.Application) error {
	licenseID, err := license.NewLicenseID(app.Category, time.Now().UTC())
	if err != nil {
		return err
	}
	lic := license.License{
		LicenseID:     licenseID,
		ApplicationID: app.ID,
		HolderName:    app.Name,
		Category:      app.Category,
	}
	if _, err := s.licenses.CreateLicense(ctx, lic); err != nil {
		return err
	}
	s.log.WithField("application_id", app.ID).
		WithField("license_id", licenseID).
		Info("license issued")
	return nil
}

// UpdateStatus moves an application through its lifecycle. Approval issues a
// license. The transition rules reject moves out of a terminal state.
func (s *Service) UpdateStatus(ctx context.Context, id string, next application.Status, notes, actor, originID string) (application.Application, error) {
	current, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return application.Application{}, err
	}
	if !application.CanTransition(current.Status, next) {
		return application.Application{}, fmt.Errorf("cannot move application from %s to %s", current.Status, next)
	}

	updated := current
	updated.Status = next
	if notes != "" {
		updated.Notes = notes
	}

	updated, err = s.store.UpdateApplication(ctx, updated)
	if err != nil {
		return application.Application{}, fmt.Errorf("update application: %w", err)
	}

	if next == application.StatusApproved && s.licenses != nil {
		if err := s.issueLicense(ctx, updated); err != nil {
			s.log.WithError(err).
				WithField("application_id", updated.ID).
				Error("license issuance failed after approval")
		}
	}

	if s.auditor != nil {
		if err := s.auditor.Record(ctx, actor, "status_change", database.TableApplications, updated.ID, current, updated); err != nil {
			s.log.WithError(err).Warn("audit record failed")
		}
	}
	if s.notifier != nil {
		s.notifier.Applications.Publish(updated)
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Send(ctx, broadcast.Message{Event: broadcast.EventApplicationUpdated}, originID); err != nil {
			s.log.WithError(err).Warn("application broadcast failed")
		}
	}
	return updated, nil
}
