// Package payments manages the receiving addresses shown to applicants.
package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/broadcast"
	"github.com/apex-authority/backoffice/internal/database"
	"github.com/apex-authority/backoffice/internal/logging"
)

// Auditor records admin actions.
type Auditor interface {
	Record(ctx context.Context, actor, action, table, recordID string, oldValue, newValue any) error
}

// Service manages payment addresses. The payment_addresses table is the
// canonical source for wallets; settings hold no address data.
type Service struct {
	store       storage.PaymentAddressStore
	auditor     Auditor
	broadcaster *broadcast.Broadcaster
	log         *logging.Logger
}

// New constructs the payments service. auditor and broadcaster may be nil.
func New(store storage.PaymentAddressStore, auditor Auditor, broadcaster *broadcast.Broadcaster, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("payments")
	}
	return &Service{store: store, auditor: auditor, broadcaster: broadcaster, log: log}
}

// Upsert creates or replaces the address for a payment method.
func (s *Service) Upsert(ctx context.Context, addr storage.PaymentAddress, actor, originID string) (storage.PaymentAddress, error) {
	addr.Method = strings.ToLower(strings.TrimSpace(addr.Method))
	addr.Address = strings.TrimSpace(addr.Address)
	if addr.Method == "" {
		return storage.PaymentAddress{}, fmt.Errorf("method is required")
	}
	if addr.Address == "" {
		return storage.PaymentAddress{}, fmt.Errorf("address is required")
	}

	saved, err := s.store.UpsertPaymentAddress(ctx, addr)
	if err != nil {
		return storage.PaymentAddress{}, fmt.Errorf("upsert payment address: %w", err)
	}

	if s.auditor != nil {
		if err := s.auditor.Record(ctx, actor, "upsert", database.TablePaymentAddresses, saved.ID, nil, saved); err != nil {
			s.log.WithError(err).Warn("audit record failed")
		}
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Send(ctx, broadcast.Message{Event: broadcast.EventSettingsUpdated}, originID); err != nil {
			s.log.WithError(err).Warn("payment address broadcast failed")
		}
	}
	return saved, nil
}

// List returns addresses, optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]storage.PaymentAddress, error) {
	return s.store.ListPaymentAddresses(ctx, activeOnly)
}

// Delete removes an address.
func (s *Service) Delete(ctx context.Context, id, actor, originID string) error {
	if err := s.store.DeletePaymentAddress(ctx, id); err != nil {
		return fmt.Errorf("delete payment address: %w", err)
	}
	if s.auditor != nil {
		if err := s.auditor.Record(ctx, actor, "delete", database.TablePaymentAddresses, id, nil, nil); err != nil {
			s.log.WithError(err).Warn("audit record failed")
		}
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Send(ctx, broadcast.Message{Event: broadcast.EventSettingsUpdated}, originID); err != nil {
			s.log.WithError(err).Warn("payment address broadcast failed")
		}
	}
	return nil
}
