package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/database"
	"github.com/apex-authority/backoffice/internal/domain/application"
	"github.com/apex-authority/backoffice/internal/domain/audit"
	"github.com/apex-authority/backoffice/internal/domain/contact"
	"github.com/apex-authority/backoffice/internal/domain/content"
	"github.com/apex-authority/backoffice/internal/domain/license"
	"github.com/apex-authority/backoffice/internal/domain/settings"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu               sync.RWMutex
	nextID           int64
	settingRows      map[string]settings.Row
	applications     map[string]application.Application
	contacts         map[string]contact.Contact
	contentBlocks    map[string]content.Block
	licenses         map[string]license.License
	licensesByNumber map[string]string
	paymentAddresses map[string]storage.PaymentAddress
	auditEntries     []audit.Entry
}

var _ storage.SettingsStore = (*Store)(nil)
var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.ContactStore = (*Store)(nil)
var _ storage.ContentStore = (*Store)(nil)
var _ storage.LicenseStore = (*Store)(nil)
var _ storage.PaymentAddressStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)
var _ storage.ExportStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:           1,
		settingRows:      make(map[string]settings.Row),
		applications:     make(map[string]application.Application),
		contacts:         make(map[string]contact.Contact),
		contentBlocks:    make(map[string]content.Block),
		licenses:         make(map[string]license.License),
		licensesByNumber: make(map[string]string),
		paymentAddresses: make(map[string]storage.PaymentAddress),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// SettingsStore implementation ------------------------------------------------

func (s *Store) ListSettingRows(_ context.Context) ([]settings.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settingRowsLocked(), nil
}

func (s *Store) UpsertSettingRows(_ context.Context, rows []settings.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, row := range rows {
		if strings.TrimSpace(row.Key) == "" {
			return fmt.Errorf("setting row requires a key")
		}
		if existing, ok := s.settingRows[row.Key]; ok {
			row.ID = existing.ID
			row.CreatedAt = existing.CreatedAt
		} else {
			if row.ID == "" {
				row.ID = s.nextIDLocked()
			}
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		s.settingRows[row.Key] = cloneSettingRow(row)
	}
	return nil
}

// ApplicationStore implementation ---------------------------------------------

func (s *Store) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.ID == "" {
		app.ID = s.nextIDLocked()
	} else if _, exists := s.applications[app.ID]; exists {
		return application.Application{}, fmt.Errorf("application %s already exists", app.ID)
	}

	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	app.Documents = cloneRaw(app.Documents)

	s.applications[app.ID] = app
	return cloneApplication(app), nil
}

func (s *Store) UpdateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.applications[app.ID]
	if !ok {
		return application.Application{}, fmt.Errorf("application %s: %w", app.ID, storage.ErrNotFound)
	}

	app.CreatedAt = original.CreatedAt
	app.UpdatedAt = time.Now().UTC()
	app.Documents = cloneRaw(app.Documents)

	s.applications[app.ID] = app
	return cloneApplication(app), nil
}

func (s *Store) GetApplication(_ context.Context, id string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[id]
	if !ok {
		return application.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	return cloneApplication(app), nil
}

func (s *Store) ListApplications(_ context.Context) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]application.Application, 0, len(s.applications))
	for _, app := range s.applications {
		result = append(result, cloneApplication(app))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// ContactStore implementation -------------------------------------------------

func (s *Store) CreateContact(_ context.Context, msg contact.Contact) (contact.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = s.nextIDLocked()
	} else if _, exists := s.contacts[msg.ID]; exists {
		return contact.Contact{}, fmt.Errorf("contact %s already exists", msg.ID)
	}

	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	s.contacts[msg.ID] = msg
	return msg, nil
}

func (s *Store) UpdateContact(_ context.Context, msg contact.Contact) (contact.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.contacts[msg.ID]
	if !ok {
		return contact.Contact{}, fmt.Errorf("contact %s: %w", msg.ID, storage.ErrNotFound)
	}

	msg.CreatedAt = original.CreatedAt
	msg.UpdatedAt = time.Now().UTC()

	s.contacts[msg.ID] = msg
	return msg, nil
}

func (s *Store) GetContact(_ context.Context, id string) (contact.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.contacts[id]
	if !ok {
		return contact.Contact{}, fmt.Errorf("contact %s: %w", id, storage.ErrNotFound)
	}
	return msg, nil
}

func (s *Store) ListContacts(_ context.Context) ([]contact.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contact.Contact, 0, len(s.contacts))
	for _, msg := range s.contacts {
		result = append(result, msg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteContact(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[id]; !ok {
		return fmt.Errorf("contact %s: %w", id, storage.ErrNotFound)
	}
	delete(s.contacts, id)
	return nil
}

// ContentStore implementation -------------------------------------------------

func (s *Store) CreateContent(_ context.Context, blk content.Block) (content.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blk.ID == "" {
		blk.ID = s.nextIDLocked()
	} else if _, exists := s.contentBlocks[blk.ID]; exists {
		return content.Block{}, fmt.Errorf("content block %s already exists", blk.ID)
	}

	now := time.Now().UTC()
	blk.CreatedAt = now
	blk.UpdatedAt = now

	s.contentBlocks[blk.ID] = blk
	return blk, nil
}

func (s *Store) UpdateContent(_ context.Context, blk content.Block) (content.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.contentBlocks[blk.ID]
	if !ok {
		return content.Block{}, fmt.Errorf("content block %s: %w", blk.ID, storage.ErrNotFound)
	}

	blk.CreatedAt = original.CreatedAt
	blk.UpdatedAt = time.Now().UTC()

	s.contentBlocks[blk.ID] = blk
	return blk, nil
}

func (s *Store) GetContent(_ context.Context, id string) (content.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blk, ok := s.contentBlocks[id]
	if !ok {
		return content.Block{}, fmt.Errorf("content block %s: %w", id, storage.ErrNotFound)
	}
	return blk, nil
}

func (s *Store) ListContent(_ context.Context, section string) ([]content.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]content.Block, 0)
	for _, blk := range s.contentBlocks {
		if section == "" || blk.Section == section {
			result = append(result, blk)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Section != result[j].Section {
			return result[i].Section < result[j].Section
		}
		return result[i].Key < result[j].Key
	})
	return result, nil
}

func (s *Store) DeleteContent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contentBlocks[id]; !ok {
		return fmt.Errorf("content block %s: %w", id, storage.ErrNotFound)
	}
	delete(s.contentBlocks, id)
	return nil
}

// LicenseStore implementation -------------------------------------------------

func (s *Store) CreateLicense(_ context.Context, lic license.License) (license.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lic.ID == "" {
		lic.ID = s.nextIDLocked()
	} else if _, exists := s.licenses[lic.ID]; exists {
		return license.License{}, fmt.Errorf("license %s already exists", lic.ID)
	}
	if existing, exists := s.licensesByNumber[lic.LicenseID]; exists {
		return license.License{}, fmt.Errorf("license number %s already issued as %s", lic.LicenseID, existing)
	}

	lic.CreatedAt = time.Now().UTC()
	if lic.IssuedAt.IsZero() {
		lic.IssuedAt = lic.CreatedAt
	}

	s.licenses[lic.ID] = lic
	s.licensesByNumber[lic.LicenseID] = lic.ID
	return lic, nil
}

func (s *Store) GetLicense(_ context.Context, id string) (license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lic, ok := s.licenses[id]
	if !ok {
		return license.License{}, fmt.Errorf("license %s: %w", id, storage.ErrNotFound)
	}
	return lic, nil
}

func (s *Store) GetLicenseByLicenseID(_ context.Context, licenseID string) (license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.licensesByNumber[licenseID]; ok {
		return s.licenses[id], nil
	}
	return license.License{}, fmt.Errorf("license number %s: %w", licenseID, storage.ErrNotFound)
}

func (s *Store) ListLicenses(_ context.Context) ([]license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]license.License, 0, len(s.licenses))
	for _, lic := range s.licenses {
		result = append(result, lic)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].IssuedAt.After(result[j].IssuedAt) })
	return result, nil
}

// PaymentAddressStore implementation ------------------------------------------

func (s *Store) UpsertPaymentAddress(_ context.Context, addr storage.PaymentAddress) (storage.PaymentAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if addr.ID == "" {
		for id, existing := range s.paymentAddresses {
			if existing.Method == addr.Method {
				addr.ID = id
				break
			}
		}
	}
	if existing, ok := s.paymentAddresses[addr.ID]; ok {
		addr.CreatedAt = existing.CreatedAt
	} else {
		if addr.ID == "" {
			addr.ID = s.nextIDLocked()
		}
		addr.CreatedAt = now
	}
	addr.UpdatedAt = now

	s.paymentAddresses[addr.ID] = addr
	return addr, nil
}

func (s *Store) ListPaymentAddresses(_ context.Context, activeOnly bool) ([]storage.PaymentAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.PaymentAddress, 0, len(s.paymentAddresses))
	for _, addr := range s.paymentAddresses {
		if activeOnly && !addr.Active {
			continue
		}
		result = append(result, addr)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Method < result[j].Method })
	return result, nil
}

func (s *Store) DeletePaymentAddress(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.paymentAddresses[id]; !ok {
		return fmt.Errorf("payment address %s: %w", id, storage.ErrNotFound)
	}
	delete(s.paymentAddresses, id)
	return nil
}

// AuditStore implementation ---------------------------------------------------

func (s *Store) AppendAudit(_ context.Context, entry audit.Entry) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = s.nextIDLocked()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.OldValue = cloneRaw(entry.OldValue)
	entry.NewValue = cloneRaw(entry.NewValue)

	s.auditEntries = append(s.auditEntries, entry)
	return entry, nil
}

func (s *Store) ListAudit(_ context.Context, table string, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]audit.Entry, 0)
	for i := len(s.auditEntries) - 1; i >= 0; i-- {
		entry := s.auditEntries[i]
		if table != "" && entry.Table != table {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) PruneAudit(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.auditEntries[:0]
	pruned := 0
	for _, entry := range s.auditEntries {
		if entry.CreatedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, entry)
	}
	s.auditEntries = kept
	return pruned, nil
}

// ExportStore implementation --------------------------------------------------

func (s *Store) ExportTables() []string {
	return database.Tables()
}

func (s *Store) TableRows(_ context.Context, table string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch table {
	case database.TableSettings:
		return rowMaps(s.settingRowsLocked())
	case database.TableApplications:
		return rowMaps(mapValues(s.applications))
	case database.TableContacts:
		return rowMaps(mapValues(s.contacts))
	case database.TableContent:
		return rowMaps(mapValues(s.contentBlocks))
	case database.TableLicenses:
		return rowMaps(mapValues(s.licenses))
	case database.TablePaymentAddresses:
		return rowMaps(mapValues(s.paymentAddresses))
	case database.TableAuditLog:
		return rowMaps(append([]audit.Entry(nil), s.auditEntries...))
	default:
		return nil, fmt.Errorf("unknown table %s", table)
	}
}

// settingRowsLocked assumes the read lock is held.
func (s *Store) settingRowsLocked() []settings.Row {
	result := make([]settings.Row, 0, len(s.settingRows))
	for _, row := range s.settingRows {
		result = append(result, cloneSettingRow(row))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// Helpers --------------------------------------------------------------------

func cloneRaw(src json.RawMessage) json.RawMessage {
	if len(src) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), src...)
}

func cloneSettingRow(row settings.Row) settings.Row {
	row.Value = cloneRaw(row.Value)
	if row.Description != nil {
		desc := *row.Description
		row.Description = &desc
	}
	return row
}

func cloneApplication(app application.Application) application.Application {
	app.Documents = cloneRaw(app.Documents)
	return app
}

func mapValues[V any](src map[string]V) []V {
	result := make([]V, 0, len(src))
	for _, v := range src {
		result = append(result, v)
	}
	return result
}

func rowMaps[V any](values []V) ([]map[string]any, error) {
	result := make([]map[string]any, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal export row: %w", err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode export row: %w", err)
		}
		result = append(result, m)
	}
	return result, nil
}
