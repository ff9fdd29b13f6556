// Package supabase implements the storage interfaces on top of the hosted
// Supabase PostgREST API.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
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

// Store talks to the remote database through a shared Client.
type Store struct {
	client *database.Client
}

var _ storage.SettingsStore = (*Store)(nil)
var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.ContactStore = (*Store)(nil)
var _ storage.ContentStore = (*Store)(nil)
var _ storage.LicenseStore = (*Store)(nil)
var _ storage.PaymentAddressStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)
var _ storage.ExportStore = (*Store)(nil)

// New wraps an existing client.
func New(client *database.Client) *Store {
	return &Store{client: client}
}

func decodeRows[T any](raw []byte) ([]T, error) {
	var rows []T
	if len(raw) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rows, nil
}

func firstRow[T any](raw []byte, what string) (T, error) {
	rows, err := decodeRows[T](raw)
	if err != nil {
		var zero T
		return zero, err
	}
	if len(rows) == 0 {
		var zero T
		return zero, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return rows[0], nil
}

func idFilter(id string) string {
	return "id=eq." + url.QueryEscape(id)
}

// stamp fills zero timestamps before a write. PostgREST would otherwise store
// the Go zero time verbatim.
func stamp(createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()
	if createdAt != nil && createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt != nil {
		*updatedAt = now
	}
}

// SettingsStore implementation ------------------------------------------------

func (s *Store) ListSettingRows(ctx context.Context) ([]settings.Row, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableSettings, nil, "select=*&order=key.asc")
	if err != nil {
		return nil, err
	}
	return decodeRows[settings.Row](raw)
}

func (s *Store) UpsertSettingRows(ctx context.Context, rows []settings.Row) error {
	if len(rows) == 0 {
		return nil
	}
	type upsertRow struct {
		Key         string          `json:"key"`
		Value       json.RawMessage `json:"value"`
		Category    string          `json:"category"`
		Description *string         `json:"description,omitempty"`
	}
	payload := make([]upsertRow, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, upsertRow{
			Key:         row.Key,
			Value:       row.Value,
			Category:    row.Category,
			Description: row.Description,
		})
	}
	_, err := s.client.Upsert(ctx, database.TableSettings, payload, "key")
	return err
}

// ApplicationStore implementation ---------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	stamp(&app.CreatedAt, &app.UpdatedAt)
	raw, err := s.client.Request(ctx, http.MethodPost, database.TableApplications, app, "")
	if err != nil {
		return application.Application{}, err
	}
	return firstRow[application.Application](raw, "application")
}

func (s *Store) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	stamp(&app.CreatedAt, &app.UpdatedAt)
	raw, err := s.client.Request(ctx, http.MethodPatch, database.TableApplications, app, idFilter(app.ID))
	if err != nil {
		return application.Application{}, err
	}
	return firstRow[application.Application](raw, fmt.Sprintf("application %s", app.ID))
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableApplications, nil, idFilter(id)+"&limit=1")
	if err != nil {
		return application.Application{}, err
	}
	return firstRow[application.Application](raw, fmt.Sprintf("application %s", id))
}

func (s *Store) ListApplications(ctx context.Context) ([]application.Application, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableApplications, nil, "select=*&order=created_at.desc")
	if err != nil {
		return nil, err
	}
	return decodeRows[application.Application](raw)
}

// ContactStore implementation -------------------------------------------------

func (s *Store) CreateContact(ctx context.Context, msg contact.Contact) (contact.Contact, error) {
	stamp(&msg.CreatedAt, &msg.UpdatedAt)
	raw, err := s.client.Request(ctx, http.MethodPost, database.TableContacts, msg, "")
	if err != nil {
		return contact.Contact{}, err
	}
	return firstRow[contact.Contact](raw, "contact")
}

func (s *Store) UpdateContact(ctx context.Context, msg contact.Contact) (contact.Contact, error) {
	stamp(&msg.CreatedAt, &msg.UpdatedAt)
	raw, err := s.client.Request(ctx, http.MethodPatch, database.TableContacts, msg, idFilter(msg.ID))
	if err != nil {
		return contact.Contact{}, err
	}
	return firstRow[contact.Contact](raw, fmt.Sprintf("contact %s", msg.ID))
}

func (s *Store) GetContact(ctx context.Context, id string) (contact.Contact, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableContacts, nil, idFilter(id)+"&limit=1")
	if err != nil {
		return contact.Contact{}, err
	}
	return firstRow[contact.Contact](raw, fmt.Sprintf("contact %s", id))
}

func (s *Store) ListContacts(ctx context.Context) ([]contact.Contact, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableContacts, nil, "select=*&order=created_at.desc")
	if err != nil {
		return nil, err
	}
	return decodeRows[contact.Contact](raw)
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	raw, err := s.client.Request(ctx, http.MethodDelete, database.TableContacts, nil, idFilter(id))
	if err != nil {
		return err
	}
	if _, err := firstRow[contact.Contact](raw, fmt.Sprintf("contact %s", id)); err != nil {
		return err
	}
	return nil
}

// ContentStore implementation -------------------------------------------------

func (s *Store) CreateContent(ctx context.Context, blk content.Block) (content.Block, error) {
	stamp(&blk.CreatedAt, &blk.UpdatedAt)
	raw, err := s.client.Request(ctx, http.MethodPost, database.TableContent, blk, "")
	if err != nil {
		return content.Block{}, err
	}
	return firstRow[content.Block](raw, "content block")
}

func (s *Store) UpdateContent(ctx context.Context, blk content.Block) (content.Block, error) {
	stamp(&blk.CreatedAt, &blk.UpdatedAt)
	raw, err := s.client.Request(ctx, http.MethodPatch, database.TableContent, blk, idFilter(blk.ID))
	if err != nil {
		return content.Block{}, err
	}
	return firstRow[content.Block](raw, fmt.Sprintf("content block %s", blk.ID))
}

func (s *Store) GetContent(ctx context.Context, id string) (content.Block, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableContent, nil, idFilter(id)+"&limit=1")
	if err != nil {
		return content.Block{}, err
	}
	return firstRow[content.Block](raw, fmt.Sprintf("content block %s", id))
}

func (s *Store) ListContent(ctx context.Context, section string) ([]content.Block, error) {
	query := "select=*&order=section.asc,key.asc"
	if section != "" {
		query += "&section=eq." + url.QueryEscape(section)
	}
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableContent, nil, query)
	if err != nil {
		return nil, err
	}
	return decodeRows[content.Block](raw)
}

func (s *Store) DeleteContent(ctx context.Context, id string) error {
	raw, err := s.client.Request(ctx, http.MethodDelete, database.TableContent, nil, idFilter(id))
	if err != nil {
		return err
	}
	if _, err := firstRow[content.Block](raw, fmt.Sprintf("content block %s", id)); err != nil {
		return err
	}
	return nil
}

// LicenseStore implementation -------------------------------------------------

func (s *Store) CreateLicense(ctx context.Context, lic license.License) (license.License, error) {
	if lic.IssuedAt.IsZero() {
		lic.IssuedAt = time.Now().UTC()
	}
	stamp(&lic.CreatedAt, nil)
	raw, err := s.client.Request(ctx, http.MethodPost, database.TableLicenses, lic, "")
	if err != nil {
		return license.License{}, err
	}
	return firstRow[license.License](raw, "license")
}

func (s *Store) GetLicense(ctx context.Context, id string) (license.License, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableLicenses, nil, idFilter(id)+"&limit=1")
	if err != nil {
		return license.License{}, err
	}
	return firstRow[license.License](raw, fmt.Sprintf("license %s", id))
}

func (s *Store) GetLicenseByLicenseID(ctx context.Context, licenseID string) (license.License, error) {
	query := "license_id=eq." + url.QueryEscape(licenseID) + "&limit=1"
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableLicenses, nil, query)
	if err != nil {
		return license.License{}, err
	}
	return firstRow[license.License](raw, fmt.Sprintf("license number %s", licenseID))
}

func (s *Store) ListLicenses(ctx context.Context) ([]license.License, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableLicenses, nil, "select=*&order=issued_at.desc")
	if err != nil {
		return nil, err
	}
	return decodeRows[license.License](raw)
}

// PaymentAddressStore implementation ------------------------------------------

func (s *Store) UpsertPaymentAddress(ctx context.Context, addr storage.PaymentAddress) (storage.PaymentAddress, error) {
	type upsertAddr struct {
		Method  string `json:"method"`
		Address string `json:"address"`
		Network string `json:"network"`
		Active  bool   `json:"active"`
	}
	payload := []upsertAddr{{Method: addr.Method, Address: addr.Address, Network: addr.Network, Active: addr.Active}}
	raw, err := s.client.Upsert(ctx, database.TablePaymentAddresses, payload, "method")
	if err != nil {
		return storage.PaymentAddress{}, err
	}
	return firstRow[storage.PaymentAddress](raw, "payment address")
}

func (s *Store) ListPaymentAddresses(ctx context.Context, activeOnly bool) ([]storage.PaymentAddress, error) {
	query := "select=*&order=method.asc"
	if activeOnly {
		query += "&active=eq.true"
	}
	raw, err := s.client.Request(ctx, http.MethodGet, database.TablePaymentAddresses, nil, query)
	if err != nil {
		return nil, err
	}
	return decodeRows[storage.PaymentAddress](raw)
}

func (s *Store) DeletePaymentAddress(ctx context.Context, id string) error {
	raw, err := s.client.Request(ctx, http.MethodDelete, database.TablePaymentAddresses, nil, idFilter(id))
	if err != nil {
		return err
	}
	if _, err := firstRow[storage.PaymentAddress](raw, fmt.Sprintf("payment address %s", id)); err != nil {
		return err
	}
	return nil
}

// AuditStore implementation ---------------------------------------------------

func (s *Store) AppendAudit(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	stamp(&entry.CreatedAt, nil)
	raw, err := s.client.Request(ctx, http.MethodPost, database.TableAuditLog, entry, "")
	if err != nil {
		return audit.Entry{}, err
	}
	return firstRow[audit.Entry](raw, "audit entry")
}

func (s *Store) ListAudit(ctx context.Context, table string, limit int) ([]audit.Entry, error) {
	query := "select=*&order=created_at.desc"
	if table != "" {
		query += "&table_name=eq." + url.QueryEscape(table)
	}
	if limit > 0 {
		query += fmt.Sprintf("&limit=%d", limit)
	}
	raw, err := s.client.Request(ctx, http.MethodGet, database.TableAuditLog, nil, query)
	if err != nil {
		return nil, err
	}
	return decodeRows[audit.Entry](raw)
}

func (s *Store) PruneAudit(ctx context.Context, before time.Time) (int, error) {
	query := "created_at=lt." + url.QueryEscape(before.UTC().Format(time.RFC3339))
	raw, err := s.client.Request(ctx, http.MethodDelete, database.TableAuditLog, nil, query)
	if err != nil {
		return 0, err
	}
	deleted, err := decodeRows[audit.Entry](raw)
	if err != nil {
		return 0, err
	}
	return len(deleted), nil
}

// ExportStore implementation --------------------------------------------------

func (s *Store) ExportTables() []string {
	return database.Tables()
}

func (s *Store) TableRows(ctx context.Context, table string) ([]map[string]any, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, table, nil, "select=*")
	if err != nil {
		return nil, err
	}
	return decodeRows[map[string]any](raw)
}
