package storage

import (
	"context"
	"errors"
	"time"

	"github.com/apex-authority/backoffice/internal/domain/application"
	"github.com/apex-authority/backoffice/internal/domain/audit"
	"github.com/apex-authority/backoffice/internal/domain/contact"
	"github.com/apex-authority/backoffice/internal/domain/content"
	"github.com/apex-authority/backoffice/internal/domain/license"
	"github.com/apex-authority/backoffice/internal/domain/settings"
)

// ErrNotFound is returned by every backend when a record does not exist.
// Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// SettingsStore persists site settings as one row per key.
type SettingsStore interface {
	ListSettingRows(ctx context.Context) ([]settings.Row, error)
	UpsertSettingRows(ctx context.Context, rows []settings.Row) error
}

// ApplicationStore persists license applications.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app application.Application) (application.Application, error)
	UpdateApplication(ctx context.Context, app application.Application) (application.Application, error)
	GetApplication(ctx context.Context, id string) (application.Application, error)
	ListApplications(ctx context.Context) ([]application.Application, error)
}

// ContactStore persists contact messages.
type ContactStore interface {
	CreateContact(ctx context.Context, msg contact.Contact) (contact.Contact, error)
	UpdateContact(ctx context.Context, msg contact.Contact) (contact.Contact, error)
	GetContact(ctx context.Context, id string) (contact.Contact, error)
	ListContacts(ctx context.Context) ([]contact.Contact, error)
	DeleteContact(ctx context.Context, id string) error
}

// ContentStore persists editable site content blocks.
type ContentStore interface {
	CreateContent(ctx context.Context, blk content.Block) (content.Block, error)
	UpdateContent(ctx context.Context, blk content.Block) (content.Block, error)
	GetContent(ctx context.Context, id string) (content.Block, error)
	ListContent(ctx context.Context, section string) ([]content.Block, error)
	DeleteContent(ctx context.Context, id string) error
}

// LicenseStore persists issued licenses.
type LicenseStore interface {
	CreateLicense(ctx context.Context, lic license.License) (license.License, error)
	GetLicense(ctx context.Context, id string) (license.License, error)
	GetLicenseByLicenseID(ctx context.Context, licenseID string) (license.License, error)
	ListLicenses(ctx context.Context) ([]license.License, error)
}

// PaymentAddress is a per-method receiving address shown on the site.
type PaymentAddress struct {
	ID        string    `json:"id"`
	Method    string    `json:"method"`
	Address   string    `json:"address"`
	Network   string    `json:"network"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentAddressStore persists payment receiving addresses.
type PaymentAddressStore interface {
	UpsertPaymentAddress(ctx context.Context, addr PaymentAddress) (PaymentAddress, error)
	ListPaymentAddresses(ctx context.Context, activeOnly bool) ([]PaymentAddress, error)
	DeletePaymentAddress(ctx context.Context, id string) error
}

// AuditStore persists the append-only admin audit log.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry audit.Entry) (audit.Entry, error)
	ListAudit(ctx context.Context, table string, limit int) ([]audit.Entry, error)
	PruneAudit(ctx context.Context, before time.Time) (int, error)
}

// ExportStore exposes raw table rows for CSV export.
type ExportStore interface {
	ExportTables() []string
	TableRows(ctx context.Context, table string) ([]map[string]any, error)
}
