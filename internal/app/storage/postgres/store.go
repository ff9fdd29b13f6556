package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/database"
	"github.com/apex-authority/backoffice/internal/domain/application"
	"github.com/apex-authority/backoffice/internal/domain/audit"
	"github.com/apex-authority/backoffice/internal/domain/contact"
	"github.com/apex-authority/backoffice/internal/domain/content"
	"github.com/apex-authority/backoffice/internal/domain/license"
	"github.com/apex-authority/backoffice/internal/domain/settings"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.SettingsStore = (*Store)(nil)
var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.ContactStore = (*Store)(nil)
var _ storage.ContentStore = (*Store)(nil)
var _ storage.LicenseStore = (*Store)(nil)
var _ storage.PaymentAddressStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)
var _ storage.ExportStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- SettingsStore ----------------------------------------------------------

func (s *Store) ListSettingRows(ctx context.Context) ([]settings.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, value, category, description, created_at, updated_at
		FROM settings
		ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settings.Row
	for rows.Next() {
		var (
			row  settings.Row
			desc sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.Key, &row.Value, &row.Category, &desc, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			row.Description = &desc.String
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) UpsertSettingRows(ctx context.Context, rows []settings.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, row := range rows {
		id := row.ID
		if id == "" {
			id = uuid.NewString()
		}
		var desc sql.NullString
		if row.Description != nil {
			desc = sql.NullString{String: *row.Description, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (id, key, value, category, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, category = EXCLUDED.category, description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
		`, id, row.Key, []byte(row.Value), row.Category, desc, now)
		if err != nil {
			return fmt.Errorf("upsert setting %s: %w", row.Key, err)
		}
	}
	return tx.Commit()
}

// --- ApplicationStore -------------------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, name, email, phone, company, category, status, amount, payment_method, transaction_id, notes, documents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, app.ID, app.Name, app.Email, app.Phone, app.Company, app.Category, app.Status, app.Amount, app.PaymentMethod, app.TransactionID, app.Notes, nullRaw(app.Documents), app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return application.Application{}, err
	}
	return app, nil
}

func (s *Store) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	existing, err := s.GetApplication(ctx, app.ID)
	if err != nil {
		return application.Application{}, err
	}

	app.CreatedAt = existing.CreatedAt
	app.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE applications
		SET name = $2, email = $3, phone = $4, company = $5, category = $6, status = $7, amount = $8, payment_method = $9, transaction_id = $10, notes = $11, documents = $12, updated_at = $13
		WHERE id = $1
	`, app.ID, app.Name, app.Email, app.Phone, app.Company, app.Category, app.Status, app.Amount, app.PaymentMethod, app.TransactionID, app.Notes, nullRaw(app.Documents), app.UpdatedAt)
	if err != nil {
		return application.Application{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return application.Application{}, storage.ErrNotFound
	}
	return app, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, company, category, status, amount, payment_method, transaction_id, notes, documents, created_at, updated_at
		FROM applications
		WHERE id = $1
	`, id)

	var (
		app  application.Application
		docs []byte
	)
	if err := row.Scan(&app.ID, &app.Name, &app.Email, &app.Phone, &app.Company, &app.Category, &app.Status, &app.Amount, &app.PaymentMethod, &app.TransactionID, &app.Notes, &docs, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return application.Application{}, scanErr(err)
	}
	app.Documents = docs
	return app, nil
}

func (s *Store) ListApplications(ctx context.Context) ([]application.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, company, category, status, amount, payment_method, transaction_id, notes, documents, created_at, updated_at
		FROM applications
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []application.Application
	for rows.Next() {
		var (
			app  application.Application
			docs []byte
		)
		if err := rows.Scan(&app.ID, &app.Name, &app.Email, &app.Phone, &app.Company, &app.Category, &app.Status, &app.Amount, &app.PaymentMethod, &app.TransactionID, &app.Notes, &docs, &app.CreatedAt, &app.UpdatedAt); err != nil {
			return nil, err
		}
		app.Documents = docs
		result = append(result, app)
	}
	return result, rows.Err()
}

// --- ContactStore -----------------------------------------------------------

func (s *Store) CreateContact(ctx context.Context, msg contact.Contact) (contact.Contact, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, name, email, subject, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.Name, msg.Email, msg.Subject, msg.Message, msg.Status, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return contact.Contact{}, err
	}
	return msg, nil
}

func (s *Store) UpdateContact(ctx context.Context, msg contact.Contact) (contact.Contact, error) {
	existing, err := s.GetContact(ctx, msg.ID)
	if err != nil {
		return contact.Contact{}, err
	}

	msg.CreatedAt = existing.CreatedAt
	msg.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET name = $2, email = $3, subject = $4, message = $5, status = $6, updated_at = $7
		WHERE id = $1
	`, msg.ID, msg.Name, msg.Email, msg.Subject, msg.Message, msg.Status, msg.UpdatedAt)
	if err != nil {
		return contact.Contact{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return contact.Contact{}, storage.ErrNotFound
	}
	return msg, nil
}

func (s *Store) GetContact(ctx context.Context, id string) (contact.Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, subject, message, status, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`, id)

	var msg contact.Contact
	if err := row.Scan(&msg.ID, &msg.Name, &msg.Email, &msg.Subject, &msg.Message, &msg.Status, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return contact.Contact{}, scanErr(err)
	}
	return msg, nil
}

func (s *Store) ListContacts(ctx context.Context) ([]contact.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, subject, message, status, created_at, updated_at
		FROM contacts
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []contact.Contact
	for rows.Next() {
		var msg contact.Contact
		if err := rows.Scan(&msg.ID, &msg.Name, &msg.Email, &msg.Subject, &msg.Message, &msg.Status, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM contacts WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- ContentStore -----------------------------------------------------------

func (s *Store) CreateContent(ctx context.Context, blk content.Block) (content.Block, error) {
	if blk.ID == "" {
		blk.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	blk.CreatedAt = now
	blk.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (id, section, key, title, body, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, blk.ID, blk.Section, blk.Key, blk.Title, blk.Body, blk.Published, blk.CreatedAt, blk.UpdatedAt)
	if err != nil {
		return content.Block{}, err
	}
	return blk, nil
}

func (s *Store) UpdateContent(ctx context.Context, blk content.Block) (content.Block, error) {
	existing, err := s.GetContent(ctx, blk.ID)
	if err != nil {
		return content.Block{}, err
	}

	blk.CreatedAt = existing.CreatedAt
	blk.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE content
		SET section = $2, key = $3, title = $4, body = $5, published = $6, updated_at = $7
		WHERE id = $1
	`, blk.ID, blk.Section, blk.Key, blk.Title, blk.Body, blk.Published, blk.UpdatedAt)
	if err != nil {
		return content.Block{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return content.Block{}, storage.ErrNotFound
	}
	return blk, nil
}

func (s *Store) GetContent(ctx context.Context, id string) (content.Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, section, key, title, body, published, created_at, updated_at
		FROM content
		WHERE id = $1
	`, id)

	var blk content.Block
	if err := row.Scan(&blk.ID, &blk.Section, &blk.Key, &blk.Title, &blk.Body, &blk.Published, &blk.CreatedAt, &blk.UpdatedAt); err != nil {
		return content.Block{}, scanErr(err)
	}
	return blk, nil
}

func (s *Store) ListContent(ctx context.Context, section string) ([]content.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section, key, title, body, published, created_at, updated_at
		FROM content
		WHERE $1 = '' OR section = $1
		ORDER BY section, key
	`, section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []content.Block
	for rows.Next() {
		var blk content.Block
		if err := rows.Scan(&blk.ID, &blk.Section, &blk.Key, &blk.Title, &blk.Body, &blk.Published, &blk.CreatedAt, &blk.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, blk)
	}
	return result, rows.Err()
}

func (s *Store) DeleteContent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM content WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- LicenseStore -----------------------------------------------------------

func (s *Store) CreateLicense(ctx context.Context, lic license.License) (license.License, error) {
	if lic.ID == "" {
		lic.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lic.CreatedAt = now
	if lic.IssuedAt.IsZero() {
		lic.IssuedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO licenses (id, license_id, application_id, holder_name, category, issued_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, lic.ID, lic.LicenseID, lic.ApplicationID, lic.HolderName, lic.Category, lic.IssuedAt, lic.CreatedAt)
	if err != nil {
		return license.License{}, err
	}
	return lic, nil
}

func (s *Store) GetLicense(ctx context.Context, id string) (license.License, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, license_id, application_id, holder_name, category, issued_at, created_at
		FROM licenses
		WHERE id = $1
	`, id)

	var lic license.License
	if err := row.Scan(&lic.ID, &lic.LicenseID, &lic.ApplicationID, &lic.HolderName, &lic.Category, &lic.IssuedAt, &lic.CreatedAt); err != nil {
		return license.License{}, scanErr(err)
	}
	return lic, nil
}

func (s *Store) GetLicenseByLicenseID(ctx context.Context, licenseID string) (license.License, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, license_id, application_id, holder_name, category, issued_at, created_at
		FROM licenses
		WHERE license_id = $1
	`, licenseID)

	var lic license.License
	if err := row.Scan(&lic.ID, &lic.LicenseID, &lic.ApplicationID, &lic.HolderName, &lic.Category, &lic.IssuedAt, &lic.CreatedAt); err != nil {
		return license.License{}, scanErr(err)
	}
	return lic, nil
}

func (s *Store) ListLicenses(ctx context.Context) ([]license.License, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, license_id, application_id, holder_name, category, issued_at, created_at
		FROM licenses
		ORDER BY issued_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []license.License
	for rows.Next() {
		var lic license.License
		if err := rows.Scan(&lic.ID, &lic.LicenseID, &lic.ApplicationID, &lic.HolderName, &lic.Category, &lic.IssuedAt, &lic.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, lic)
	}
	return result, rows.Err()
}

// --- PaymentAddressStore ----------------------------------------------------

func (s *Store) UpsertPaymentAddress(ctx context.Context, addr storage.PaymentAddress) (storage.PaymentAddress, error) {
	if addr.ID == "" {
		addr.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	addr.UpdatedAt = now
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = now
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO payment_addresses (id, method, address, network, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (method) DO UPDATE
		SET address = EXCLUDED.address, network = EXCLUDED.network, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, addr.ID, addr.Method, addr.Address, addr.Network, addr.Active, addr.CreatedAt, addr.UpdatedAt)
	if err := row.Scan(&addr.ID, &addr.CreatedAt); err != nil {
		return storage.PaymentAddress{}, err
	}
	return addr, nil
}

func (s *Store) ListPaymentAddresses(ctx context.Context, activeOnly bool) ([]storage.PaymentAddress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, method, address, network, active, created_at, updated_at
		FROM payment_addresses
		WHERE NOT $1 OR active
		ORDER BY method
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []storage.PaymentAddress
	for rows.Next() {
		var addr storage.PaymentAddress
		if err := rows.Scan(&addr.ID, &addr.Method, &addr.Address, &addr.Network, &addr.Active, &addr.CreatedAt, &addr.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, addr)
	}
	return result, rows.Err()
}

func (s *Store) DeletePaymentAddress(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM payment_addresses WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- AuditStore -------------------------------------------------------------

func (s *Store) AppendAudit(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor, action, table_name, record_id, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.Actor, entry.Action, entry.Table, entry.RecordID, nullRaw(entry.OldValue), nullRaw(entry.NewValue), entry.CreatedAt)
	if err != nil {
		return audit.Entry{}, err
	}
	return entry, nil
}

func (s *Store) ListAudit(ctx context.Context, table string, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, table_name, record_id, old_value, new_value, created_at
		FROM audit_log
		WHERE $1 = '' OR table_name = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, table, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var (
			entry    audit.Entry
			oldValue []byte
			newValue []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.Table, &entry.RecordID, &oldValue, &newValue, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.OldValue = oldValue
		entry.NewValue = newValue
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *Store) PruneAudit(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_log WHERE created_at < $1
	`, before.UTC())
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// --- ExportStore ------------------------------------------------------------

var exportQueries = map[string]string{
	database.TableApplications:     `SELECT id, name, email, phone, company, category, status, amount, payment_method, transaction_id, notes, documents, created_at, updated_at FROM applications ORDER BY created_at`,
	database.TableContacts:         `SELECT id, name, email, subject, message, status, created_at, updated_at FROM contacts ORDER BY created_at`,
	database.TableContent:          `SELECT id, section, key, title, body, published, created_at, updated_at FROM content ORDER BY section, key`,
	database.TableLicenses:         `SELECT id, license_id, application_id, holder_name, category, issued_at, created_at FROM licenses ORDER BY issued_at`,
	database.TablePaymentAddresses: `SELECT id, method, address, network, active, created_at, updated_at FROM payment_addresses ORDER BY method`,
	database.TableSettings:         `SELECT id, key, value, category, description, created_at, updated_at FROM settings ORDER BY key`,
	database.TableAuditLog:         `SELECT id, actor, action, table_name, record_id, old_value, new_value, created_at FROM audit_log ORDER BY created_at`,
}

func (s *Store) ExportTables() []string {
	return database.Tables()
}

func (s *Store) TableRows(ctx context.Context, table string) ([]map[string]any, error) {
	query, ok := exportQueries[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", table)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			if raw, ok := v.([]byte); ok {
				v = string(raw)
			}
			record[col] = v
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// scanErr maps the driver's empty-result error onto the shared sentinel.
func scanErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func nullRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
