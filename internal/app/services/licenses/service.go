// Package licenses exposes issued licenses and public verification.
package licenses

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/domain/license"
	"github.com/apex-authority/backoffice/internal/logging"
)

// Service reads issued licenses.
type Service struct {
	store storage.LicenseStore
	log   *logging.Logger
}

// New constructs the licenses service.
func New(store storage.LicenseStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("licenses")
	}
	return &Service{store: store, log: log}
}

// Get returns one license by internal id.
func (s *Service) Get(ctx context.Context, id string) (license.License, error) {
	return s.store.GetLicense(ctx, id)
}

// List returns every issued license, newest first.
func (s *Service) List(ctx context.Context) ([]license.License, error) {
	return s.store.ListLicenses(ctx)
}

// Verify looks a license up by its public identifier.
func (s *Service) Verify(ctx context.Context, licenseID string) (license.License, error) {
	licenseID = strings.TrimSpace(licenseID)
	if licenseID == "" {
		return license.License{}, fmt.Errorf("license id is required")
	}
	lic, err := s.store.GetLicenseByLicenseID(ctx, licenseID)
	if err != nil {
		return license.License{}, fmt.Errorf("license %s not found", licenseID)
	}
	return lic, nil
}
