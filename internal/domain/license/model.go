// Package license defines issued licenses and their identifier format.
package license

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// License is issued when an application is approved.
type License struct {
	ID            string    `json:"id,omitempty"`
	LicenseID     string    `json:"license_id"`
	ApplicationID string    `json:"application_id"`
	HolderName    string    `json:"holder_name"`
	Category      int       `json:"category"`
	IssuedAt      time.Time `json:"issued_at"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// NewLicenseID formats a license identifier: APEX-C<tier>-<year>-<8 hex>.
func NewLicenseID(category int, issued time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate license id: %w", err)
	}
	return fmt.Sprintf("APEX-C%d-%d-%s", category, issued.Year(), hex.EncodeToString(buf)), nil
}
