// Package application defines license application records.
package application

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status values form a closed set. Records are created pending and mutated
// only by an admin status update; they are never deleted in the main flow.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusApproved, StatusRejected:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid application status %q", s)
}

// CanTransition reports whether an admin may move a record from its current
// status to next. Terminal statuses stay terminal.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusApproved || to == StatusRejected
	case StatusProcessing:
		return to == StatusApproved || to == StatusRejected
	default:
		return false
	}
}

// Application is one license application.
type Application struct {
	ID            string          `json:"id,omitempty"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone,omitempty"`
	Company       string          `json:"company,omitempty"`
	Category      int             `json:"category"`
	Status        Status          `json:"status"`
	Amount        string          `json:"amount,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Documents     json.RawMessage `json:"documents,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at,omitempty"`
}
