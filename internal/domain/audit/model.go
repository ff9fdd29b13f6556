// Package audit defines immutable audit log entries.
package audit

import (
	"encoding/json"
	"time"
)

// Entry records one mutation of another table. Entries are append-only; the
// application never updates or rewrites them, only prunes by age.
type Entry struct {
	ID        string          `json:"id,omitempty"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Table     string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	OldValue  json.RawMessage `json:"old_value,omitempty"`
	NewValue  json.RawMessage `json:"new_value,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}
