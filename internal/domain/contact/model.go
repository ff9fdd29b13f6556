// Package contact defines inbound contact messages and their lifecycle.
package contact

import (
	"fmt"
	"time"
)

// Status lifecycle: unread -> read -> responded; archived is reachable from
// any status; deletion removes the row regardless of status.
type Status string

const (
	StatusUnread    Status = "unread"
	StatusRead      Status = "read"
	StatusResponded Status = "responded"
	StatusArchived  Status = "archived"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUnread, StatusRead, StatusResponded, StatusArchived:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid contact status %q", s)
}

// CanTransition reports whether a message may move from its current status
// to next. Archiving is allowed from any live status.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if to == StatusArchived {
		return from != StatusArchived
	}
	switch from {
	case StatusUnread:
		return to == StatusRead
	case StatusRead:
		return to == StatusResponded
	default:
		return false
	}
}

// Contact is one inbound message from the public contact form.
type Contact struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
