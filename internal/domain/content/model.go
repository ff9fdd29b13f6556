// Package content defines editable site content blocks.
package content

import "time"

// Block is one editable unit of site copy, addressed by section and key.
type Block struct {
	ID        string    `json:"id,omitempty"`
	Section   string    `json:"section"`
	Key       string    `json:"key"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
