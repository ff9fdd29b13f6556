// Package settings defines the structured site configuration record and its
// mapping to the flat key/value settings table.
//
// The table stores one row per key ("category3Price", "websiteLogo", ...).
// In memory the snapshot is a typed record: a fixed set of license tiers plus
// site metadata. Keys are validated at this boundary so a typo cannot create
// a phantom setting.
package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// NumCategories is the number of license tiers the site sells.
const NumCategories = 5

// Category statuses form a closed set.
const (
	StatusAvailable  = "available"
	StatusSoldOut    = "sold_out"
	StatusComingSoon = "coming_soon"
)

// Category holds the typed configuration of one license tier.
type Category struct {
	Price       string `json:"price"`
	Available   bool   `json:"available"`
	Status      string `json:"status"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Site is the full settings snapshot held by one process at one point in
// time. It is a value type: updates replace the whole snapshot, so readers
// never observe a torn write.
type Site struct {
	Categories     [NumCategories]Category `json:"categories"`
	WebsiteLogo    string                  `json:"website_logo"`
	ContactEmail   string                  `json:"contact_email"`
	ContactPhone   string                  `json:"contact_phone"`
	ContactAddress string                  `json:"contact_address"`
}

// Defaults returns the hard-coded fallback snapshot used until a fetch from
// the remote store completes.
func Defaults() Site {
	s := Site{
		WebsiteLogo:    "/assets/apex-logo.svg",
		ContactEmail:   "licensing@apexauthority.example",
		ContactPhone:   "+1 (800) 555-0147",
		ContactAddress: "1 Authority Plaza, Suite 400",
	}
	names := [NumCategories]string{
		"Category 1 - Individual",
		"Category 2 - Professional",
		"Category 3 - Enterprise",
		"Category 4 - Institutional",
		"Category 5 - Sovereign",
	}
	prices := [NumCategories]string{"$499", "$2,499", "$9,999", "$49,999", "$249,999"}
	for i := 0; i < NumCategories; i++ {
		s.Categories[i] = Category{
			Price:       prices[i],
			Available:   true,
			Status:      StatusAvailable,
			Name:        names[i],
			Description: "Licensing tier " + strconv.Itoa(i+1),
		}
	}
	return s
}

// Equal reports whether two snapshots hold the same values. Site is a pure
// value type, so this is plain comparison; the poller uses it to decide
// whether a fetched snapshot differs from the cached one.
func (s Site) Equal(other Site) bool {
	return s == other
}

// Category returns the 1-based tier, or an error for an out-of-range index.
func (s Site) Category(n int) (Category, error) {
	if n < 1 || n > NumCategories {
		return Category{}, fmt.Errorf("category %d out of range 1..%d", n, NumCategories)
	}
	return s.Categories[n-1], nil
}

// Row is one record of the settings table.
type Row struct {
	ID          string          `json:"id,omitempty"`
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Category    string          `json:"category"`
	Description *string         `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
}

// FromRows assembles a snapshot from settings table rows, starting from
// Defaults so missing keys keep their fallback values. Unknown keys are
// returned so the caller can log them; they are not an error.
func FromRows(rows []Row) (Site, []string) {
	site := Defaults()
	var unknown []string
	for _, row := range rows {
		if err := site.apply(row.Key, row.Value); err != nil {
			unknown = append(unknown, row.Key)
		}
	}
	return site, unknown
}

// apply sets a single key on the snapshot. The value column is JSON: string
// values arrive quoted, booleans and numbers bare; legacy rows hold raw
// strings. gjson normalizes all three.
func (s *Site) apply(key string, value json.RawMessage) error {
	parsed := gjson.ParseBytes(value)
	str := parsed.String()
	if parsed.Type == gjson.JSON || !parsed.Exists() {
		str = strings.Trim(string(value), `"`)
	}

	if n, field, ok := splitCategoryKey(key); ok {
		cat := &s.Categories[n-1]
		switch field {
		case "Price":
			cat.Price = str
		case "Available":
			cat.Available = parsed.Bool()
		case "Status":
			cat.Status = str
		case "Name":
			cat.Name = str
		case "Description":
			cat.Description = str
		default:
			return fmt.Errorf("unknown category field %q", field)
		}
		return nil
	}

	switch key {
	case "websiteLogo":
		s.WebsiteLogo = str
	case "contactEmail":
		s.ContactEmail = str
	case "contactPhone":
		s.ContactPhone = str
	case "contactAddress":
		s.ContactAddress = str
	default:
		return fmt.Errorf("unknown settings key %q", key)
	}
	return nil
}

// splitCategoryKey parses keys of the form category<N><Field>.
func splitCategoryKey(key string) (n int, field string, ok bool) {
	const prefix = "category"
	if !strings.HasPrefix(key, prefix) {
		return 0, "", false
	}
	rest := key[len(prefix):]
	if rest == "" {
		return 0, "", false
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 || i == len(rest) {
		return 0, "", false
	}
	n, err := strconv.Atoi(rest[:i])
	if err != nil || n < 1 || n > NumCategories {
		return 0, "", false
	}
	return n, rest[i:], true
}

// CategoryPatch holds optional updates for one tier.
type CategoryPatch struct {
	Price       *string `json:"price,omitempty"`
	Available   *bool   `json:"available,omitempty"`
	Status      *string `json:"status,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Patch holds a partial settings update. Each non-nil field becomes one
// remote key write.
type Patch struct {
	Categories     map[int]CategoryPatch `json:"categories,omitempty"`
	WebsiteLogo    *string               `json:"website_logo,omitempty"`
	ContactEmail   *string               `json:"contact_email,omitempty"`
	ContactPhone   *string               `json:"contact_phone,omitempty"`
	ContactAddress *string               `json:"contact_address,omitempty"`
}

// Rows validates the patch and flattens it to key/value rows, one per
// changed key. Row order is deterministic: category keys by tier then field,
// site keys last.
func (p Patch) Rows() ([]Row, error) {
	var rows []Row

	for n := 1; n <= NumCategories; n++ {
		cp, ok := p.Categories[n]
		if !ok {
			continue
		}
		prefix := "category" + strconv.Itoa(n)
		if cp.Price != nil {
			if strings.TrimSpace(*cp.Price) == "" {
				return nil, fmt.Errorf("category %d: price cannot be empty", n)
			}
			rows = append(rows, jsonRow(prefix+"Price", *cp.Price, "pricing"))
		}
		if cp.Available != nil {
			rows = append(rows, Row{Key: prefix + "Available", Value: boolJSON(*cp.Available), Category: "pricing"})
		}
		if cp.Status != nil {
			switch *cp.Status {
			case StatusAvailable, StatusSoldOut, StatusComingSoon:
			default:
				return nil, fmt.Errorf("category %d: invalid status %q", n, *cp.Status)
			}
			rows = append(rows, jsonRow(prefix+"Status", *cp.Status, "pricing"))
		}
		if cp.Name != nil {
			if strings.TrimSpace(*cp.Name) == "" {
				return nil, fmt.Errorf("category %d: name cannot be empty", n)
			}
			rows = append(rows, jsonRow(prefix+"Name", *cp.Name, "pricing"))
		}
		if cp.Description != nil {
			rows = append(rows, jsonRow(prefix+"Description", *cp.Description, "pricing"))
		}
	}
	for n := range p.Categories {
		if n < 1 || n > NumCategories {
			return nil, fmt.Errorf("category %d out of range 1..%d", n, NumCategories)
		}
	}

	if p.WebsiteLogo != nil {
		rows = append(rows, jsonRow("websiteLogo", *p.WebsiteLogo, "site"))
	}
	if p.ContactEmail != nil {
		if *p.ContactEmail != "" && !strings.Contains(*p.ContactEmail, "@") {
			return nil, fmt.Errorf("contact email %q is not an email address", *p.ContactEmail)
		}
		rows = append(rows, jsonRow("contactEmail", *p.ContactEmail, "site"))
	}
	if p.ContactPhone != nil {
		rows = append(rows, jsonRow("contactPhone", *p.ContactPhone, "site"))
	}
	if p.ContactAddress != nil {
		rows = append(rows, jsonRow("contactAddress", *p.ContactAddress, "site"))
	}

	return rows, nil
}

// Apply returns a copy of the snapshot with the given row applied. Unknown
// keys are an error here: writes go through Patch.Rows, which only produces
// known keys.
func (s Site) Apply(row Row) (Site, error) {
	out := s
	if err := out.apply(row.Key, row.Value); err != nil {
		return s, err
	}
	return out, nil
}

func jsonRow(key, value, category string) Row {
	data, _ := json.Marshal(value)
	return Row{Key: key, Value: data, Category: category}
}

func boolJSON(v bool) json.RawMessage {
	if v {
		return json.RawMessage("true")
	}
	return json.RawMessage("false")
}
