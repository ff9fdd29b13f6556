package settings

import (
	"encoding/json"
	"testing"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestFromRowsAppliesKnownKeys(t *testing.T) {
	rows := []Row{
		{Key: "category3Price", Value: json.RawMessage(`"$99,999"`)},
		{Key: "category2Available", Value: json.RawMessage(`false`)},
		{Key: "category2Status", Value: json.RawMessage(`"sold_out"`)},
		{Key: "websiteLogo", Value: json.RawMessage(`"/logo-v2.svg"`)},
	}

	site, unknown := FromRows(rows)
	if len(unknown) != 0 {
		t.Fatalf("unexpected unknown keys: %v", unknown)
	}
	if site.Categories[2].Price != "$99,999" {
		t.Fatalf("category3 price = %q", site.Categories[2].Price)
	}
	if site.Categories[1].Available {
		t.Fatal("category2 should be unavailable")
	}
	if site.Categories[1].Status != StatusSoldOut {
		t.Fatalf("category2 status = %q", site.Categories[1].Status)
	}
	if site.WebsiteLogo != "/logo-v2.svg" {
		t.Fatalf("logo = %q", site.WebsiteLogo)
	}
	// Untouched keys keep defaults.
	if site.Categories[0].Price != Defaults().Categories[0].Price {
		t.Fatal("category1 price should keep its default")
	}
}

func TestFromRowsReportsUnknownKeys(t *testing.T) {
	rows := []Row{
		{Key: "category9Price", Value: json.RawMessage(`"$1"`)},
		{Key: "favouriteColour", Value: json.RawMessage(`"mauve"`)},
		{Key: "category1Price", Value: json.RawMessage(`"$100"`)},
	}
	site, unknown := FromRows(rows)
	if len(unknown) != 2 {
		t.Fatalf("unknown = %v, want 2 entries", unknown)
	}
	if site.Categories[0].Price != "$100" {
		t.Fatal("known key should still apply")
	}
}

func TestPatchRowsFlattensChangedKeysOnly(t *testing.T) {
	rows, err := Patch{
		Categories: map[int]CategoryPatch{
			3: {Price: strPtr("$99,999"), Available: boolPtr(true)},
		},
		ContactEmail: strPtr("hello@apex.example"),
	}.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}

	keys := map[string]string{}
	for _, r := range rows {
		keys[r.Key] = string(r.Value)
	}
	if keys["category3Price"] != `"$99,999"` {
		t.Fatalf("category3Price = %s", keys["category3Price"])
	}
	if keys["category3Available"] != "true" {
		t.Fatalf("category3Available = %s", keys["category3Available"])
	}
	if keys["contactEmail"] != `"hello@apex.example"` {
		t.Fatalf("contactEmail = %s", keys["contactEmail"])
	}
}

func TestPatchRowsValidation(t *testing.T) {
	cases := []struct {
		name  string
		patch Patch
	}{
		{"empty price", Patch{Categories: map[int]CategoryPatch{1: {Price: strPtr("  ")}}}},
		{"bad status", Patch{Categories: map[int]CategoryPatch{1: {Status: strPtr("gone")}}}},
		{"empty name", Patch{Categories: map[int]CategoryPatch{1: {Name: strPtr("")}}}},
		{"tier out of range", Patch{Categories: map[int]CategoryPatch{6: {Price: strPtr("$1")}}}},
		{"bad email", Patch{ContactEmail: strPtr("not-an-email")}},
	}
	for _, tc := range cases {
		if _, err := tc.patch.Rows(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestApplyReturnsNewSnapshot(t *testing.T) {
	before := Defaults()
	after, err := before.Apply(Row{Key: "category1Price", Value: json.RawMessage(`"$1,000"`)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if before.Categories[0].Price == "$1,000" {
		t.Fatal("Apply must not mutate the receiver")
	}
	if after.Categories[0].Price != "$1,000" {
		t.Fatalf("after price = %q", after.Categories[0].Price)
	}
	if after.Equal(before) {
		t.Fatal("snapshots should differ")
	}
}

func TestEqualIsValueComparison(t *testing.T) {
	a := Defaults()
	b := Defaults()
	if !a.Equal(b) {
		t.Fatal("identical snapshots should compare equal")
	}
	b.Categories[4].Available = false
	if a.Equal(b) {
		t.Fatal("differing snapshots should not compare equal")
	}
}

func TestRoundTripPatchThroughRows(t *testing.T) {
	rows, err := Patch{
		Categories: map[int]CategoryPatch{2: {Available: boolPtr(false), Status: strPtr(StatusSoldOut)}},
	}.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	site, unknown := FromRows(rows)
	if len(unknown) != 0 {
		t.Fatalf("unknown keys: %v", unknown)
	}
	if site.Categories[1].Available || site.Categories[1].Status != StatusSoldOut {
		t.Fatalf("category2 = %+v", site.Categories[1])
	}
}
