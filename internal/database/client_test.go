package database

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripperFunc) *Client {
	t.Helper()
	c, err := NewClient(Config{URL: "https://example.supabase.co", ServiceKey: "service-key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.httpClient.Transport = rt
	return c
}

func TestRequestSetsAuthHeadersAndQuery(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		got = r
		return jsonResponse(http.StatusOK, `[]`), nil
	})

	if _, err := c.Request(context.Background(), http.MethodGet, TableSettings, nil, "key=eq.category1Price"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got.URL.Path != "/rest/v1/settings" {
		t.Fatalf("path = %q", got.URL.Path)
	}
	if got.URL.RawQuery != "key=eq.category1Price" {
		t.Fatalf("query = %q", got.URL.RawQuery)
	}
	if got.Header.Get("apikey") != "service-key" {
		t.Fatalf("apikey header = %q", got.Header.Get("apikey"))
	}
	if got.Header.Get("Authorization") != "Bearer service-key" {
		t.Fatalf("authorization header = %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("Prefer") != "return=representation" {
		t.Fatalf("prefer header = %q", got.Header.Get("Prefer"))
	}
}

func TestRequestSurfacesAPIError(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, `{"message":"permission denied"}`), nil
	})

	_, err := c.Request(context.Background(), http.MethodGet, TableApplications, nil, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "supabase API error 403") {
		t.Fatalf("error = %v", err)
	}
}

func TestUpsertSendsMergeDuplicates(t *testing.T) {
	var got *http.Request
	var body []byte
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		got = r
		body, _ = io.ReadAll(r.Body)
		return jsonResponse(http.StatusCreated, `[{"key":"category1Price"}]`), nil
	})

	row := map[string]any{"key": "category1Price", "value": "$499"}
	if _, err := c.Upsert(context.Background(), TableSettings, []any{row}, "key"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got.Method != http.MethodPost {
		t.Fatalf("method = %q", got.Method)
	}
	if got.URL.Query().Get("on_conflict") != "key" {
		t.Fatalf("on_conflict = %q", got.URL.Query().Get("on_conflict"))
	}
	if !strings.Contains(got.Header.Get("Prefer"), "resolution=merge-duplicates") {
		t.Fatalf("prefer header = %q", got.Header.Get("Prefer"))
	}
	var sent []map[string]any
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("unmarshal sent body: %v", err)
	}
	if len(sent) != 1 || sent[0]["key"] != "category1Price" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_KEY", "")
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
