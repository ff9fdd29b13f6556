package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetServiceErrorUnwrapsWrappedError(t *testing.T) {
	base := RemoteStore("list settings", stderrors.New("connection refused"))
	wrapped := fmt.Errorf("refresh snapshot: %w", base)

	got := GetServiceError(wrapped)
	if got == nil {
		t.Fatal("expected service error")
	}
	if got.Code != CodeRemoteStore {
		t.Fatalf("code = %s, want %s", got.Code, CodeRemoteStore)
	}
	if got.HTTPStatus != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", got.HTTPStatus, http.StatusBadGateway)
	}
}

func TestGetServiceErrorNil(t *testing.T) {
	if got := GetServiceError(stderrors.New("plain")); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestValidationErrorCarriesNoCause(t *testing.T) {
	err := Validation("name is required")
	if err.Err != nil {
		t.Fatal("validation errors must not wrap internal causes")
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
	if !Is(err, CodeValidation) {
		t.Fatal("Is(CodeValidation) = false")
	}
}

func TestWithDetails(t *testing.T) {
	err := RateLimitExceeded(10, "1s")
	if err.Details["limit"] != 10 {
		t.Fatalf("limit detail = %v, want 10", err.Details["limit"])
	}
	if err.Details["window"] != "1s" {
		t.Fatalf("window detail = %v, want 1s", err.Details["window"])
	}
}

func TestRemoteStoreMessageHidesCause(t *testing.T) {
	cause := stderrors.New("pq: permission denied for table settings")
	err := RemoteStore("update setting", cause)
	if err.Message != "update setting failed" {
		t.Fatalf("message = %q leaks internals", err.Message)
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("cause should remain reachable via errors.Is")
	}
}
