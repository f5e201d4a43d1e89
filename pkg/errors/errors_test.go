package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeDependency, cause, "loading snapshot")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to satisfy errors.Is")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("expected dependency code, got %s", err.Code())
	}
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap(CodeValidation, nil, "bad round number")
	if err.Unwrap() != nil {
		t.Fatal("expected nil cause")
	}
	if err.Error() != "VALIDATION_ERROR: bad round number" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	typed := New(CodeNotFound, "negotiation missing")
	wrapped := fmt.Errorf("fetch state: %w", typed)

	got := As(wrapped)
	if got == nil {
		t.Fatal("expected typed error from chain")
	}
	if got.Code() != CodeNotFound {
		t.Fatalf("expected not found code, got %s", got.Code())
	}
}

func TestAsReturnsNilForPlainError(t *testing.T) {
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("expected nil for untyped error")
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor(Code("BOGUS"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal metadata, got status %d", meta.HTTPStatus)
	}
}

func TestWithDetails(t *testing.T) {
	err := New(CodeValidation, "validation failed").WithDetails(map[string]string{"roundNumber": "required"})
	details, ok := err.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected map details, got %T", err.Details())
	}
	if details["roundNumber"] != "required" {
		t.Fatalf("unexpected details %v", details)
	}
}
