package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAsUnwrapsWrappedError(t *testing.T) {
	cause := errors.New("socket closed")
	wrapped := fmt.Errorf("calling affirm: %w", Wrap(CodeDependency, cause, "exchange token"))

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeDependency {
		t.Fatalf("expected %s, got %s", CodeDependency, typed.Code())
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected cause to survive wrapping")
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NOT_A_CODE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal metadata, got status %d", meta.HTTPStatus)
	}
}

func TestChargeLifecycleCodesHaveMetadata(t *testing.T) {
	codes := []Code{
		CodeAuthorizationFailed,
		CodeUnexpectedResponse,
		CodeOrderMismatch,
		CodeAmountMismatch,
		CodeAlreadyPaid,
		CodeCaptureFailed,
		CodeVoidFailed,
		CodeRefundFailed,
	}
	for _, code := range codes {
		meta := MetadataFor(code)
		if meta.PublicMessage == "" {
			t.Fatalf("code %s has no public message", code)
		}
		if meta.HTTPStatus < 400 {
			t.Fatalf("code %s has non-error status %d", code, meta.HTTPStatus)
		}
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeCaptureFailed, errors.New("http 502"), "capture charge")
	dump := Dump(err)
	if dump.Code != CodeCaptureFailed {
		t.Fatalf("expected code %s, got %s", CodeCaptureFailed, dump.Code)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected chain with cause, got %v", dump.Chain)
	}
}
