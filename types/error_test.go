package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "agent call failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithAgent("researcher")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_WrappedCodeLookup(t *testing.T) {
	t.Parallel()

	inner := Errorf(ErrNodeNotFound, "node not found: %s", "missing")
	wrapped := fmt.Errorf("execute: %w", inner)

	if !IsErrorCode(wrapped, ErrNodeNotFound) {
		t.Fatalf("expected wrapped error to carry %s", ErrNodeNotFound)
	}
	if IsErrorCode(errors.New("plain"), ErrNodeNotFound) {
		t.Fatalf("plain error must not carry a code")
	}
	if got := inner.Error(); got != "[NODE_NOT_FOUND] node not found: missing" {
		t.Fatalf("unexpected message %q", got)
	}
}
