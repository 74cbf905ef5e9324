package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithRetryable(true).
		WithProvider("openai")

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

	wrapped := fmt.Errorf("turn 2: %w", NewError(ErrEscalated, "needs operator"))
	if GetErrorCode(wrapped) != ErrEscalated {
		t.Fatalf("expected wrapped code %s, got %s", ErrEscalated, GetErrorCode(wrapped))
	}
	if IsRetryable(wrapped) {
		t.Fatalf("escalation must not be retryable")
	}
}
