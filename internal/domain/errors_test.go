package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrors_UnwrapToSentinels(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", NewValidationError("page", "must be >= 1"), ErrValidation},
		{"transient", NewTransient("openai", cause), ErrTransientService},
		{"transient cause", NewTransient("openai", cause), cause},
		{"schema", &SchemaViolation{Issues: []string{"missing key"}}, ErrSchemaViolation},
		{"injection", &InjectionGuardViolation{Key: "status; DROP TABLE"}, ErrInjectionGuard},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !errors.Is(wrapped, tc.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tc.sentinel)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(NewTransient("anthropic", errors.New("503"))) {
		t.Error("transient service error should be transient")
	}
	if !IsTransient(fmt.Errorf("embed: %w", ErrRateLimited)) {
		t.Error("rate limit should be transient")
	}
	if IsTransient(&SchemaViolation{}) {
		t.Error("schema violation should not be transient")
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("page_size", "must be <= %d, got %d", 100, 500)
	want := "validation failed: page_size: must be <= 100, got 500"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
