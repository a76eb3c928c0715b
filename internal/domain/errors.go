package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing trial record.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals malformed input to the canonicalizer or the query path.
	ErrValidation = errors.New("validation failed")
	// ErrTransientService signals a network or external-capability failure.
	ErrTransientService = errors.New("transient service error")
	// ErrSchemaViolation signals extraction output that failed structural validation.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrInjectionGuard signals a dynamic predicate on an unrecognized filter key.
	ErrInjectionGuard = errors.New("unrecognized filter key")
	// ErrTimeout signals a query that exceeded its deadline.
	ErrTimeout = errors.New("query timed out")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrExtractionProviderError signals an extraction (LLM) provider failure.
	ErrExtractionProviderError = errors.New("extraction provider error")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for a field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransientServiceError marks a failure of an external capability that may succeed on retry.
type TransientServiceError struct {
	Service string
	Err     error
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransientService.Error(), e.Service, e.Err)
}

// Unwrap exposes both the sentinel and the provider error.
func (e *TransientServiceError) Unwrap() []error { return []error{ErrTransientService, e.Err} }

// NewTransient wraps err as a transient failure of service.
func NewTransient(service string, err error) error {
	return &TransientServiceError{Service: service, Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientService) || errors.Is(err, ErrRateLimited)
}

// SchemaViolation lists the structural problems found in an extraction response.
type SchemaViolation struct {
	Issues []string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("%s: %s", ErrSchemaViolation.Error(), strings.Join(e.Issues, "; "))
}

func (e *SchemaViolation) Unwrap() error { return ErrSchemaViolation }

// InjectionGuardViolation rejects a predicate built on a key outside the typed filter set.
type InjectionGuardViolation struct {
	Key string
}

func (e *InjectionGuardViolation) Error() string {
	return fmt.Sprintf("%s: %q", ErrInjectionGuard.Error(), e.Key)
}

func (e *InjectionGuardViolation) Unwrap() error { return ErrInjectionGuard }
