package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. The HTTP layer maps these onto status codes; everything
// else wraps them with context via fmt.Errorf("...: %w", err).
var (
	// ErrNotAuthenticated indicates the request carries no valid session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound indicates a project that does not exist or is not owned
	// by the caller. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("project not found")
	// ErrValidation indicates a missing or malformed request field.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness violation (duplicate project name)
	// or a refused status transition.
	ErrConflict = errors.New("conflict")
	// ErrExtraction indicates a file or URL could not be fetched or decoded.
	ErrExtraction = errors.New("extraction failed")
	// ErrProvider indicates an embedding or OCR provider failure, including
	// a malformed provider response.
	ErrProvider = errors.New("provider failed")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
