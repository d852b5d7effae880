// Package errors defines the error taxonomy of the provenance layer.
//
// Four kinds are client faults and are never retried internally: validation,
// permission, not-found and invalid-parameters. Infrastructure faults
// (storage or ledger connectivity) wrap ErrUnavailable so a caller or
// supervisor can retry the whole operation.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below wrap exactly one of these so callers
// can classify with errors.Is without knowing the concrete type.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPermission        = errors.New("permission denied")
	ErrNotFound          = errors.New("not found")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrUnavailable       = errors.New("service unavailable")
)

// ValidationError reports malformed or structurally invalid input.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// RequiredError creates a ValidationError for a missing required field.
func RequiredError(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PermissionError reports an authorization failure. It deliberately carries
// no indication of whether the actor is unknown or merely lacks the
// permission, to prevent account enumeration.
type PermissionError struct {
	Permission string
}

// NewPermissionError creates a PermissionError for the named permission.
func NewPermissionError(permission string) *PermissionError {
	return &PermissionError{Permission: permission}
}

func (e *PermissionError) Error() string {
	if e.Permission == "" {
		return "permission denied"
	}
	return fmt.Sprintf("permission denied: %s required", e.Permission)
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

// NotFoundError reports an absent resource.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFoundError creates a NotFoundError for a resource and identifier.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidParametersError reports a semantically invalid cross-reference,
// such as an event pointing at a nonexistent asset.
type InvalidParametersError struct {
	Reason string
}

// NewInvalidParametersError creates an InvalidParametersError.
func NewInvalidParametersError(reason string) *InvalidParametersError {
	return &InvalidParametersError{Reason: reason}
}

func (e *InvalidParametersError) Error() string { return e.Reason }

func (e *InvalidParametersError) Unwrap() error { return ErrInvalidParameters }

// Unavailable wraps an infrastructure fault so it surfaces as a retryable
// unavailable condition distinct from the client-fault taxonomy.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool { return errors.Is(err, ErrValidation) }

// IsPermissionError reports whether err is an authorization failure.
func IsPermissionError(err error) bool { return errors.Is(err, ErrPermission) }

// IsNotFound reports whether err is a missing-resource failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidParameters reports whether err is an invalid cross-reference.
func IsInvalidParameters(err error) bool { return errors.Is(err, ErrInvalidParameters) }

// IsUnavailable reports whether err is a retryable infrastructure fault.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
