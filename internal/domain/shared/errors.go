package shared

import (
	"errors"
	"fmt"
)

// Error codes shared across bounded contexts
const (
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION_ERROR"
	CodeConflict   = "CONFLICT"
	CodeForbidden  = "FORBIDDEN"
	CodeStorage    = "STORAGE_ERROR"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code so sentinel comparisons survive wrapping
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a validation error with the given message
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewStorageError wraps an unexpected backing-store failure
func NewStorageError(op string, err error) *DomainError {
	return &DomainError{
		Code:    CodeStorage,
		Message: "storage failure during " + op,
		Err:     err,
	}
}

// ErrNotFound matches any not-found domain error through errors.Is
var ErrNotFound = NewDomainError(CodeNotFound, "Resource not found")

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsNotFound reports whether err is a not-found domain error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsStorage reports whether err wraps a storage failure
func IsStorage(err error) bool {
	return CodeOf(err) == CodeStorage
}
