package webhook

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by service operations when an id does not exist
var ErrNotFound = errors.New("not found")

// ValidationError reports a structural problem with caller input
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a validation error for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Category groups errors for API responses
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryInternal   Category = "internal"
)

// Classify maps err to a category and a stable code
func Classify(err error) (Category, string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return CategoryValidation, "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound, "NOT_FOUND"
	default:
		return CategoryInternal, "INTERNAL_ERROR"
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
