package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("entity_not_found")
	ErrValidation      = errors.New("validation_failed")
	ErrQueryNotIndexed = errors.New("query_not_indexed")
	ErrDuplicateStore  = errors.New("duplicate_store")
)

// Validation codes.
const (
	CodeRequired  = "required"
	CodeNegative  = "negative"
	CodeImmutable = "immutable"
	CodeInvalid   = "invalid"
	CodeNotFound  = "not_found"
	CodeNotVendor = "not_vendor"
	CodeRealmType = "wrong_realm_type"
	CodeTooSmall  = "too_small"
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Code)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, code string) error {
	return &ValidationError{Field: field, Code: code}
}
