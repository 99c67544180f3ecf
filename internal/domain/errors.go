package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrForbidden          = errors.New("forbidden")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrNotActivated       = errors.New("not_activated")
	ErrActivationInvalid  = errors.New("activation_invalid")
	ErrResetTokenInvalid  = errors.New("reset_token_invalid")
	ErrResetTokenExpired  = errors.New("reset_token_expired")
	ErrSelfFollow         = errors.New("self_follow")
	ErrValidation         = errors.New("validation")
	ErrStorage            = errors.New("storage")
)

// ValidationError lists rejected input fields with a message each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// StorageError wraps a record store failure such as lost connectivity or
// an unexpected constraint violation. errors.Is(err, ErrStorage) holds for
// it; the driver error stays reachable through Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
