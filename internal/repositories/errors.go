package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a storage failure.
type ErrorKind string

const (
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindConflict    ErrorKind = "conflict"
	ErrorKindUnavailable ErrorKind = "unavailable"
)

// StoreError is a RepositoryError raised by stores that do not wrap a driver error.
type StoreError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

var _ RepositoryError = (*StoreError)(nil)

// NewStoreError builds a StoreError of the given kind.
func NewStoreError(kind ErrorKind, format string, args ...any) *StoreError {
	return &StoreError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Kind == ErrorKindNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Kind == ErrorKindConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Kind == ErrorKindUnavailable }

var (
	// ErrDuplicateOrderNumber signals a uniqueness violation on the order number.
	ErrDuplicateOrderNumber = &StoreError{Kind: ErrorKindConflict, Message: "order number already assigned"}
	// ErrOrderExists signals that an order with the same ID was already stored.
	ErrOrderExists = &StoreError{Kind: ErrorKindConflict, Message: "order already exists"}
	// ErrOrderStatusChanged signals that the stored status no longer matches the one the update
	// was computed from.
	ErrOrderStatusChanged = &StoreError{Kind: ErrorKindConflict, Message: "order status changed concurrently"}
	// ErrDuplicateEmail signals that an account already uses the email address.
	ErrDuplicateEmail = &StoreError{Kind: ErrorKindConflict, Message: "email already registered"}
)

// IsNotFound reports whether err is a repository not-found error.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a repository conflict error.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a transient repository error.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
