package repositories

import (
	"errors"
	"fmt"
)

// StoreErrorCode classifies failures raised by non-Firestore stores.
type StoreErrorCode string

const (
	StoreErrorNotFound    StoreErrorCode = "not_found"
	StoreErrorConflict    StoreErrorCode = "conflict"
	StoreErrorUnavailable StoreErrorCode = "unavailable"
)

// StoreError implements RepositoryError for the in-memory and cache stores.
type StoreError struct {
	Op      string
	Code    StoreErrorCode
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Code == StoreErrorNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Code == StoreErrorConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Code == StoreErrorUnavailable }

func NewStoreError(op string, code StoreErrorCode, message string, err error) *StoreError {
	return &StoreError{Op: op, Code: code, Message: message, Err: err}
}

// IsNotFound reports whether err, or anything it wraps, is a not-found RepositoryError.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a conflict RepositoryError.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a transient RepositoryError.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
