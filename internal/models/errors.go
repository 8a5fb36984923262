package models

import (
	"errors"
	"fmt"
)

// Error kinds shared by every service. Callers branch on them with errors.Is.
var (
	// ErrNotFound indicates that a referenced user, notebook, note or enhancement does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidStateTransition indicates a status change the current status does not permit.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConstraintViolation indicates a unique constraint conflict that survived bounded retries.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrStorageUnavailable indicates a connection or transaction failure; nothing was committed.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var errorKinds = []error{
	ErrNotFound,
	ErrInvalidArgument,
	ErrInvalidStateTransition,
	ErrConstraintViolation,
	ErrStorageUnavailable,
}

// ServiceError carries a dotted operation code together with its error kind and cause.
type ServiceError struct {
	code string
	kind error
	err  error
}

// NewServiceError builds a ServiceError coded as "<operation>.<reason>".
func NewServiceError(operation, reason string, kind, cause error) error {
	return &ServiceError{
		code: fmt.Sprintf("%s.%s", operation, reason),
		kind: kind,
		err:  cause,
	}
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		if e.kind == nil {
			return e.code
		}
		return fmt.Sprintf("%s: %v", e.code, e.kind)
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ServiceError) Unwrap() []error {
	wrapped := make([]error, 0, 2)
	if e.kind != nil {
		wrapped = append(wrapped, e.kind)
	}
	if e.err != nil {
		wrapped = append(wrapped, e.err)
	}
	return wrapped
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the error kind.
func (e *ServiceError) Kind() error {
	return e.kind
}

// KindOf returns the first known error kind wrapped by err, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// CodeOf returns the service code carried by err, or an empty string.
func CodeOf(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}

// Retryable reports whether the caller may retry the failed operation as-is.
func Retryable(err error) bool {
	return errors.Is(err, ErrConstraintViolation) || errors.Is(err, ErrStorageUnavailable)
}
