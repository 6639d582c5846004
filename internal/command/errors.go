package command

import (
	"errors"
	"fmt"
)

// ResolveError is returned when a request cannot be resolved.
//
// Resolve errors are protocol errors made by the shell or by middleware:
// they never corrupt the pending-request bookkeeping, and a failed resolution
// never makes a different request unresolvable.
type ResolveError struct {
	// Code identifies the error category.
	Code ResolveErrorCode

	// Message is a human-readable description.
	Message string

	// RequestID identifies the request, when the caller addressed it by id.
	RequestID uint32

	// Operation names the operation of the request, when known.
	Operation string

	// Err is the underlying cause (e.g. a decode failure).
	Err error
}

// ResolveErrorCode categorizes resolve errors.
type ResolveErrorCode string

const (
	// ErrCodeNotFound indicates an unknown, stale or cancelled request.
	ErrCodeNotFound ResolveErrorCode = "NOT_FOUND"

	// ErrCodeOutputMismatch indicates an output of the wrong shape for the request.
	ErrCodeOutputMismatch ResolveErrorCode = "OUTPUT_MISMATCH"

	// ErrCodeAlreadyResolved indicates a second resolution of a Once request.
	ErrCodeAlreadyResolved ResolveErrorCode = "ALREADY_RESOLVED"

	// ErrCodeResolveNever indicates an attempt to resolve a notification.
	ErrCodeResolveNever ResolveErrorCode = "RESOLVE_NEVER"
)

// Error implements the error interface.
func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RequestID != 0 {
		msg = fmt.Sprintf("%s (request=%d)", msg, e.RequestID)
	}
	if e.Operation != "" {
		msg = fmt.Sprintf("%s (op=%s)", msg, e.Operation)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

// WithRequestID returns a copy of the error stamped with a request id.
func (e *ResolveError) WithRequestID(id uint32) *ResolveError {
	cp := *e
	cp.RequestID = id
	return &cp
}

// CodeOf returns the ResolveErrorCode of err, or "" if err is not a ResolveError.
func CodeOf(err error) ResolveErrorCode {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsNotFound returns true if the error is a NotFound resolve error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsOutputMismatch returns true if the error is an OutputMismatch resolve error.
func IsOutputMismatch(err error) bool {
	return CodeOf(err) == ErrCodeOutputMismatch
}

// IsAlreadyResolved returns true if the error is an AlreadyResolved resolve error.
func IsAlreadyResolved(err error) bool {
	return CodeOf(err) == ErrCodeAlreadyResolved
}

// IsResolveNever returns true if the error is a ResolveNever resolve error.
func IsResolveNever(err error) bool {
	return CodeOf(err) == ErrCodeResolveNever
}

// NewNotFoundError creates a ResolveError for an unknown or stale request.
func NewNotFoundError(message string) *ResolveError {
	return &ResolveError{Code: ErrCodeNotFound, Message: message}
}

// ErrSynchronousResolve is the panic message used when a request is resolved
// before the call that registered it has returned.
const ErrSynchronousResolve = "command: request resolved synchronously during registration"
