package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the boundary layer
const (
	CodeAuth       = "auth_error"
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeSignature  = "invalid_signature"
	CodeDependency = "dependency_error"
	CodeConfig     = "config_error"
)

// Error carries a stable code, an HTTP status and a display-safe message.
// Dependency errors are the only category expected to trigger upstream
// redelivery; everything else resolves at the boundary.
type Error struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a service Error from an error chain
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// ErrUnauthorized means the caller has no verified identity
func ErrUnauthorized(message string) *Error {
	return &Error{Code: CodeAuth, Status: http.StatusUnauthorized, Message: message}
}

// ErrForbidden means the caller's identity is not allowed this operation
func ErrForbidden(message string) *Error {
	return &Error{Code: CodeAuth, Status: http.StatusForbidden, Message: message}
}

// ErrValidation means the input is malformed or violates a business rule
func ErrValidation(message string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: message}
}

// ErrNotFound means a referenced entity is absent; terminal, not retriable
func ErrNotFound(message string, err error) *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: message, Err: err}
}

// ErrConflict means the entity is already in a terminal state
func ErrConflict(message string) *Error {
	return &Error{Code: CodeConflict, Status: http.StatusBadRequest, Message: message}
}

// ErrDependency means an external call failed; reported as 500 so the
// upstream sender redelivers
func ErrDependency(message string, err error) *Error {
	return &Error{Code: CodeDependency, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// ErrConfig means a required secret or credential is missing
func ErrConfig(message string) *Error {
	return &Error{Code: CodeConfig, Status: http.StatusInternalServerError, Message: message}
}
