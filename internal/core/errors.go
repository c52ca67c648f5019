package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated = "unauthenticated"
	ErrCodeForbidden       = "forbidden"
	ErrCodeNotFound        = "not_found"
	ErrCodeValidation      = "validation_failed"
	ErrCodeNotInRoom       = "not_in_room"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeInternal        = "internal"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrNotInRoom       = errors.New("not in room")
	ErrBadRequest      = errors.New("bad request")
	ErrInternal        = errors.New("internal error")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel so callers can use errors.Is.
func (e *CoreError) Unwrap() error {
	return e.err
}

func coreError(code, msg string, sentinel error) *CoreError {
	return &CoreError{Code: code, Message: msg, err: sentinel}
}

func forbidden(format string, args ...any) *CoreError {
	return coreError(ErrCodeForbidden, fmt.Sprintf(format, args...), ErrForbidden)
}

func notFound(format string, args ...any) *CoreError {
	return coreError(ErrCodeNotFound, fmt.Sprintf(format, args...), ErrNotFound)
}

func invalid(format string, args ...any) *CoreError {
	return coreError(ErrCodeValidation, fmt.Sprintf(format, args...), ErrValidation)
}

// BadRequest reports malformed protocol input.
func BadRequest(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg, ErrBadRequest)
}

// AsCoreError returns err as a *CoreError. Errors that carry no domain code are
// reported as internal so storage details never reach the client.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return coreError(ErrCodeInternal, "internal error", ErrInternal)
}
