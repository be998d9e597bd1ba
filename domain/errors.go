package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// ErrorKind names the user-facing failure family an error belongs to.
type ErrorKind string

const (
	KindAuth    ErrorKind = "AuthError"
	KindFetch   ErrorKind = "FetchError"
	KindWrite   ErrorKind = "WriteError"
	KindStorage ErrorKind = "StorageError"
)

// Error represents a domain-level error.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Kind != "" {
		msg = fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAuthError classifies a failure of the auth collaborator.
func NewAuthError(message string, err error) *Error {
	return kinded(KindAuth, message, err)
}

// NewFetchError classifies a failed list load.
func NewFetchError(message string, err error) *Error {
	return kinded(KindFetch, message, err)
}

// NewWriteError classifies a rejected insert, update or delete.
func NewWriteError(message string, err error) *Error {
	return kinded(KindWrite, message, err)
}

// NewStorageError classifies a failed blob upload.
func NewStorageError(message string, err error) *Error {
	return kinded(KindStorage, message, err)
}

// kinded inherits the code of the wrapped error so transports keep mapping it.
func kinded(kind ErrorKind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Code:    CodeOf(err),
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrUserNotFound       = NewError(ErrCodeNotFound, "user not found")
	ErrUserExists         = NewError(ErrCodeConflict, "user already registered")
	ErrTaskNotFound       = NewError(ErrCodeNotFound, "task not found")
	ErrSessionNotFound    = NewError(ErrCodeNotFound, "session not found")
	ErrObjectNotFound     = NewError(ErrCodeNotFound, "object not found")
	ErrObjectExists       = NewError(ErrCodeConflict, "object already exists")
	ErrObjectTooLarge     = NewError(ErrCodeInvalid, "object exceeds size limit")
	ErrUnauthorized       = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidCredentials = NewError(ErrCodeUnauthorized, "invalid login credentials")
	ErrEmailNotConfirmed  = NewError(ErrCodeForbidden, "email not confirmed")
	ErrInvalidPayload     = NewError(ErrCodeInvalid, "invalid payload")
	ErrOperationInFlight  = NewError(ErrCodeConflict, "another operation is in progress for this task")
	ErrBoardNotMounted    = NewError(ErrCodeUnavailable, "task board is not mounted")
	ErrChannelUnavailable = NewError(ErrCodeUnavailable, "realtime channel unavailable")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var dErr *Error
		if !errors.As(err, &dErr) {
			return false
		}
		if dErr.Kind == kind {
			return true
		}
		err = dErr.Err
	}
	return false
}

// CodeOf returns the first code found in the chain, INTERNAL otherwise.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) && dErr.Code != "" {
		return dErr.Code
	}
	return ErrCodeInternal
}
