package domain

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeIllegalTransition Code = "ILLEGAL_TRANSITION"
	CodeUnsupportedStatus Code = "UNSUPPORTED_STATUS"
	CodeInvalidFieldState Code = "INVALID_FIELD_STATE"
	CodeImmutableField    Code = "IMMUTABLE_FIELD"
	CodeNoExistingRecord  Code = "NO_EXISTING_RECORD"
)

// Error is returned for every rule a Resource or a registration refuses.
// Callers match on the code with errors.Is and the package sentinels.
type Error struct {
	Code    Code   // Machine-readable error code
	Field   string // Offending field, tag or pair key (may be empty)
	Message string // Human readable reason
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrIllegalTransition = &Error{Code: CodeIllegalTransition, Message: "illegal status transition"}
	ErrUnsupportedStatus = &Error{Code: CodeUnsupportedStatus, Message: "unsupported status"}
	ErrInvalidFieldState = &Error{Code: CodeInvalidFieldState, Message: "field cannot be set in current status"}
	ErrImmutableField    = &Error{Code: CodeImmutableField, Message: "field is immutable"}
	ErrNoExistingRecord  = &Error{Code: CodeNoExistingRecord, Message: "no existing record"}
)

// NewError builds an Error with a formatted message.
func NewError(code Code, field, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// AsError extracts the domain error from err, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
