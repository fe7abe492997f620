package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a failure returned by the engine or its stores.
type ErrorCode string

const (
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrValidation         ErrorCode = "VALIDATION_ERROR"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrPreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	ErrConflict           ErrorCode = "CONFLICT"
)

// Error is the error type surfaced by every operation. Details carries the
// individual messages of a validation failure.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Details, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, &domain.Error{Code: domain.ErrNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NotFound(op, format string, args ...any) *Error {
	return &Error{Code: ErrNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Validation(op, message string, details ...string) *Error {
	return &Error{Code: ErrValidation, Op: op, Message: message, Details: details}
}

func Forbidden(op, format string, args ...any) *Error {
	return &Error{Code: ErrForbidden, Op: op, Message: fmt.Sprintf(format, args...)}
}

func PreconditionFailed(op, format string, args ...any) *Error {
	return &Error{Code: ErrPreconditionFailed, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a lost optimistic-lock race. cause may be nil.
func Conflict(op string, cause error) *Error {
	return &Error{Code: ErrConflict, Op: op, Message: "concurrent modification", Err: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func IsNotFound(err error) bool { return CodeOf(err) == ErrNotFound }

func IsConflict(err error) bool { return CodeOf(err) == ErrConflict }
