package gateway

import (
	"errors"
	"fmt"
)

// Error codes tagged onto gateway failures. Callers branch on these, never
// on response text.
const (
	CodeConflict       = "conflict"
	CodeNotFound       = "not_found"
	CodeUnauthorized   = "unauthorized"
	CodeInvalidRequest = "invalid_request"
	CodeTransient      = "transient"
	CodeInternal       = "internal_error"
)

// Error is the tagged failure every gateway operation returns. Raw transport
// and decode errors are wrapped, never leaked.
type Error struct {
	Code    string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a tagged gateway error.
func NewError(code, op, message string, err error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

func codeOf(err error) string {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return ""
}

// IsConflict reports whether err marks an answer (or similar resource)
// already recorded server-side.
func IsConflict(err error) bool { return codeOf(err) == CodeConflict }

// IsNotFound reports whether the target session or resource no longer exists.
func IsNotFound(err error) bool { return codeOf(err) == CodeNotFound }

// IsUnauthorized reports an authentication failure, including a locally
// detected expired token.
func IsUnauthorized(err error) bool { return codeOf(err) == CodeUnauthorized }

// IsTransient reports a failure that is safe to retry by user action.
func IsTransient(err error) bool { return codeOf(err) == CodeTransient }
