// Package apperr defines the error taxonomy shared by services and transports.
package apperr

import (
	"errors"
	"fmt"

	"threads/internal/constants"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a classified failure with a message safe to show to the caller.
// Err holds the underlying cause and is never serialized.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: constants.ErrCodeInvalidRequest, Message: message}
}

func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: constants.ErrCodeForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: constants.ErrCodeNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Code: constants.ErrCodeConflict, Message: message}
}

func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: constants.ErrCodeUpstream, Message: message, Err: err}
}

// Internal wraps an unexpected failure; the message shown to callers stays generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: constants.ErrCodeInternal, Message: "An internal error occurred", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

var (
	ErrInvalidCredentials = Unauthorized(constants.ErrCodeInvalidCredentials, "Invalid credentials")
	ErrTokenExpired       = Unauthorized(constants.ErrCodeAuthExpired, "Token has expired")
	ErrTokenInvalid       = Unauthorized(constants.ErrCodeAuthFailed, "Invalid token")
)
