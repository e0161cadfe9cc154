package service

import (
	"errors"

	"github.com/prperemyshlev/storefront-auth/internal/ratelimit"
)

// Kind classifies a service failure. Handlers map it to an HTTP status.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal"
)

// Generic messages returned to callers
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgInvalidToken       = "Invalid or expired token"
	MsgAccessDenied       = "Access denied"
	MsgInternal           = "Internal server error"
)

// Error is a classified service failure. Message is safe to show to the
// caller; Err holds the detail that is only logged.
type Error struct {
	Kind             Kind
	Message          string
	EmailNotVerified bool
	RateLimit        *ratelimit.Result
	Admin            *AdminDecision
	Err              error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a *Error from err. Unclassified errors become Internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}

func invalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func notFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func rateLimited(res ratelimit.Result) *Error {
	return &Error{Kind: KindRateLimited, Message: res.RetryMessage(), RateLimit: &res}
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}
