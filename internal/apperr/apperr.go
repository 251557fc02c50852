// Package apperr is the error taxonomy shared by the auth flows and the HTTP
// layer. Expected failures (bad input, wrong password, rate limits) are
// returned as *Error values; anything else is treated as internal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidCredentials
	KindEmailNotVerified
	KindUnauthorized
	KindConflict
	KindTokenInvalid
	KindTokenExpired
	KindRateLimited
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindEmailNotVerified:
		return "email_not_verified"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindTokenInvalid:
		return "token_invalid"
	case KindTokenExpired:
		return "token_expired"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is an expected, user-facing failure.
type Error struct {
	Kind    Kind
	Message string
	Errors  []string
	// RetryAfter is the number of seconds a rate-limited caller should wait.
	RetryAfter int
	// Limit and ResetAt describe the quota of the policy that rejected the
	// request. Zero when unknown.
	Limit   int
	ResetAt time.Time
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindEmailNotVerified, KindUnauthorized, KindTokenInvalid:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTokenExpired:
		return http.StatusGone
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// New builds an error of any kind around an underlying cause.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string, errs ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Errors: errs}
}

func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Message: "Invalid credentials"}
}

func EmailNotVerified() *Error {
	return &Error{Kind: KindEmailNotVerified, Message: "Please verify your email address"}
}

func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func TokenInvalid(message string, cause error) *Error {
	return &Error{Kind: KindTokenInvalid, Message: message, Err: cause}
}

func TokenExpired(message string) *Error {
	return &Error{Kind: KindTokenExpired, Message: message}
}

func RateLimited(message string, retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    message,
		Errors:     []string{fmt.Sprintf("Please wait %d seconds before trying again.", retryAfter)},
		RetryAfter: retryAfter,
	}
}

// WithQuota records the rejecting policy's limit and window reset on a
// rate-limited error.
func (e *Error) WithQuota(limit int, resetAt time.Time) *Error {
	e.Limit, e.ResetAt = limit, resetAt
	return e
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: err}
}

// As normalizes err into an *Error. Errors that are not already *Error are
// wrapped as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
