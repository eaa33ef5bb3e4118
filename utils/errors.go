package utils

import (
	"errors"
	"net/http"
	"time"
)

type ErrorKind int

const (
	KIND_VALIDATION ErrorKind = iota + 1
	KIND_AUTHENTICATION
	KIND_AUTHORIZATION
	KIND_CONFLICT
	KIND_NOT_FOUND
	KIND_RATE_LIMIT
	KIND_INTERNAL
)

func (k ErrorKind) String() string {
	switch k {
	case KIND_VALIDATION:
		return "ValidationError"
	case KIND_AUTHENTICATION:
		return "AuthenticationError"
	case KIND_AUTHORIZATION:
		return "AuthorizationError"
	case KIND_CONFLICT:
		return "ConflictError"
	case KIND_NOT_FOUND:
		return "NotFoundError"
	case KIND_RATE_LIMIT:
		return "RateLimitError"
	default:
		return "InternalError"
	}
}

// Error is a failure that is safe to show to the caller. Message never
// contains internal details; the wrapped cause is only ever logged.
type Error struct {
	Kind       ErrorKind
	Status     int
	Code       string
	Message    string
	Violations []string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Code + ": " + e.cause.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on Code so that copies carrying violations or a cause still
// compare equal to the sentinel they were derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithViolations returns a copy of e carrying field or policy messages.
func (e *Error) WithViolations(violations []string) *Error {
	c := *e
	c.Violations = violations
	return &c
}

// WithMessage returns a copy of e with a different caller-facing message.
func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

func newError(kind ErrorKind, status int, code, message string) *Error {
	return &Error{Kind: kind, Status: status, Code: code, Message: message}
}

var (
	ErrValidation         = newError(KIND_VALIDATION, http.StatusBadRequest, "VALIDATION", INVALID_REQUEST_ERROR)
	ErrWeakPassword       = newError(KIND_VALIDATION, http.StatusBadRequest, "WEAK_PASSWORD", WEAK_PASSWORD_ERROR)
	ErrReusedPassword     = newError(KIND_VALIDATION, http.StatusBadRequest, "REUSED_PASSWORD", REUSED_PASSWORD_ERROR)
	ErrInvalidCredentials = newError(KIND_AUTHENTICATION, http.StatusBadRequest, "INVALID_CREDENTIALS", GENERIC_LOGIN_ERROR)
	ErrWrongPassword      = newError(KIND_AUTHENTICATION, http.StatusBadRequest, "WRONG_PASSWORD", WRONG_CURRENT_PASSWORD_ERROR)
	ErrAccountLocked      = newError(KIND_AUTHENTICATION, http.StatusLocked, "ACCOUNT_LOCKED", ACCOUNT_LOCKED_ERROR)
	ErrInvalidMfaCode     = newError(KIND_AUTHENTICATION, http.StatusBadRequest, "INVALID_MFA_CODE", INVALID_MFA_CODE_ERROR)
	ErrInvalidMfaRequest  = newError(KIND_VALIDATION, http.StatusBadRequest, "INVALID_MFA_REQUEST", INVALID_MFA_REQUEST_ERROR)
	ErrMfaAlreadyEnabled  = newError(KIND_CONFLICT, http.StatusBadRequest, "MFA_ALREADY_ENABLED", MFA_ALREADY_ENABLED_ERROR)
	ErrMfaNotPending      = newError(KIND_VALIDATION, http.StatusBadRequest, "MFA_NOT_PENDING", MFA_NOT_PENDING_ERROR)
	ErrMissingToken       = newError(KIND_AUTHENTICATION, http.StatusUnauthorized, "MISSING_TOKEN", MISSING_TOKEN_ERROR)
	ErrInvalidToken       = newError(KIND_AUTHENTICATION, http.StatusUnauthorized, "INVALID_TOKEN", JWT_TOKEN_PARSING_ERROR)
	ErrTokenExpired       = newError(KIND_AUTHENTICATION, http.StatusUnauthorized, "TOKEN_EXPIRED", JWT_TOKEN_EXPIRED_ERROR)
	ErrForbidden          = newError(KIND_AUTHORIZATION, http.StatusForbidden, "FORBIDDEN", "You are not allowed to do that")
	ErrDuplicateEmail     = newError(KIND_CONFLICT, http.StatusBadRequest, "DUPLICATE_EMAIL", EMAIL_TAKEN_SIGNUP_ERROR)
	ErrBidTooLow          = newError(KIND_CONFLICT, http.StatusBadRequest, "BID_TOO_LOW", BID_TOO_LOW_ERROR)
	ErrAuctionEnded       = newError(KIND_CONFLICT, http.StatusBadRequest, "AUCTION_ENDED", AUCTION_ENDED_ERROR)
	ErrInsufficientFunds  = newError(KIND_CONFLICT, http.StatusBadRequest, "INSUFFICIENT_FUNDS", INSUFFICIENT_FUNDS_ERROR)
	ErrNotFound           = newError(KIND_NOT_FOUND, http.StatusNotFound, "NOT_FOUND", NOT_FOUND_ERROR)
	ErrRateLimited        = newError(KIND_RATE_LIMIT, http.StatusTooManyRequests, "RATE_LIMITED", GENERIC_RATE_LIMIT_ERROR)
	ErrInternal           = newError(KIND_INTERNAL, http.StatusInternalServerError, "INTERNAL", SERVER_DOWN)
)

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(err error) *Error {
	c := *ErrInternal
	c.cause = err
	return &c
}

// AsError converts any error into an *Error, treating unknown errors as
// internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
