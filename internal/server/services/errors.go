package services

import (
	"errors"
	"fmt"
)

// Kind is the stable machine code of a service failure.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindConflict           Kind = "Conflict"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindAccountLocked      Kind = "AccountLocked"
	KindAccountPending     Kind = "AccountPending"
	KindAccountDisabled    Kind = "AccountDisabled"
	KindAccountInactive    Kind = "AccountInactive"
	KindEmailNotVerified   Kind = "EmailNotVerified"
	KindInvalidToken       Kind = "InvalidToken"
	KindUnauthorized       Kind = "Unauthorized"
	KindForbidden          Kind = "Forbidden"
	KindNotFound           Kind = "NotFound"
	KindTooManyRequests    Kind = "TooManyRequests"
	KindServerError        Kind = "ServerError"
)

// Error is returned by every service operation that fails. Message is safe
// to show to clients; Err carries the internal cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func internalError(err error) *Error {
	return &Error{Kind: KindServerError, Message: "internal server error", Err: err}
}

// KindOf returns the kind of err, or KindServerError for errors that did not
// originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServerError
}

// Predefined failures. Unknown email and wrong password share one value.
var (
	ErrEmailTaken         = newError(KindConflict, "user with this email already exists")
	ErrUsernameTaken      = newError(KindConflict, "user with this username already exists")
	ErrInvalidCredentials = newError(KindInvalidCredentials, "invalid email or password")
	ErrAccountLocked      = newError(KindAccountLocked, "account is locked, please contact support")
	ErrAccountPending     = newError(KindAccountPending, "account is pending activation")
	ErrAccountDisabled    = newError(KindAccountDisabled, "account is disabled, please contact support")
	ErrAccountInactive    = newError(KindAccountInactive, "account is inactive")
	ErrEmailNotVerified   = newError(KindEmailNotVerified, "please verify your email before logging in")
	ErrInvalidVerifyToken = newError(KindInvalidToken, "invalid or expired verification token")
	ErrInvalidRefresh     = newError(KindInvalidToken, "invalid or expired refresh token")
)
