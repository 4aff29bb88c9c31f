package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrInvalidCredentials deliberately covers both unknown-login and
	// wrong-password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSecondFactorRequired is a control signal, not a failure: the password
	// check passed and a login challenge is now pending. Callers must branch
	// on it and redirect to code entry instead of reporting a failed login.
	ErrSecondFactorRequired = errors.New("second factor required")

	// Two-factor errors
	ErrInvalidCode        = errors.New("invalid one-time code")
	ErrNoPendingChallenge = errors.New("no pending login challenge")
	ErrAlreadyConfirmed   = errors.New("two-factor already confirmed")
	ErrNotProvisioned     = errors.New("two-factor not provisioned")
)

// LockoutError is returned when the login throttle trips. RetryAfter tells
// the caller how long until the current window resets.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %d seconds", e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds up so a caller never retries too early.
func (e *LockoutError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// AsLockout extracts a LockoutError from an error chain.
func AsLockout(err error) (*LockoutError, bool) {
	var le *LockoutError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
