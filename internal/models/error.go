package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Abuse gate errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrIPNotAllowed      = errors.New("ip address not allowed")

	// ErrInvalidCredentials is returned for every login failure, whether the
	// account exists or not, to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidCode is the uniform outcome for a failed TOTP, recovery code,
	// or bearer token check. The internal cause is never exposed.
	ErrInvalidCode = errors.New("invalid code")

	ErrMFANotEnrolled     = errors.New("two-factor authentication not enrolled")
	ErrMFAAlreadyEnrolled = errors.New("two-factor authentication already enrolled")
)
