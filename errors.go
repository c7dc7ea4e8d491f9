package authcore

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrUserNotFound is returned when no account matches the email or id.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when a password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRoleNotFound is returned when a role name is not seeded.
	ErrRoleNotFound = errors.New("role not found")
	// ErrPermissionNotFound is wrapped by *PermissionNotFoundError.
	ErrPermissionNotFound = errors.New("permission not found")
	// ErrMissingToken is returned when no refresh token was presented.
	ErrMissingToken = errors.New("refresh token cannot be null or blank")
	// ErrInvalidToken is wrapped by *InvalidTokenError.
	ErrInvalidToken = errors.New("invalid token")
	// ErrDuplicateRole is returned when the account already holds the role.
	ErrDuplicateRole = errors.New("user already has this role assigned")
	// ErrDuplicatePermission is wrapped by *DuplicatePermissionError.
	ErrDuplicatePermission = errors.New("some permissions are already assigned to this role")
	ErrAccountExists       = errors.New("user with this email already exists")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrLoginRateLimited    = errors.New("login rate limited")
	ErrRefreshRateLimited  = errors.New("refresh rate limited")
	// ErrEngineNotReady is returned by a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnauthenticated is returned by operations that need a bound identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the identity lacks a required authority.
	ErrForbidden = errors.New("forbidden")
)

// TokenReason says why a refresh token was rejected.
type TokenReason string

const (
	ReasonNotFound  TokenReason = "not_found"
	ReasonRevoked   TokenReason = "revoked"
	ReasonExpired   TokenReason = "expired"
	ReasonMalformed TokenReason = "malformed"
)

// InvalidTokenError carries the rejection reason. Callers at the boundary
// should surface ErrInvalidToken's message only; the reason is for logs and
// audit.
type InvalidTokenError struct {
	Reason TokenReason
}

func (e *InvalidTokenError) Error() string {
	return "invalid token: " + string(e.Reason)
}

func (e *InvalidTokenError) Unwrap() error { return ErrInvalidToken }

// PermissionNotFoundError names the first requested permission that does not
// exist.
type PermissionNotFoundError struct {
	Name string
}

func (e *PermissionNotFoundError) Error() string {
	return "permission not found: " + e.Name
}

func (e *PermissionNotFoundError) Unwrap() error { return ErrPermissionNotFound }

// DuplicatePermissionError lists the requested permissions the role already
// holds.
type DuplicatePermissionError struct {
	Names []string
}

func (e *DuplicatePermissionError) Error() string {
	return ErrDuplicatePermission.Error() + ": " + strings.Join(e.Names, ", ")
}

func (e *DuplicatePermissionError) Unwrap() error { return ErrDuplicatePermission }

// RateLimitError is returned when the login or refresh throttle is
// exhausted. It unwraps to ErrLoginRateLimited or ErrRefreshRateLimited.
// RetryAfter is the time left in the throttle window, or zero when the
// throttle backend could not be reached.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return e.Err.Error() }

func (e *RateLimitError) Unwrap() error { return e.Err }

// RetryAfterOf returns the throttle window remainder carried by err, or 0.
func RetryAfterOf(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}

// TokenReasonOf returns the reason carried by err, or "" when err is not an
// *InvalidTokenError.
func TokenReasonOf(err error) TokenReason {
	var ite *InvalidTokenError
	if errors.As(err, &ite) {
		return ite.Reason
	}
	return ""
}
