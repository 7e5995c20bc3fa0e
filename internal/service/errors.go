package service

import "errors"

// Outcome taxonomy for the auth flows. Handlers map these to HTTP statuses;
// any error not matching a sentinel is a persistence failure and is wrapped
// with context instead of being folded into an auth rejection.
var (
	// ErrMissingFields: required input absent; no store access attempted.
	ErrMissingFields = errors.New("missing required fields")
	// ErrInvalidCredentials: no (login, password) match. Identical for an
	// unknown login and a wrong password.
	ErrInvalidCredentials = errors.New("user not found or invalid credentials")
	// ErrUnauthenticated: access token missing, invalid or expired.
	ErrUnauthenticated = errors.New("access token invalid or expired")
	// ErrForbidden: refresh token cryptographically invalid.
	ErrForbidden = errors.New("refresh token invalid")
	// ErrSessionRevoked: a verifiable refresh token was absent from the
	// store; every session for the decoded user has been wiped. A security
	// event, not an ordinary rejection.
	ErrSessionRevoked = errors.New("refresh token unknown; all sessions revoked")
	// ErrRotationConflict: a concurrent refresh rotated this token first.
	ErrRotationConflict = errors.New("refresh token already rotated")
	// ErrLoginExists: account creation hit the unique login constraint.
	ErrLoginExists = errors.New("login already exists")
	// ErrUserNotFound: user-admin operation on a nonexistent id.
	ErrUserNotFound = errors.New("user not found")
)
