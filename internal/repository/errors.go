package repository

import "errors"

// Sentinel errors shared by the repositories. The service layer maps these
// to its own outcome taxonomy; anything else is a persistence failure.
var (
	ErrNotFound       = errors.New("record not found")
	ErrLoginExists    = errors.New("login already exists")
	ErrDuplicateToken = errors.New("refresh token already stored")
	ErrTokenRotated   = errors.New("refresh token already rotated")
)
