package model

import (
	"encoding/json"
	"time"
)

// User mirrors the `users` table. The password hash never leaves the
// repository and service layers; handlers expose a sanitized view through
// service.PublicUser.
//
// Fields:
//  ID           – opaque uuid primary key, immutable once created.
//  Login        – unique, case-sensitive login string.
//  PasswordHash – bcrypt digest of the password.
//  Metadata     – opaque JSON blob; the auth flows carry it but never read it.
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           string          // users.id
	Login        string          // users.login
	PasswordHash string          // users.password_hash
	Metadata     json.RawMessage // users.metadata (nullable)
	CreatedAt    time.Time       // users.created_at
}

// RefreshTokenRecord models a row in `refresh_tokens`. The signed refresh
// token string is stored by value and acts as its own key: a refresh token
// is only usable while the exact string is present in this table.
type RefreshTokenRecord struct {
	Token     string    // refresh_tokens.token
	UserID    string    // refresh_tokens.user_id
	CreatedAt time.Time // refresh_tokens.created_at
}
