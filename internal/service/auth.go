// Package service implements the token lifecycle state machine: login,
// access-token verification, refresh with rotation, logout and the
// account-admin operations that feed it.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/auth-token-service/internal/config"
	"github.com/iliyamo/auth-token-service/internal/model"
	"github.com/iliyamo/auth-token-service/internal/queue"
	"github.com/iliyamo/auth-token-service/internal/repository"
	"github.com/iliyamo/auth-token-service/internal/utils"
)

// UserStore is the user-directory contract the service depends on.
type UserStore interface {
	Create(ctx context.Context, login, passwordHash string, metadata json.RawMessage) (model.User, error)
	GetByLogin(ctx context.Context, login string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.User, error)
}

// RefreshTokenStore is the persistence contract for refresh tokens. Rotate
// must be atomic: delete-if-present then insert, failing with
// repository.ErrTokenRotated when the old token is already gone.
type RefreshTokenStore interface {
	Store(ctx context.Context, token, userID string) error
	Find(ctx context.Context, token string) (model.RefreshTokenRecord, error)
	Delete(ctx context.Context, token string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	Rotate(ctx context.Context, oldToken, newToken, userID string) error
}

// EventPublisher pushes security events to the broker. Publishing is
// best-effort; no auth flow fails because the broker is down.
type EventPublisher interface {
	PublishSecurityWipe(ctx context.Context, ev queue.SecurityWipeEvent) error
}

// PublicUser is the sanitized user view returned by the auth flows. It
// carries everything a client may see; the credential hash stays inside.
type PublicUser struct {
	ID       string          `json:"id"`
	Login    string          `json:"login"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// AuthResult is returned by Login and Refresh. RefreshToken is empty on the
// access-only refresh path; Rotated reports whether the presented refresh
// token was replaced.
type AuthResult struct {
	User         PublicUser
	AccessToken  string
	RefreshToken string
	Rotated      bool
}

// AuthService orchestrates the stores and the signer. It holds no mutable
// state of its own, so every method is safe for concurrent use.
type AuthService struct {
	cfg    config.Config
	users  UserStore
	tokens RefreshTokenStore
	events EventPublisher
}

func NewAuthService(cfg config.Config, users UserStore, tokens RefreshTokenStore, events EventPublisher) *AuthService {
	return &AuthService{cfg: cfg, users: users, tokens: tokens, events: events}
}

// Login verifies credentials and issues a fresh token pair. presentedRefresh
// is the refresh token the caller already holds, if any (re-login while a
// session is still open); when it is stored and owned by this user it is
// retired best-effort. The new refresh record must be durable before the
// client ever sees the tokens, since the refresh flow keys on store presence.
func (s *AuthService) Login(ctx context.Context, login, password, presentedRefresh string) (*AuthResult, error) {
	if login == "" || password == "" {
		return nil, ErrMissingFields
	}

	u, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		// Same outcome as an unknown login: no hint which half failed.
		return nil, ErrInvalidCredentials
	}

	if presentedRefresh != "" {
		if rec, err := s.tokens.Find(ctx, presentedRefresh); err == nil && rec.UserID == u.ID {
			if err := s.tokens.Delete(ctx, presentedRefresh); err != nil {
				log.Printf("auth: retire old refresh token: %v", err)
			}
		}
	}

	access, refresh, err := s.mintPair(u)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Store(ctx, refresh, u.ID); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResult{User: publicUser(u), AccessToken: access, RefreshToken: refresh, Rotated: true}, nil
}

// Authenticate verifies an access token. Expired and invalid both collapse
// to ErrUnauthenticated: access tokens are never recovered, the caller must
// go through Refresh. No store interaction.
func (s *AuthService) Authenticate(accessToken string) (*utils.TokenClaims, error) {
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := utils.VerifyToken(accessToken, s.cfg.AccessSecret)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// Refresh drives the refresh-token state machine:
//
//	invalid signature           -> ErrForbidden, no store mutation
//	expired  + absent in store  -> session wipe (ErrSessionRevoked)
//	expired  + present          -> rotation: new pair, old record replaced
//	valid    + absent           -> session wipe (ErrSessionRevoked)
//	valid    + present          -> new access token only, no rotation
//
// The valid+present path intentionally does not rotate: rotation happens
// only when expiry forces it. Losing a rotation race surfaces as
// ErrRotationConflict, never as a second valid pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrMissingFields
	}

	claims, verr := utils.VerifyToken(refreshToken, s.cfg.RefreshSecret)
	if verr != nil && !errors.Is(verr, utils.ErrTokenExpired) {
		return nil, ErrForbidden
	}

	_, ferr := s.tokens.Find(ctx, refreshToken)
	present := ferr == nil
	if ferr != nil && !errors.Is(ferr, repository.ErrNotFound) {
		return nil, fmt.Errorf("look up refresh token: %w", ferr)
	}

	if errors.Is(verr, utils.ErrTokenExpired) {
		if !present {
			return nil, s.wipe(ctx, refreshToken, "expired_unknown")
		}
		return s.rotate(ctx, refreshToken, claims.UserID)
	}

	if !present {
		return nil, s.wipe(ctx, refreshToken, "valid_unknown")
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrForbidden // orphaned token, its user is gone
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	access, err := utils.IssueToken(u.ID, u.Login, u.Metadata, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	return &AuthResult{User: publicUser(u), AccessToken: access}, nil
}

// Logout deletes the presented refresh token's record. A missing store
// record is not an error; only a missing token in the request is rejected.
// The transport clears both cookies regardless of the store outcome.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrMissingFields
	}
	if err := s.tokens.Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// CreateUser registers an account. The password is hashed with a per-user
// salt; the plaintext is never stored or logged.
func (s *AuthService) CreateUser(ctx context.Context, login, password string, metadata json.RawMessage) (*PublicUser, error) {
	if login == "" || password == "" {
		return nil, ErrMissingFields
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, login, hash, metadata)
	if err != nil {
		if errors.Is(err, repository.ErrLoginExists) {
			return nil, ErrLoginExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	pu := publicUser(u)
	return &pu, nil
}

// DeleteUser removes the account and every refresh token referencing it, so
// no verifiable refresh token outlives its user.
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingFields
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	removed, err := s.tokens.DeleteAllForUser(ctx, id)
	if err != nil {
		return fmt.Errorf("delete refresh tokens: %w", err)
	}
	s.publishWipe(ctx, queue.SecurityWipeEvent{
		UserID:        id,
		Login:         u.Login,
		Reason:        "user_deleted",
		TokensRemoved: removed,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// ListUsers returns the sanitized view of every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, publicUser(u))
	}
	return out, nil
}

// wipe handles a verifiable refresh token that is missing from the store:
// reuse after rotation, out-of-band deletion, or a tampered store. The user
// id is recovered from the unverified payload (cleanup only, never
// authorization) and every session for that user is revoked.
func (s *AuthService) wipe(ctx context.Context, refreshToken, reason string) error {
	claims, err := utils.DecodeUnsafe(refreshToken)
	if err != nil || claims.UserID == "" {
		return ErrForbidden
	}
	removed, err := s.tokens.DeleteAllForUser(ctx, claims.UserID)
	if err != nil {
		return fmt.Errorf("wipe refresh tokens: %w", err)
	}
	log.Printf("auth: security wipe user_id=%s reason=%s tokens_removed=%d", claims.UserID, reason, removed)
	s.publishWipe(ctx, queue.SecurityWipeEvent{
		UserID:        claims.UserID,
		Login:         claims.Login,
		Reason:        reason,
		TokensRemoved: removed,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	})
	return ErrSessionRevoked
}

// rotate exchanges an expired-but-stored refresh token for a new pair. The
// store swap is transactional; delete-before-insert is a correctness
// requirement, not an optimization.
func (s *AuthService) rotate(ctx context.Context, oldToken, userID string) (*AuthResult, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrForbidden // orphaned token, its user is gone
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	access, refresh, err := s.mintPair(u)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Rotate(ctx, oldToken, refresh, u.ID); err != nil {
		if errors.Is(err, repository.ErrTokenRotated) {
			return nil, ErrRotationConflict
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return &AuthResult{User: publicUser(u), AccessToken: access, RefreshToken: refresh, Rotated: true}, nil
}

func (s *AuthService) mintPair(u model.User) (access, refresh string, err error) {
	access, err = utils.IssueToken(u.ID, u.Login, u.Metadata, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return "", "", fmt.Errorf("issue access token: %w", err)
	}
	refresh, err = utils.IssueToken(u.ID, u.Login, u.Metadata, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return "", "", fmt.Errorf("issue refresh token: %w", err)
	}
	return access, refresh, nil
}

func (s *AuthService) publishWipe(ctx context.Context, ev queue.SecurityWipeEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSecurityWipe(ctx, ev); err != nil {
		log.Printf("auth: publish security wipe: %v", err)
	}
}

func publicUser(u model.User) PublicUser {
	return PublicUser{ID: u.ID, Login: u.Login, Metadata: u.Metadata}
}
