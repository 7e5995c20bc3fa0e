package utils // package utils provides token signing and password hashing helpers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed tokens
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned by VerifyToken when the signature checks
	// out but the token's expiry has passed. The decoded claims are still
	// returned alongside it, since the payload itself is genuine.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other failure: bad signature, wrong
	// secret, malformed input, unexpected signing method.
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenClaims is the identity payload carried by both token domains. Access
// and refresh tokens embed the same claims; they differ only in signing
// secret and lifetime. The jti claim keeps two tokens minted for the same
// user within the same second distinct.
type TokenClaims struct {
	UserID   string          `json:"uid"`
	Login    string          `json:"login"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken builds and signs an HS256 JWT embedding the given identity and
// an absolute expiry computed from ttl. The same function serves both
// domains; the caller chooses the secret and lifetime.
func IssueToken(userID, login string, metadata json.RawMessage, secret string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := TokenClaims{
		UserID:   userID,
		Login:    login,
		Metadata: metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken checks signature integrity and expiry. Three outcomes:
//
//	(claims, nil)             valid, unexpired token
//	(claims, ErrTokenExpired) signature valid, expiry passed
//	(nil, ErrTokenInvalid)    signature does not verify
//
// Callers branch on the distinction. The parser rejects any signing method
// other than HMAC, so a token signed with "none" or an RSA key never
// reaches claims validation.
func VerifyToken(token, secret string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		// Signature verification runs before claims validation, so an
		// expired outcome implies the signature was genuine.
		return claims, ErrTokenExpired
	default:
		return nil, ErrTokenInvalid
	}
}

// DecodeUnsafe reads the payload without verifying signature or expiry. It
// exists solely so the session-wipe path can recover a user id from an
// expired token; it must never gate authorization.
func DecodeUnsafe(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
