package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/auth-token-service/internal/model"
)

// TokenRepo persists refresh tokens by value: the signed token string is the
// primary key, and presence of the exact string is what makes a verifiable
// token acceptable.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Store inserts a refresh token row. A duplicate token is rejected.
func (r *TokenRepo) Store(ctx context.Context, token, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token, user_id) VALUES (?,?)",
		token, userID)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "1062") {
		return ErrDuplicateToken
	}
	return err
}

// Find returns the record for the exact token string.
func (r *TokenRepo) Find(ctx context.Context, token string) (model.RefreshTokenRecord, error) {
	var rec model.RefreshTokenRecord
	err := r.DB.QueryRowContext(ctx,
		"SELECT token, user_id, created_at FROM refresh_tokens WHERE token=? LIMIT 1",
		token).Scan(&rec.Token, &rec.UserID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return model.RefreshTokenRecord{}, ErrNotFound
	}
	if err != nil {
		return model.RefreshTokenRecord{}, err
	}
	return rec, nil
}

// Delete removes a single token row. Absence is not an error.
func (r *TokenRepo) Delete(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token=?", token)
	return err
}

// DeleteAllForUser removes every token belonging to a user and reports how
// many rows went away. Idempotent.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Rotate replaces oldToken with newToken inside one transaction. The delete
// must claim exactly the presented row; when another rotation got there
// first the transaction rolls back with ErrTokenRotated, keeping rotation
// at-most-once per token.
func (r *TokenRepo) Rotate(ctx context.Context, oldToken, newToken, userID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token=?", oldToken)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenRotated
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token, user_id) VALUES (?,?)",
		newToken, userID); err != nil {
		return err
	}
	return tx.Commit()
}
