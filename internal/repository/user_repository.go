package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/auth-token-service/internal/model"
)

// UserRepo persists user records in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user under a fresh uuid and returns the stored record.
func (r *UserRepo) Create(ctx context.Context, login, passwordHash string, metadata json.RawMessage) (model.User, error) {
	u := model.User{
		ID:           uuid.NewString(),
		Login:        login,
		PasswordHash: passwordHash,
		Metadata:     metadata,
	}
	meta := []byte(metadata)
	if len(meta) == 0 {
		meta = []byte("null")
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, login, password_hash, metadata) VALUES (?,?,?,?)",
		u.ID, u.Login, u.PasswordHash, meta)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.User{}, ErrLoginExists
		}
		return model.User{}, err
	}
	return u, nil
}

// GetByLogin fetches a user by exact login. The column uses a binary
// collation, so the match is case-sensitive.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT id, login, password_hash, metadata, created_at FROM users WHERE login=? LIMIT 1",
		login))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT id, login, password_hash, metadata, created_at FROM users WHERE id=? LIMIT 1",
		id))
}

// Delete removes a user row. Absence is not an error. Refresh tokens are
// cleaned up by the service, not here.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	return err
}

// List returns every user record.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, login, password_hash, metadata, created_at FROM users ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		var meta sql.NullString
		if err := rows.Scan(&u.ID, &u.Login, &u.PasswordHash, &meta, &u.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid {
			u.Metadata = json.RawMessage(meta.String)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var meta sql.NullString
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &meta, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if meta.Valid {
		u.Metadata = json.RawMessage(meta.String)
	}
	return u, nil
}
