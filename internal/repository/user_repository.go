package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// User mirrors the 'users' table.  Identity is keyed on the immutable
// Google subject id, never on the email, which Google allows to change.
type User struct {
	ID        uint64
	GoogleID  string
	Email     string
	Name      string
	Picture   string
	CreatedAt time.Time
}

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,google_id,email,name,picture,created_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.GoogleID, &u.Email, &u.Name, &u.Picture, &u.CreatedAt)
	return u, err
}

// GetByGoogleID fetches a user by the remote provider subject id.
func (r *UserRepo) GetByGoogleID(ctx context.Context, googleID string) (User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,google_id,email,name,picture,created_at FROM users WHERE google_id=? LIMIT 1",
		googleID).Scan(&u.ID, &u.GoogleID, &u.Email, &u.Name, &u.Picture, &u.CreatedAt)
	return u, err
}

// LookupOrCreate resolves a user by subject id, inserting a row on first
// login.  Repeating the callback for the same subject id never creates a
// second row: a concurrent insert losing the unique-key race falls back to
// re-reading the winner's row.
func (r *UserRepo) LookupOrCreate(ctx context.Context, googleID, email, name, picture string) (User, error) {
	u, err := r.GetByGoogleID(ctx, googleID)
	if err == nil {
		return u, nil
	}
	if err != sql.ErrNoRows {
		return User{}, err
	}

	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (google_id, email, name, picture) VALUES (?,?,?,?)",
		googleID, email, name, picture)
	if err != nil {
		// 1062 = duplicate key; another request created the row first.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return r.GetByGoogleID(ctx, googleID)
		}
		return User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// PurgeUser deletes a user and everything the user owns (files, credential,
// pending exchange tokens, the user row itself) in a single transaction.
// It returns the local paths of the user's file blobs so the caller can
// remove them from disk once the transaction has committed.
func (r *UserRepo) PurgeUser(ctx context.Context, userID uint64) ([]string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT local_path FROM files WHERE user_id=?", userID)
	if err != nil {
		return nil, err
	}
	var paths []string
	for rows.Next() {
		var p string
		if scanErr := rows.Scan(&p); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		paths = append(paths, p)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		"DELETE FROM files WHERE user_id=?",
		"DELETE FROM credentials WHERE user_id=?",
		"DELETE FROM exchange_tokens WHERE user_id=?",
		"DELETE FROM users WHERE id=?",
	} {
		if _, err = tx.ExecContext(ctx, stmt, userID); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return paths, nil
}
