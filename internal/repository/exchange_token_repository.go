package repository

import (
	"context"
	"database/sql"
	"time"
)

// ExchangeTokenRepo persists one-shot exchange tokens (single 'token_hash'
// column, same hashing scheme as the session utilities).  Rows are deleted
// on redemption or by the lazy expiry sweep; they are never updated.
type ExchangeTokenRepo struct{ DB *sql.DB }

func NewExchangeTokenRepo(db *sql.DB) *ExchangeTokenRepo { return &ExchangeTokenRepo{DB: db} }

// Store inserts an exchange token hash row bound to a user.
func (r *ExchangeTokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO exchange_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp.UTC())
	return err
}

// Redeem consumes a token exactly once.  The lookup and the delete run in
// one transaction with the row locked (SELECT ... FOR UPDATE), so two
// concurrent redemptions of the same token serialize on the row lock and
// the loser observes an empty result.  Expired rows are deleted on sight
// and reported as ErrTokenExpired.
func (r *ExchangeTokenRepo) Redeem(ctx context.Context, tokenHash string) (uint64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		userID    uint64
		expiresAt time.Time
	)
	err = tx.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM exchange_tokens WHERE token_hash=? LIMIT 1 FOR UPDATE",
		tokenHash).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, ErrTokenInvalid
	}
	if err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx,
		"DELETE FROM exchange_tokens WHERE token_hash=?", tokenHash); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}

	if time.Now().UTC().After(expiresAt.UTC()) {
		return 0, ErrTokenExpired
	}
	return userID, nil
}

// DeleteExpired removes all tokens past their expiry.  Called lazily from
// the OAuth callback rather than from a background job.
func (r *ExchangeTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM exchange_tokens WHERE expires_at <= UTC_TIMESTAMP()")
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
