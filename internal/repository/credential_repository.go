package repository

import (
	"context"
	"database/sql"
	"time"
)

// Credential mirrors the 'credentials' table: the Google access/refresh
// token pair for one user.  At most one row exists per user (unique key on
// user_id).  A nil ExpiresAt means the provider reported no expiry; such a
// credential is treated as always expired so it is refreshed before use.
type Credential struct {
	ID           uint64
	UserID       uint64
	AccessToken  string
	RefreshToken string // empty when the provider never issued one
	TokenType    string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token must be refreshed before use.
// A credential without a stored expiry is conservatively always expired.
func (c Credential) Expired() bool {
	if c.ExpiresAt == nil {
		return true
	}
	return !time.Now().UTC().Before(c.ExpiresAt.UTC())
}

type CredentialRepo struct{ DB *sql.DB }

func NewCredentialRepo(db *sql.DB) *CredentialRepo { return &CredentialRepo{DB: db} }

// GetByUser fetches the credential for a user, sql.ErrNoRows when absent.
func (r *CredentialRepo) GetByUser(ctx context.Context, userID uint64) (Credential, error) {
	var (
		c       Credential
		refresh sql.NullString
		expires sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,access_token,refresh_token,token_type,expires_at,created_at,updated_at FROM credentials WHERE user_id=? LIMIT 1",
		userID).Scan(&c.ID, &c.UserID, &c.AccessToken, &refresh, &c.TokenType, &expires, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Credential{}, err
	}
	if refresh.Valid {
		c.RefreshToken = refresh.String
	}
	if expires.Valid {
		t := expires.Time
		c.ExpiresAt = &t
	}
	return c, nil
}

// Upsert stores the token set returned by the provider for a user, creating
// the row on first login.  An empty refresh token keeps the previously
// stored one: Google only returns a refresh token on the first consent, and
// losing it would force re-authentication on the next expiry.
func (r *CredentialRepo) Upsert(ctx context.Context, userID uint64, accessToken, refreshToken, tokenType string, expiresAt *time.Time) error {
	if tokenType == "" {
		tokenType = "Bearer"
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO credentials (user_id, access_token, refresh_token, token_type, expires_at)
		 VALUES (?,?,NULLIF(?,''),?,?)
		 ON DUPLICATE KEY UPDATE
		   access_token = VALUES(access_token),
		   refresh_token = COALESCE(VALUES(refresh_token), refresh_token),
		   token_type = VALUES(token_type),
		   expires_at = VALUES(expires_at),
		   updated_at = NOW()`,
		userID, accessToken, refreshToken, tokenType, nullableTime(expiresAt))
	return err
}

// SaveRefreshed persists the outcome of a token refresh.  The refresh token
// column is only replaced when the provider rotated it.
func (r *CredentialRepo) SaveRefreshed(ctx context.Context, userID uint64, accessToken string, expiresAt *time.Time, refreshToken string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE credentials
		 SET access_token=?, expires_at=?,
		     refresh_token=COALESCE(NULLIF(?,''), refresh_token),
		     updated_at=NOW()
		 WHERE user_id=?`,
		accessToken, nullableTime(expiresAt), refreshToken, userID)
	return err
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
