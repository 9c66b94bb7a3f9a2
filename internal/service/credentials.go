// Package service holds the business logic between the HTTP handlers and
// the repositories: credential lifecycle, session bridging and the file
// import pipeline.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/drive-dataroom/internal/gdrive"
	"github.com/iliyamo/drive-dataroom/internal/repository"
)

// ErrCredentialsInvalid means no usable Google credential exists for the
// user: none stored, no refresh token, or the refresh was rejected.  The
// caller must treat this as "re-authentication required", not as a
// transient fault worth retrying.
var ErrCredentialsInvalid = errors.New("google credentials invalid or expired")

// CredentialStore is the slice of the credential repository the manager
// needs.  *repository.CredentialRepo satisfies it.
type CredentialStore interface {
	GetByUser(ctx context.Context, userID uint64) (repository.Credential, error)
	SaveRefreshed(ctx context.Context, userID uint64, accessToken string, expiresAt *time.Time, refreshToken string) error
}

// TokenRefresher produces refreshing token sources.  *gdrive.Provider
// satisfies it.
type TokenRefresher interface {
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
}

// CredentialManager returns a currently valid Google access token for a
// user, transparently refreshing and persisting the stored credential when
// it has expired.  Refreshes for the same user are collapsed into a single
// provider call: Google may rotate the refresh token on use, and a second
// concurrent refresh would either fail or clobber the rotation.
type CredentialManager struct {
	Creds    CredentialStore
	Provider TokenRefresher
	// RefreshTimeout bounds the outbound refresh call.  A timed-out
	// refresh is indistinguishable from a rejected one.
	RefreshTimeout time.Duration

	group singleflight.Group
}

func NewCredentialManager(creds CredentialStore, provider *gdrive.Provider) *CredentialManager {
	return &CredentialManager{Creds: creds, Provider: provider, RefreshTimeout: 15 * time.Second}
}

// Valid returns a usable access token for the user.  A credential with no
// stored expiry is always considered expired, so it is refreshed before
// first use rather than trusted forever.
func (m *CredentialManager) Valid(ctx context.Context, userID uint64) (*oauth2.Token, error) {
	cred, err := m.Creds.GetByUser(ctx, userID)
	if err == sql.ErrNoRows {
		return nil, ErrCredentialsInvalid
	}
	if err != nil {
		return nil, err
	}
	if !cred.Expired() {
		return credToken(cred), nil
	}
	if cred.RefreshToken == "" {
		return nil, ErrCredentialsInvalid
	}

	v, err, _ := m.group.Do(strconv.FormatUint(userID, 10), func() (interface{}, error) {
		return m.refresh(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// refresh runs inside the per-user singleflight.  It re-reads the stored
// credential first: a concurrent caller may have completed the refresh
// while this one was waiting on the flight.
func (m *CredentialManager) refresh(ctx context.Context, userID uint64) (*oauth2.Token, error) {
	cred, err := m.Creds.GetByUser(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCredentialsInvalid
		}
		return nil, err
	}
	if !cred.Expired() {
		return credToken(cred), nil
	}
	if cred.RefreshToken == "" {
		return nil, ErrCredentialsInvalid
	}

	tctx, cancel := context.WithTimeout(ctx, m.RefreshTimeout)
	defer cancel()

	// Seed the source with an expired token so Token() refreshes now.
	seed := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       time.Now().UTC().Add(-time.Minute),
	}
	tok, err := m.Provider.TokenSource(tctx, seed).Token()
	if err != nil {
		log.Printf("credentials: refresh failed for user %d: %v", userID, err)
		return nil, ErrCredentialsInvalid
	}

	var expiresAt *time.Time
	if !tok.Expiry.IsZero() {
		t := tok.Expiry.UTC()
		expiresAt = &t
	}
	// Persist before returning; a new refresh token is stored only when
	// the provider rotated it.
	if err := m.Creds.SaveRefreshed(ctx, userID, tok.AccessToken, expiresAt, tok.RefreshToken); err != nil {
		return nil, err
	}
	return tok, nil
}

func credToken(c repository.Credential) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
	}
	if c.ExpiresAt != nil {
		tok.Expiry = c.ExpiresAt.UTC()
	}
	return tok
}
