package service

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/iliyamo/drive-dataroom/internal/repository"
	"github.com/iliyamo/drive-dataroom/internal/utils"
)

// ExchangeTokenStore is the slice of the exchange token repository the
// bridge needs.  *repository.ExchangeTokenRepo satisfies it.
type ExchangeTokenStore interface {
	Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Redeem(ctx context.Context, tokenHash string) (uint64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionBridge converts a one-shot exchange token into an authenticated
// user identity.  Minting happens at the end of the OAuth callback;
// redemption happens exactly once from the frontend.
type SessionBridge struct {
	Tokens ExchangeTokenStore
}

func NewSessionBridge(tokens ExchangeTokenStore) *SessionBridge {
	return &SessionBridge{Tokens: tokens}
}

// Mint creates and persists a fresh exchange token bound to the user and
// returns the raw value for embedding in the callback redirect.  Only the
// hash is stored.
func (b *SessionBridge) Mint(ctx context.Context, userID uint64, ttlMin int) (string, error) {
	tok, err := utils.NewExchangeToken(ttlMin)
	if err != nil {
		return "", err
	}
	if err := b.Tokens.Store(ctx, userID, utils.HashTokenRaw(tok.Raw), tok.Exp); err != nil {
		return "", err
	}
	return tok.Raw, nil
}

// Redeem consumes a raw exchange token and returns the bound user id.
// Empty or unknown tokens fail with repository.ErrTokenInvalid; expired
// ones with repository.ErrTokenExpired (and the row is gone afterwards).
// A token can never be redeemed twice, even under concurrent requests.
func (b *SessionBridge) Redeem(ctx context.Context, raw string) (uint64, error) {
	if raw == "" {
		return 0, repository.ErrTokenInvalid
	}
	userID, err := b.Tokens.Redeem(ctx, utils.HashTokenRaw(raw))
	if err == sql.ErrNoRows {
		return 0, repository.ErrTokenInvalid
	}
	return userID, err
}

// Sweep lazily removes expired exchange tokens.  Failures are logged and
// ignored; a missed sweep only delays cleanup until the next callback.
func (b *SessionBridge) Sweep(ctx context.Context) {
	if n, err := b.Tokens.DeleteExpired(ctx); err != nil {
		log.Printf("session: expired token sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("session: swept %d expired exchange tokens", n)
	}
}
