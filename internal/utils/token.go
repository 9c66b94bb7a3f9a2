package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA-256 hashing for exchange tokens
    "encoding/hex"  // hex encoding functions
    "time"          // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed session tokens
)

// ExchangeToken is the one-shot bridge between the OAuth callback redirect
// and a browser session.  Raw is the opaque string embedded in the redirect
// URL and presented back by the client exactly once.  Only the SHA-256 hash
// of Raw is ever stored in the database.
type ExchangeToken struct {
    Raw string    // raw token string handed to the client
    Exp time.Time // UTC expiration time
}

// SessionToken is a signed HS256 JWT that identifies a browser session.  It
// travels in an HttpOnly cookie (or an Authorization header for non-browser
// clients) and carries the user id as its subject claim.
type SessionToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewExchangeToken returns a cryptographically random exchange token and its
// expiration.  The raw value is 32 random bytes hex-encoded (64 characters);
// the TTL is short by design since the token exists only to bridge the
// OAuth redirect into a session.
func NewExchangeToken(ttlMin int) (ExchangeToken, error) {
    raw, err := randomHex(32)
    if err != nil {
        return ExchangeToken{}, err
    }
    return ExchangeToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute),
    }, nil
}

// HashTokenRaw returns the SHA-256 hash of a raw exchange token as a hex
// string.  Storing only the hash prevents a leaked database row from being
// redeemed for a session.
func HashTokenRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// NewSessionToken builds and signs an HS256 JWT for a user.  It takes the
// signing secret, the user ID and a TTL in hours.  The JWT includes the
// standard subject (sub), expiration (exp) and issued-at (iat) claims.
func NewSessionToken(secret string, userID uint64, ttlHours int) (SessionToken, error) {
    exp := time.Now().UTC().Add(time.Duration(ttlHours) * time.Hour)
    claims := jwt.MapClaims{
        "sub": userID,
        "exp": exp.Unix(),
        "iat": time.Now().UTC().Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return SessionToken{}, err
    }
    return SessionToken{Token: signed, Exp: exp}, nil
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
