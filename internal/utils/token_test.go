package utils

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExchangeToken(t *testing.T) {
	et, err := NewExchangeToken(5)
	require.NoError(t, err)

	raw, err := hex.DecodeString(et.Raw)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	left := time.Until(et.Exp)
	assert.Greater(t, left, 4*time.Minute)
	assert.LessOrEqual(t, left, 5*time.Minute)
}

func TestNewExchangeTokenUnique(t *testing.T) {
	a, err := NewExchangeToken(5)
	require.NoError(t, err)
	b, err := NewExchangeToken(5)
	require.NoError(t, err)
	assert.NotEqual(t, a.Raw, b.Raw)
}

func TestHashTokenRaw(t *testing.T) {
	h1 := HashTokenRaw("abc")
	h2 := HashTokenRaw("abc")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // sha256 hex
	assert.NotEqual(t, h1, HashTokenRaw("abd"))
	assert.NotContains(t, h1, "abc")
}

func TestNewSessionToken(t *testing.T) {
	st, err := NewSessionToken("secret", 42, 24)
	require.NoError(t, err)

	parsed, err := jwt.Parse(st.Token, func(tok *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, float64(42), claims["sub"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp.Time, time.Minute)
}

func TestNewSessionTokenWrongSecret(t *testing.T) {
	st, err := NewSessionToken("secret", 42, 1)
	require.NoError(t, err)

	_, err = jwt.Parse(st.Token, func(tok *jwt.Token) (interface{}, error) {
		return []byte("other"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	assert.Error(t, err)
}
