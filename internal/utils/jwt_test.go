package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "CUSTOMER", "sid-1", 15)
	require.NoError(t, err)

	claims, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, Claims{AccountID: 42, Role: "CUSTOMER", SessionID: "sid-1"}, claims)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "CUSTOMER", "sid-1", 15)
	require.NoError(t, err)
	_, err = ParseAccessToken("other", tok.Token)
	assert.Error(t, err)
}

func TestAccessTokenExpired(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "CUSTOMER", "sid-1", -5)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", tok.Token)
	assert.Error(t, err)
}

func TestRefreshTokenAndHash(t *testing.T) {
	a, err := NewRefreshToken(7)
	require.NoError(t, err)
	b, err := NewRefreshToken(7)
	require.NoError(t, err)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.Len(t, HashToken(a.Raw), 64)
	assert.Equal(t, HashToken(a.Raw), HashToken(a.Raw))
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("hunter2", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "hunter2"))
	assert.False(t, VerifyPassword(hash, "hunter3"))

	key, err := NewConfirmationKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}
