package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateValidateRoundtrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("alice", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "govibe", claims.Issuer)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Hour)
	verifier := NewJWTManager("secret-b", time.Hour)

	token, err := issuer.Generate("alice", "Alice")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", time.Nanosecond)

	token, err := m.Generate("alice", "Alice")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateRejectsMissingUserID(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("", "Nameless")
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	_, err := m.Validate("not.a.token")
	assert.Error(t, err)
}

func TestZeroTTLDefaults(t *testing.T) {
	m := NewJWTManager("test-secret", 0)

	token, err := m.Generate("alice", "Alice")
	require.NoError(t, err)
	claims, err := m.Validate(token)
	require.NoError(t, err)

	remaining := time.Until(claims.ExpiresAt.Time)
	assert.Greater(t, remaining, 23*time.Hour)
}
