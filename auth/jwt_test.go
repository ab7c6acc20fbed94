package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/roomcast-chat/roomcast/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, secret, subject string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTVerifier(t *testing.T) {
	v, err := NewJWTVerifier("sekrit")
	require.NoError(t, err)

	subject, err := v.Verify(context.Background(), signedToken(t, "sekrit", "user-1", time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
}

func TestJWTVerifierRejectsBadSignature(t *testing.T) {
	v, err := NewJWTVerifier("sekrit")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signedToken(t, "other-secret", "user-1", time.Hour), "")
	assert.ErrorIs(t, err, types.ErrAuth)
}

func TestJWTVerifierRejectsExpiredToken(t *testing.T) {
	v, err := NewJWTVerifier("sekrit")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signedToken(t, "sekrit", "user-1", -time.Hour), "")
	assert.ErrorIs(t, err, types.ErrAuth)
}

func TestJWTVerifierRejectsEmptyToken(t *testing.T) {
	v, err := NewJWTVerifier("sekrit")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "", "")
	assert.ErrorIs(t, err, types.ErrAuth)
}

func TestJWTVerifierRejectsMissingSubject(t *testing.T) {
	v, err := NewJWTVerifier("sekrit")
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("sekrit"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed, "")
	assert.ErrorIs(t, err, types.ErrAuth)
}

func TestNewJWTVerifierNeedsSecret(t *testing.T) {
	_, err := NewJWTVerifier("")
	assert.Error(t, err)
}
