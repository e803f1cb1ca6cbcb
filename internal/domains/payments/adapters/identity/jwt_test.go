package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

func TestJWTVerifier_AcceptsIssuedToken(t *testing.T) {
	verifier, err := NewJWTVerifier("jwt-secret")
	require.NoError(t, err)

	token, err := verifier.Issue("user-1", time.Hour)
	require.NoError(t, err)

	principal, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.UserID)
	assert.Equal(t, token, principal.Token)
	assert.False(t, principal.System)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	verifier, err := NewJWTVerifier("jwt-secret")
	require.NoError(t, err)

	expired, err := verifier.Issue("user-1", -time.Minute)
	require.NoError(t, err)
	_, err = verifier.Verify(context.Background(), expired)
	require.ErrorIs(t, err, ports.ErrUnauthenticated)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": "user-1"}).SignedString([]byte("other"))
	require.NoError(t, err)
	_, err = verifier.Verify(context.Background(), foreign)
	require.ErrorIs(t, err, ports.ErrUnauthenticated)

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "guest"}).SignedString([]byte("jwt-secret"))
	require.NoError(t, err)
	_, err = verifier.Verify(context.Background(), anonymous)
	require.ErrorIs(t, err, ports.ErrUnauthenticated)

	_, err = verifier.Verify(context.Background(), "")
	require.ErrorIs(t, err, ports.ErrUnauthenticated)
}

func TestJWTVerifier_LegacyClaim(t *testing.T) {
	verifier, err := NewJWTVerifier("jwt-secret")
	require.NoError(t, err)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "user-9"}).SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	principal, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", principal.UserID)
}
