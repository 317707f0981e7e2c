package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmcart/farmcart-backend/pkg/config"
)

func mintToken(t *testing.T, secret, issuer string, userID uuid.UUID, expiresIn time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTResolver_Resolve(t *testing.T) {
	resolver, err := NewJWTResolver(config.IdentityConfig{JWTSecret: "s3cret", Issuer: "farmcart"})
	require.NoError(t, err)

	userID := uuid.New()
	token := mintToken(t, "s3cret", "farmcart", userID, time.Hour)

	resolved, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, resolved)
}

func TestJWTResolver_RejectsBadTokens(t *testing.T) {
	resolver, err := NewJWTResolver(config.IdentityConfig{JWTSecret: "s3cret", Issuer: "farmcart"})
	require.NoError(t, err)

	userID := uuid.New()

	t.Run("wrong secret", func(t *testing.T) {
		token := mintToken(t, "other-secret", "farmcart", userID, time.Hour)
		_, err := resolver.Resolve(context.Background(), token)
		require.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token := mintToken(t, "s3cret", "someone-else", userID, time.Hour)
		_, err := resolver.Resolve(context.Background(), token)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token := mintToken(t, "s3cret", "farmcart", userID, -time.Minute)
		_, err := resolver.Resolve(context.Background(), token)
		require.Error(t, err)
	})

	t.Run("missing user id", func(t *testing.T) {
		token := mintToken(t, "s3cret", "farmcart", uuid.Nil, time.Hour)
		_, err := resolver.Resolve(context.Background(), token)
		require.Error(t, err)
	})
}

func TestNewJWTResolver_RequiresConfig(t *testing.T) {
	_, err := NewJWTResolver(config.IdentityConfig{Issuer: "farmcart"})
	require.Error(t, err)

	_, err = NewJWTResolver(config.IdentityConfig{JWTSecret: "s3cret"})
	require.Error(t, err)
}
