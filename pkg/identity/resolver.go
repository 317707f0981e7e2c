package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/farmcart/farmcart-backend/pkg/config"
)

// Resolver maps an opaque caller token to a trusted user id. The engine never
// inspects credentials beyond this boundary.
type Resolver interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

var jwtSigningMethod = jwt.SigningMethodHS256

// Claims is the typed JWT issued by the identity service.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens minted by the identity service.
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver builds a resolver from identity configuration.
func NewJWTResolver(cfg config.IdentityConfig) (*JWTResolver, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("jwt issuer is required")
	}
	return &JWTResolver{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}, nil
}

// Resolve validates the token and returns the embedded user id.
func (r *JWTResolver) Resolve(_ context.Context, tokenString string) (uuid.UUID, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return r.secret, nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(r.issuer),
	)
	if err != nil {
		return uuid.Nil, err
	}
	if claims.UserID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("token carries no user id")
	}
	return claims.UserID, nil
}
