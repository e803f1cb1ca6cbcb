package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

var _ ports.TokenVerifier = (*JWTVerifier)(nil)

// JWTVerifier validates HS256 bearer tokens issued by the storefront's auth service.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), now: time.Now}, nil
}

// WithClock overrides the time source for deterministic testing.
func (v *JWTVerifier) WithClock(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Verify parses the token and returns the caller it identifies. The userId claim is required;
// user_id and sub are accepted as fallbacks.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ports.ErrUnauthenticated
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrUnauthenticated, err)
	}
	userID := firstClaim(claims, "userId", "user_id", "sub")
	if userID == "" {
		return nil, fmt.Errorf("%w: token has no user id", ports.ErrUnauthenticated)
	}
	return &domain.Principal{UserID: userID, Token: token}, nil
}

// Issue signs a token for userID. Only used by tooling and tests; the storefront issues real ones.
func (v *JWTVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := v.now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}).SignedString(v.secret)
}

func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key].(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
