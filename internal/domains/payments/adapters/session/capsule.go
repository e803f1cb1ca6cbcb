package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

const (
	// MaxTTL bounds how long a capsule can restore a session after the processor redirect.
	MaxTTL = 30 * time.Minute

	issuer = "payment-reconciler"
)

var _ ports.CapsuleCodec = (*CapsuleCodec)(nil)

// CapsuleCodec signs session capsules as compact HS256 JWS tokens.
type CapsuleCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type capsuleClaims struct {
	UserID      string `json:"userId"`
	OrderID     string `json:"orderId"`
	BearerToken string `json:"token"`
	jwt.RegisteredClaims
}

// NewCapsuleCodec builds a codec. The TTL is clamped to MaxTTL.
func NewCapsuleCodec(secret string, ttl time.Duration) (*CapsuleCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("capsule secret is required")
	}
	if ttl <= 0 || ttl > MaxTTL {
		ttl = MaxTTL
	}
	return &CapsuleCodec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source for deterministic testing.
func (c *CapsuleCodec) WithClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Encode mints a capsule for the user returning from checkout of orderID.
func (c *CapsuleCodec) Encode(userID, orderID, bearerToken string) (string, error) {
	if userID == "" || orderID == "" || bearerToken == "" {
		return "", errors.New("capsule requires user, order and token")
	}
	issuedAt := c.now().UTC().Truncate(time.Second)
	claims := capsuleClaims{
		UserID:      userID,
		OrderID:     orderID,
		BearerToken: bearerToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign capsule: %w", err)
	}
	return signed, nil
}

// Decode verifies and unpacks a capsule. Every failure is ports.ErrCapsuleInvalid.
func (c *CapsuleCodec) Decode(capsule string) (*ports.Capsule, error) {
	capsule = strings.TrimSpace(capsule)
	if capsule == "" {
		return nil, ports.ErrCapsuleInvalid
	}
	var claims capsuleClaims
	_, err := jwt.ParseWithClaims(capsule, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrCapsuleInvalid, err)
	}
	if claims.UserID == "" || claims.OrderID == "" || claims.BearerToken == "" {
		return nil, ports.ErrCapsuleInvalid
	}
	result := &ports.Capsule{
		UserID:      claims.UserID,
		OrderID:     claims.OrderID,
		BearerToken: claims.BearerToken,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	return result, nil
}
