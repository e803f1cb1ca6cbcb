package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
)

var (
	// ErrCapsuleInvalid covers every decode failure, expiry included. Callers treat it as
	// "no session to restore".
	ErrCapsuleInvalid  = errors.New("session capsule expired or invalid")
	ErrUnauthenticated = errors.New("bearer token missing or invalid")
)

// Capsule carries an authenticated identity across the processor redirect.
type Capsule struct {
	UserID      string
	OrderID     string
	BearerToken string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// CapsuleCodec encodes and decodes session capsules.
type CapsuleCodec interface {
	Encode(userID, orderID, bearerToken string) (string, error)
	Decode(capsule string) (*Capsule, error)
}

// TokenVerifier validates bearer credentials issued by the user/session store.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Principal, error)
}

// SignatureVerifier checks a processor-supplied MAC over a payload.
type SignatureVerifier interface {
	Enabled() bool
	Verify(payload []byte, signature string) bool
}
