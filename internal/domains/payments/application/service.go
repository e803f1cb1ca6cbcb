package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

const (
	defaultRetryAfter  = 5 * time.Second
	defaultMaxAttempts = 5
)

// RedirectConfig holds the externally visible base URLs used to build processor return URLs and
// front-end redirects.
type RedirectConfig struct {
	PublicBaseURL string
	FrontendURL   string
}

// Service orchestrates the payment reconciliation use cases.
type Service struct {
	orders        ports.OrderStore
	gateway       ports.Gateway
	capsules      ports.CapsuleCodec
	receipts      ports.ReceiptStore
	confirmations ports.ConfirmationScheduler
	callbackSigs  ports.SignatureVerifier
	urls          RedirectConfig
	retryAfter    time.Duration
	maxAttempts   int
	now           func() time.Time
	newID         func() string
}

// Option customizes the service.
type Option func(*Service)

// WithCapsuleCodec enables session capsules on Initiate and session restore on Callback.
func WithCapsuleCodec(codec ports.CapsuleCodec) Option {
	return func(s *Service) {
		s.capsules = codec
	}
}

// WithReceiptStore enables webhook delivery de-duplication.
func WithReceiptStore(store ports.ReceiptStore) Option {
	return func(s *Service) {
		s.receipts = store
	}
}

// WithConfirmationScheduler enables follow-up verification after provisional evidence.
func WithConfirmationScheduler(scheduler ports.ConfirmationScheduler) Option {
	return func(s *Service) {
		s.confirmations = scheduler
	}
}

// WithCallbackVerifier trusts callback success only when the redirect carries a valid signature.
func WithCallbackVerifier(verifier ports.SignatureVerifier) Option {
	return func(s *Service) {
		s.callbackSigs = verifier
	}
}

func WithRedirects(cfg RedirectConfig) Option {
	return func(s *Service) {
		s.urls = cfg
	}
}

func WithRetryAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryAfter = d
		}
	}
}

// WithMaxAttempts bounds the compare-and-swap retry loop.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides the time source for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the payments service with its dependencies.
func NewService(orders ports.OrderStore, gateway ports.Gateway, opts ...Option) *Service {
	s := &Service{
		orders:      orders,
		gateway:     gateway,
		retryAfter:  defaultRetryAfter,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Status returns the read-only payment summary of an order.
func (s *Service) Status(ctx context.Context, orderID string) (*types.StatusView, error) {
	if orderID == "" {
		return nil, validationError(CodeMissingFields, "orderId is required")
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, mapError(err)
	}
	return toStatusView(order), nil
}

func (s *Service) scheduleConfirmation(ctx context.Context, orderID string) error {
	if s.confirmations == nil {
		return nil
	}
	return s.confirmations.ScheduleConfirmation(ctx, orderID)
}

var _ ports.Service = (*Service)(nil)
