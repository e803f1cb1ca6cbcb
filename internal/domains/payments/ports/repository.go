package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict means the stored order moved on since it was read.
	ErrVersionConflict = errors.New("order version conflict")
)

// StaleQuery selects orders whose payment is still unresolved.
type StaleQuery struct {
	UpdatedBefore time.Time
	Statuses      []domain.PaymentStatus
	// WithoutChannel skips orders that already received evidence from this channel.
	WithoutChannel domain.Channel
	// WithTransactionRef skips orders that never started a checkout.
	WithTransactionRef bool
	Limit              int
}

// OrderStore is the persistent order collaborator. Writers never assume exclusive access:
// every mutation goes through CompareAndApply.
type OrderStore interface {
	// Save creates or replaces an order. Used by checkout and fixtures, not by reconciliation.
	Save(ctx context.Context, order *domain.Order) (*domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
	FindByTransactionRef(ctx context.Context, ref string) (*domain.Order, error)
	// CompareAndApply persists next only if the stored version still equals expectedVersion.
	// The returned order carries the bumped version. ErrVersionConflict signals a lost race.
	CompareAndApply(ctx context.Context, next *domain.Order, expectedVersion int64) (*domain.Order, error)
	ListStale(ctx context.Context, query StaleQuery) ([]*domain.Order, error)
}
