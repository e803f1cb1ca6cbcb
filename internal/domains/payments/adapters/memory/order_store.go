package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

var _ ports.OrderStore = (*OrderStore)(nil)

// OrderStore is an in-memory order collaborator used for demos and tests.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	refs   map[string]string
	now    func() time.Time
}

// NewOrderStore constructs an empty in-memory store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: map[string]*domain.Order{},
		refs:   map[string]string{},
		now:    time.Now,
	}
}

// WithClock overrides the time source for deterministic testing.
func (s *OrderStore) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Save inserts or replaces an order and bumps its version.
func (s *OrderStore) Save(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if order == nil {
		return nil, errors.New("cannot save nil order")
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := order.Clone()
	timestamp := s.now()
	stored.CreatedAt = timestamp
	stored.Version = 1
	if existing, ok := s.orders[order.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
		stored.Version = existing.Version + 1
		if existing.TransactionRef != "" {
			delete(s.refs, existing.TransactionRef)
		}
	}
	stored.UpdatedAt = timestamp
	if err := s.indexRef(stored); err != nil {
		return nil, err
	}
	s.orders[stored.ID] = stored
	return stored.Clone(), nil
}

// Get fetches an order if present.
func (s *OrderStore) Get(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return order.Clone(), nil
}

// FindByTransactionRef resolves an order by its stored processor reference.
func (s *OrderStore) FindByTransactionRef(_ context.Context, ref string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.refs[ref]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return s.orders[id].Clone(), nil
}

// CompareAndApply replaces the order only when the stored version matches expectedVersion.
func (s *OrderStore) CompareAndApply(_ context.Context, next *domain.Order, expectedVersion int64) (*domain.Order, error) {
	if next == nil {
		return nil, errors.New("cannot apply nil order")
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[next.ID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, ports.ErrVersionConflict
	}

	stored := next.Clone()
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = s.now()
	stored.Version = expectedVersion + 1
	if current.TransactionRef != stored.TransactionRef {
		delete(s.refs, current.TransactionRef)
	}
	if err := s.indexRef(stored); err != nil {
		_ = s.indexRef(current)
		return nil, err
	}
	s.orders[stored.ID] = stored
	return stored.Clone(), nil
}

// ListStale returns unresolved orders, oldest first.
func (s *OrderStore) ListStale(_ context.Context, query ports.StaleQuery) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := map[domain.PaymentStatus]struct{}{}
	for _, status := range query.Statuses {
		statuses[status] = struct{}{}
	}
	var list []*domain.Order
	for _, order := range s.orders {
		if len(statuses) > 0 {
			if _, ok := statuses[order.PaymentStatus]; !ok {
				continue
			}
		}
		if !query.UpdatedBefore.IsZero() && !order.UpdatedAt.Before(query.UpdatedBefore) {
			continue
		}
		if query.WithTransactionRef && order.TransactionRef == "" {
			continue
		}
		if query.WithoutChannel != "" && hasChannel(order, query.WithoutChannel) {
			continue
		}
		list = append(list, order.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.Before(list[j].UpdatedAt)
	})
	if query.Limit > 0 && len(list) > query.Limit {
		list = list[:query.Limit]
	}
	return list, nil
}

func (s *OrderStore) indexRef(order *domain.Order) error {
	if order.TransactionRef == "" {
		return nil
	}
	if owner, ok := s.refs[order.TransactionRef]; ok && owner != order.ID {
		return domain.ErrTransactionRefTaken
	}
	s.refs[order.TransactionRef] = order.ID
	return nil
}

func hasChannel(order *domain.Order, channel domain.Channel) bool {
	for _, entry := range order.PaymentHistory {
		if entry.Channel == channel {
			return true
		}
	}
	return false
}
