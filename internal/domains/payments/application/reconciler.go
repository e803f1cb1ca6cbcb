package application

import (
	"context"
	"errors"
	"strings"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

// Reconcile merges one piece of evidence into the order. Concurrent writers are resolved with a
// compare-and-swap loop on the order version, so the stored result is never worse than the best
// evidence seen.
func (s *Service) Reconcile(ctx context.Context, orderID string, evidence domain.Evidence) (*types.ReconcileResult, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, validationError(CodeMissingFields, "orderId is required")
	}
	if err := evidence.Validate(); err != nil {
		return nil, mapError(err)
	}
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return nil, mapError(err)
		}
		expected := order.Version
		changed, err := order.ApplyEvidence(evidence, s.now())
		if err != nil {
			return nil, mapError(err)
		}
		if !changed {
			return &types.ReconcileResult{Order: order}, nil
		}
		saved, err := s.orders.CompareAndApply(ctx, order, expected)
		if errors.Is(err, ports.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, mapError(err)
		}
		return &types.ReconcileResult{Order: saved, Applied: true}, nil
	}
	return nil, ErrConcurrentUpdate
}

// reserveTransactionRef stores ref on the order exactly once.
func (s *Service) reserveTransactionRef(ctx context.Context, orderID, ref string) (*domain.Order, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return nil, mapError(err)
		}
		expected := order.Version
		changed, err := order.AssignTransactionRef(ref)
		if err != nil {
			return nil, mapError(err)
		}
		if !changed {
			return order, nil
		}
		saved, err := s.orders.CompareAndApply(ctx, order, expected)
		if errors.Is(err, ports.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, mapError(err)
		}
		return saved, nil
	}
	return nil, ErrConcurrentUpdate
}

// settleOutcome downgrades a success that paid less than the order total to inconclusive.
func settleOutcome(order *domain.Order, evidence domain.Evidence) domain.Evidence {
	if evidence.Outcome != domain.OutcomeSuccess || evidence.Amount == nil || order == nil {
		return evidence
	}
	if evidence.Amount.LessThan(order.TotalAmount) {
		evidence.Outcome = domain.OutcomeInconclusive
	}
	return evidence
}
