package application

import (
	"context"
	"time"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

const (
	defaultSweepAge   = 15 * time.Minute
	defaultSweepLimit = 100
)

// SweepPending re-verifies unresolved orders that never received a webhook. It is the safety
// net for lost deliveries; the confirmation worker runs it on an interval and the CLI on demand.
func (s *Service) SweepPending(ctx context.Context, input types.SweepInput) (*types.SweepResult, error) {
	age := input.OlderThan
	if age <= 0 {
		age = defaultSweepAge
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	orders, err := s.orders.ListStale(ctx, ports.StaleQuery{
		UpdatedBefore:      s.now().Add(-age),
		Statuses:           []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentPending, domain.PaymentProcessing},
		WithoutChannel:     domain.ChannelWebhook,
		WithTransactionRef: true,
		Limit:              limit,
	})
	if err != nil {
		return nil, mapError(err)
	}

	result := &types.SweepResult{}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		verified, err := s.verify(ctx, order)
		if err != nil {
			result.Errors++
			continue
		}
		if verified.Source == types.SourceUnavailable {
			result.Errors++
			continue
		}
		switch verified.PaymentStatus {
		case domain.PaymentPaid:
			result.Confirmed++
		case domain.PaymentFailed:
			result.Failed++
		default:
			result.Pending++
		}
	}
	return result, nil
}
