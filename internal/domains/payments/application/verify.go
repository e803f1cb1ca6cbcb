package application

import (
	"context"
	"strings"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

// VerifyOrder checks an order's payment with the processor unless it is already resolved.
// Anonymous callers may only observe paid orders.
func (s *Service) VerifyOrder(ctx context.Context, input types.VerifyOrderInput) (*types.VerifyResult, error) {
	if strings.TrimSpace(input.OrderID) == "" {
		return nil, validationError(CodeMissingFields, "orderId is required")
	}
	order, err := s.orders.Get(ctx, input.OrderID)
	if err != nil {
		return nil, mapError(err)
	}
	if input.Caller == nil {
		if order.PaymentStatus != domain.PaymentPaid {
			return nil, ErrAuthenticationRequired
		}
	} else if !input.Caller.CanAccess(order) {
		return nil, mapError(ports.ErrNotFound)
	}
	return s.verify(ctx, order)
}

// VerifyTransaction resolves the order by transaction reference; the caller must own it.
func (s *Service) VerifyTransaction(ctx context.Context, input types.VerifyTransactionInput) (*types.VerifyResult, error) {
	if input.Caller == nil {
		return nil, ErrAuthenticationRequired
	}
	ref := strings.TrimSpace(input.TransactionRef)
	if ref == "" {
		return nil, validationError(CodeMissingFields, "transactionRef is required")
	}
	order, err := s.orders.FindByTransactionRef(ctx, ref)
	if err != nil {
		return nil, mapError(err)
	}
	if !input.Caller.CanAccess(order) {
		return nil, mapError(ports.ErrNotFound)
	}
	return s.verify(ctx, order)
}

func (s *Service) verify(ctx context.Context, order *domain.Order) (*types.VerifyResult, error) {
	if order.PaymentStatus.Terminal() {
		return s.verifyResult(order, types.SourceCache), nil
	}
	if order.TransactionRef == "" {
		return s.verifyResult(order, types.SourceNoTransaction), nil
	}
	if s.gateway == nil {
		return s.unavailable(order, ports.ErrGatewayNotConfigured), nil
	}
	verification, err := s.gateway.Verify(ctx, order.TransactionRef)
	if err != nil {
		return s.unavailable(order, err), nil
	}

	evidence := settleOutcome(order, domain.Evidence{
		TransactionRef: order.TransactionRef,
		Channel:        domain.ChannelVerify,
		Outcome:        verificationOutcome(verification.Outcome),
		Amount:         verification.Amount,
		Currency:       verification.Currency,
		RawPayload:     verification.RawPayload,
	})
	result, err := s.Reconcile(ctx, order.ID, evidence)
	if err != nil {
		return nil, err
	}
	return s.verifyResult(result.Order, types.SourceGateway), nil
}

// unavailable reports a processor fault as processing without touching the order.
func (s *Service) unavailable(order *domain.Order, err error) *types.VerifyResult {
	result := s.verifyResult(order, types.SourceUnavailable)
	result.PaymentStatus = domain.PaymentProcessing
	result.RetryAfter = s.retryAfter
	result.GatewayErr = err
	return result
}

func (s *Service) verifyResult(order *domain.Order, source string) *types.VerifyResult {
	result := &types.VerifyResult{
		OrderID:        order.ID,
		Verified:       order.PaymentStatus == domain.PaymentPaid,
		PaymentStatus:  order.PaymentStatus,
		OrderStatus:    order.OrderStatus,
		TransactionRef: order.TransactionRef,
		Source:         source,
	}
	if !order.PaymentStatus.Terminal() {
		result.RetryAfter = s.retryAfter
	}
	return result
}

func verificationOutcome(outcome ports.VerificationOutcome) domain.Outcome {
	switch outcome {
	case ports.VerificationSuccess:
		return domain.OutcomeSuccess
	case ports.VerificationFailed:
		return domain.OutcomeFailure
	default:
		return domain.OutcomeInconclusive
	}
}
