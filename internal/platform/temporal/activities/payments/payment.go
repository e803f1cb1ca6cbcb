package payments

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	paymentsapp "github.com/Apurer/payment-reconciler/internal/domains/payments/application"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

const (
	// VerifyPaymentActivityName asks the processor for the authoritative status of an order.
	VerifyPaymentActivityName = "payments.activities.VerifyPayment"

	errTypeGatewayUnavailable = "GatewayUnavailable"
	errTypeOrderNotFound      = "OrderNotFound"
)

// VerifyPaymentInput identifies the order to confirm.
type VerifyPaymentInput struct {
	OrderID string
}

// VerifyPaymentResult is the order state after one verification.
type VerifyPaymentResult struct {
	OrderID       string
	PaymentStatus string
	Terminal      bool
	Source        string
}

// Activities groups activities that operate on the payments bounded context.
type Activities struct {
	service ports.Service
}

// NewActivities wires the payments service into the Temporal activities bundle.
func NewActivities(service ports.Service) *Activities {
	return &Activities{service: service}
}

// VerifyPayment runs one processor verification on behalf of the system. A processor fault is
// returned as a retryable error; an unknown order is not retried.
func (a *Activities) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*VerifyPaymentResult, error) {
	logger := activity.GetLogger(ctx)
	if a == nil || a.service == nil {
		logger.Error("verify payment activity not initialized", "orderId", input.OrderID)
		return nil, errors.New("verify payment activity not initialized")
	}

	var hb verifyHeartbeat
	if activity.HasHeartbeatDetails(ctx) {
		_ = activity.GetHeartbeatDetails(ctx, &hb)
	}
	if hb.Result != nil && hb.Result.Terminal {
		logger.Info("VerifyPayment resolved in prior attempt; skipping", "orderId", input.OrderID, "paymentStatus", hb.Result.PaymentStatus)
		return hb.Result, nil
	}

	logger.Info("VerifyPayment activity started", "orderId", input.OrderID)
	verified, err := a.service.VerifyOrder(ctx, types.VerifyOrderInput{
		OrderID: input.OrderID,
		Caller:  domain.SystemPrincipal,
	})
	if err != nil {
		logger.Error("VerifyPayment activity failed", "orderId", input.OrderID, "error", err)
		if errors.Is(err, paymentsapp.ErrOrderNotFound) || errors.Is(err, paymentsapp.ErrInvalidInput) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeOrderNotFound, err)
		}
		return nil, err
	}
	if verified.Source == types.SourceUnavailable {
		logger.Warn("VerifyPayment gateway unavailable", "orderId", input.OrderID, "error", verified.GatewayErr)
		return nil, temporal.NewApplicationErrorWithCause("payment gateway unavailable", errTypeGatewayUnavailable, verified.GatewayErr)
	}

	result := &VerifyPaymentResult{
		OrderID:       verified.OrderID,
		PaymentStatus: string(verified.PaymentStatus),
		Terminal:      verified.PaymentStatus.Terminal(),
		Source:        verified.Source,
	}
	activity.RecordHeartbeat(ctx, verifyHeartbeat{Result: result})
	logger.Info("VerifyPayment activity completed", "orderId", result.OrderID, "paymentStatus", result.PaymentStatus)
	return result, nil
}

type verifyHeartbeat struct {
	Result *VerifyPaymentResult
}
