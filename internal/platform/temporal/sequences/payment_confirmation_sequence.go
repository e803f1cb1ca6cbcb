package sequences

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	paymentactivities "github.com/Apurer/payment-reconciler/internal/platform/temporal/activities/payments"
)

// RunPaymentConfirmationSequence performs one authoritative verification of an order. Processor
// outages are retried here; the caller decides whether another check is worth waiting for.
func RunPaymentConfirmationSequence(ctx workflow.Context, orderID string) (*paymentactivities.VerifyPaymentResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("payment confirmation sequence started", "orderId", orderID)
	verifyOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		HeartbeatTimeout:    20 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        4,
			NonRetryableErrorTypes: []string{"OrderNotFound"},
		},
	}

	var result paymentactivities.VerifyPaymentResult
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, verifyOptions),
		paymentactivities.VerifyPaymentActivityName,
		paymentactivities.VerifyPaymentInput{OrderID: orderID},
	).Get(ctx, &result)
	if err != nil {
		logger.Error("payment confirmation sequence failed", "orderId", orderID, "error", err)
		return nil, err
	}
	logger.Info("payment confirmation sequence verified", "orderId", orderID, "paymentStatus", result.PaymentStatus)
	return &result, nil
}
