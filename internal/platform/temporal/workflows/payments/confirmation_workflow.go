package payments

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Apurer/payment-reconciler/internal/platform/temporal/sequences"
)

const (
	// PaymentConfirmationWorkflowName is the public identifier for registering the workflow.
	PaymentConfirmationWorkflowName = "payments.workflows.Confirmation"
	// PaymentConfirmationTaskQueue is the queue consumed by the worker confirming payments.
	PaymentConfirmationTaskQueue = "PAYMENT_CONFIRMATION"

	DefaultMaxChecks    = 6
	DefaultInitialDelay = 30 * time.Second
	DefaultMaxDelay     = 5 * time.Minute
)

// PaymentConfirmationWorkflowInput selects the order and the check budget.
type PaymentConfirmationWorkflowInput struct {
	OrderID      string
	MaxChecks    int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	TraceID      string
}

// PaymentConfirmationResult is the last observed status once the workflow stops checking.
type PaymentConfirmationResult struct {
	OrderID       string
	PaymentStatus string
	Checks        int
	Resolved      bool
}

// PaymentConfirmationWorkflow re-verifies an order with backoff until the processor reports a
// terminal status or the check budget runs out.
func PaymentConfirmationWorkflow(ctx workflow.Context, input PaymentConfirmationWorkflowInput) (*PaymentConfirmationResult, error) {
	logger := workflow.GetLogger(ctx)
	input = withDefaults(input)
	logger.Info("PaymentConfirmationWorkflow started", withTraceID(input.TraceID, "orderId", input.OrderID)...)

	result := &PaymentConfirmationResult{OrderID: input.OrderID}
	delay := input.InitialDelay
	for result.Checks < input.MaxChecks {
		if err := workflow.Sleep(ctx, delay); err != nil {
			return result, err
		}
		result.Checks++
		verified, err := sequences.RunPaymentConfirmationSequence(ctx, input.OrderID)
		switch {
		case err != nil && !retryableCheck(err):
			logger.Error("PaymentConfirmationWorkflow failed", withTraceID(input.TraceID, "orderId", input.OrderID, "error", err)...)
			return result, err
		case err != nil:
			logger.Warn("PaymentConfirmationWorkflow check inconclusive", withTraceID(input.TraceID, "orderId", input.OrderID, "check", result.Checks, "error", err)...)
		default:
			result.PaymentStatus = verified.PaymentStatus
			if verified.Terminal {
				result.Resolved = true
				logger.Info("PaymentConfirmationWorkflow completed", withTraceID(input.TraceID, "orderId", input.OrderID, "paymentStatus", verified.PaymentStatus)...)
				return result, nil
			}
		}
		delay *= 2
		if delay > input.MaxDelay {
			delay = input.MaxDelay
		}
	}
	logger.Warn("PaymentConfirmationWorkflow exhausted check budget", withTraceID(input.TraceID, "orderId", input.OrderID, "checks", result.Checks)...)
	return result, nil
}

func withDefaults(input PaymentConfirmationWorkflowInput) PaymentConfirmationWorkflowInput {
	if input.MaxChecks <= 0 {
		input.MaxChecks = DefaultMaxChecks
	}
	if input.InitialDelay <= 0 {
		input.InitialDelay = DefaultInitialDelay
	}
	if input.MaxDelay < input.InitialDelay {
		input.MaxDelay = DefaultMaxDelay
		if input.MaxDelay < input.InitialDelay {
			input.MaxDelay = input.InitialDelay
		}
	}
	return input
}

// retryableCheck reports whether a failed check should be followed by another one later.
func retryableCheck(err error) bool {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return !appErr.NonRetryable()
	}
	return !temporal.IsCanceledError(err)
}

func withTraceID(traceID string, keyvals ...interface{}) []interface{} {
	if traceID == "" {
		return keyvals
	}
	return append(keyvals, "traceId", traceID)
}
