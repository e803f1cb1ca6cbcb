package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
	paymentworkflows "github.com/Apurer/payment-reconciler/internal/platform/temporal/workflows/payments"
)

var (
	_ ports.ConfirmationScheduler = (*TemporalConfirmations)(nil)
	_ ports.ConfirmationScheduler = (*InlineConfirmations)(nil)
)

// TemporalConfirmations starts payment confirmation workflows on a Temporal cluster.
type TemporalConfirmations struct {
	client    client.Client
	taskQueue string
	budget    paymentworkflows.PaymentConfirmationWorkflowInput
}

// TemporalOption customizes the workflow budget.
type TemporalOption func(*TemporalConfirmations)

// WithCheckBudget overrides the number of checks and the backoff bounds.
func WithCheckBudget(maxChecks int, initialDelay, maxDelay time.Duration) TemporalOption {
	return func(o *TemporalConfirmations) {
		o.budget.MaxChecks = maxChecks
		o.budget.InitialDelay = initialDelay
		o.budget.MaxDelay = maxDelay
	}
}

// NewTemporalConfirmations wires a Temporal client into the scheduler.
func NewTemporalConfirmations(c client.Client, opts ...TemporalOption) *TemporalConfirmations {
	o := &TemporalConfirmations{client: c, taskQueue: paymentworkflows.PaymentConfirmationTaskQueue}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ScheduleConfirmation starts the confirmation workflow without waiting for it. A run already in
// flight for the order counts as scheduled.
func (o *TemporalConfirmations) ScheduleConfirmation(ctx context.Context, orderID string) error {
	if o == nil || o.client == nil {
		return errors.New("temporal payment confirmations not configured")
	}
	input := o.budget
	input.OrderID = orderID
	input.TraceID = workflowTraceID(ctx)
	_, err := o.client.ExecuteWorkflow(
		ctx,
		client.StartWorkflowOptions{
			ID:        ConfirmationWorkflowID(orderID),
			TaskQueue: o.taskQueue,
		},
		paymentworkflows.PaymentConfirmationWorkflowName,
		input,
	)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return nil
		}
		return fmt.Errorf("start payment confirmation: %w", err)
	}
	return nil
}

// ConfirmationWorkflowID is deterministic per order so concurrent provisional evidence starts one run.
func ConfirmationWorkflowID(orderID string) string {
	return "payment-confirmation-" + orderID
}

func workflowTraceID(ctx context.Context) string {
	spanCtx := oteltrace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// InlineConfirmations runs one detached verification per order without durable orchestration,
// useful for tests or dev fallbacks.
type InlineConfirmations struct {
	mu       sync.Mutex
	service  ports.Service
	logger   *slog.Logger
	delay    time.Duration
	timeout  time.Duration
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// NewInlineConfirmations builds the fallback scheduler. delay is how long to wait before verifying.
func NewInlineConfirmations(logger *slog.Logger, delay time.Duration) *InlineConfirmations {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineConfirmations{
		logger:   logger,
		delay:    delay,
		timeout:  30 * time.Second,
		inFlight: make(map[string]struct{}),
	}
}

// Attach sets the service used for verification. The service itself depends on the scheduler,
// so it is bound after construction.
func (o *InlineConfirmations) Attach(service ports.Service) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.service = service
}

// ScheduleConfirmation verifies the order once in the background.
func (o *InlineConfirmations) ScheduleConfirmation(ctx context.Context, orderID string) error {
	if o == nil {
		return errors.New("inline payment confirmations not configured")
	}
	o.mu.Lock()
	service := o.service
	if service == nil {
		o.mu.Unlock()
		return errors.New("inline payment confirmations not attached to a service")
	}
	if _, busy := o.inFlight[orderID]; busy {
		o.mu.Unlock()
		return nil
	}
	o.inFlight[orderID] = struct{}{}
	o.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(orderID)
		if o.delay > 0 {
			time.Sleep(o.delay)
		}
		runCtx, cancel := context.WithTimeout(detached, o.timeout)
		defer cancel()
		result, err := service.VerifyOrder(runCtx, types.VerifyOrderInput{OrderID: orderID, Caller: domain.SystemPrincipal})
		if err != nil {
			o.logger.LogAttrs(runCtx, slog.LevelWarn, "inline payment confirmation failed",
				slog.String("orderId", orderID), slog.String("error", err.Error()))
			return
		}
		o.logger.LogAttrs(runCtx, slog.LevelInfo, "inline payment confirmation completed",
			slog.String("orderId", orderID),
			slog.String("paymentStatus", string(result.PaymentStatus)),
			slog.String("source", result.Source))
	}()
	return nil
}

// Wait blocks until every scheduled verification has finished.
func (o *InlineConfirmations) Wait() {
	o.wg.Wait()
}

func (o *InlineConfirmations) release(orderID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, orderID)
}
