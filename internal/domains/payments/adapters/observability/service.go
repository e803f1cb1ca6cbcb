package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

const tracerName = "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/observability/service"

// Service decorates the payments application port with tracing, logging and metrics.
type Service struct {
	inner   ports.Service
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer injects a tracer implementation.
func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

// WithMeter injects the meter used to create service metrics instruments.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.metrics = newServiceMetrics(m)
	}
}

// New wires a decorator around the core service.
func New(inner ports.Service, opts ...Option) ports.Service {
	s := &Service{
		inner:   inner,
		tracer:  nooptrace.NewTracerProvider().Tracer(tracerName),
		logger:  defaultLogger(),
		metrics: newServiceMetrics(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}
	return s
}

// Initiate starts a checkout with instrumentation.
func (s *Service) Initiate(ctx context.Context, input types.InitiateInput) (*types.InitiateResult, error) {
	ctx, span := s.startSpan(ctx, "Service.Initiate", attribute.String("order.id", input.OrderID))
	defer span.End()

	s.logInfo(ctx, "initiating payment", slog.String("order.id", input.OrderID))
	result, err := s.inner.Initiate(ctx, input)
	if err != nil {
		s.metrics.recordGatewayError(ctx, err)
		return nil, s.handleError(ctx, span, err, "failed to initiate payment", slog.String("order.id", input.OrderID))
	}
	span.SetAttributes(attribute.String("payment.transaction_ref", result.TransactionRef))
	s.logInfo(ctx, "payment initiated",
		slog.String("order.id", result.OrderID),
		slog.String("payment.transaction_ref", result.TransactionRef),
		slog.Bool("session.issued", result.SessionIssued),
	)
	return result, nil
}

// VerifyOrder checks an order's payment by id.
func (s *Service) VerifyOrder(ctx context.Context, input types.VerifyOrderInput) (*types.VerifyResult, error) {
	ctx, span := s.startSpan(ctx, "Service.VerifyOrder",
		attribute.String("order.id", input.OrderID),
		attribute.Bool("caller.authenticated", input.Caller != nil),
	)
	defer span.End()

	s.logInfo(ctx, "verifying order payment", slog.String("order.id", input.OrderID))
	result, err := s.inner.VerifyOrder(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to verify order payment", slog.String("order.id", input.OrderID))
	}
	s.recordVerify(ctx, span, result)
	return result, nil
}

// VerifyTransaction checks an order's payment by transaction reference.
func (s *Service) VerifyTransaction(ctx context.Context, input types.VerifyTransactionInput) (*types.VerifyResult, error) {
	ctx, span := s.startSpan(ctx, "Service.VerifyTransaction", attribute.String("payment.transaction_ref", input.TransactionRef))
	defer span.End()

	s.logInfo(ctx, "verifying transaction", slog.String("payment.transaction_ref", input.TransactionRef))
	result, err := s.inner.VerifyTransaction(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to verify transaction", slog.String("payment.transaction_ref", input.TransactionRef))
	}
	s.recordVerify(ctx, span, result)
	return result, nil
}

// HandleWebhook reconciles a processor push.
func (s *Service) HandleWebhook(ctx context.Context, input types.WebhookInput) (*types.WebhookResult, error) {
	ctx, span := s.startSpan(ctx, "Service.HandleWebhook",
		attribute.String("webhook.event", input.Event),
		attribute.String("payment.transaction_ref", input.TransactionRef),
	)
	defer span.End()

	s.logInfo(ctx, "webhook received", slog.String("webhook.event", input.Event), slog.String("payment.transaction_ref", input.TransactionRef))
	result, err := s.inner.HandleWebhook(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to handle webhook", slog.String("payment.transaction_ref", input.TransactionRef))
	}
	s.metrics.recordWebhook(ctx, input.Event, result.Reason)
	span.SetAttributes(attribute.Bool("webhook.applied", result.Applied), attribute.String("webhook.reason", result.Reason))
	if result.Reason == types.ReasonTransactionMismatch {
		s.logSecurity(ctx, "webhook reference does not match order",
			slog.String("order.id", result.OrderID),
			slog.String("payment.transaction_ref", input.TransactionRef),
		)
	}
	if result.ConfirmationErr != nil {
		span.RecordError(result.ConfirmationErr)
		s.logWarn(ctx, "failed to schedule payment confirmation",
			slog.String("order.id", result.OrderID),
			slog.String("error", result.ConfirmationErr.Error()),
		)
	}
	s.recordReconcile(ctx, domain.ChannelWebhook, result.Applied, result.PaymentStatus)
	s.logInfo(ctx, "webhook handled",
		slog.String("order.id", result.OrderID),
		slog.Bool("webhook.applied", result.Applied),
		slog.String("webhook.reason", result.Reason),
		slog.String("payment.status", string(result.PaymentStatus)),
	)
	return result, nil
}

// HandleCallback reconciles the browser redirect.
func (s *Service) HandleCallback(ctx context.Context, input types.CallbackInput) (*types.CallbackResult, error) {
	ctx, span := s.startSpan(ctx, "Service.HandleCallback",
		attribute.String("order.id", input.OrderID),
		attribute.String("callback.status", input.Status),
	)
	defer span.End()

	s.logInfo(ctx, "callback received", slog.String("order.id", input.OrderID), slog.String("callback.status", input.Status))
	result, err := s.inner.HandleCallback(ctx, input)
	if err != nil {
		if errors.Is(err, application.ErrTransactionMismatch) {
			s.logSecurity(ctx, "callback reference does not match order",
				slog.String("order.id", input.OrderID),
				slog.String("payment.transaction_ref", input.TransactionRef),
			)
		}
		s.metrics.recordRejected(ctx, domain.ChannelCallback)
		return result, s.handleError(ctx, span, err, "failed to handle callback", slog.String("order.id", input.OrderID))
	}
	span.SetAttributes(
		attribute.Bool("callback.provisional", result.Provisional),
		attribute.Bool("session.restored", result.SessionRestored),
	)
	if result.ConfirmationErr != nil {
		s.logError(ctx, "failed to schedule payment confirmation", result.ConfirmationErr, slog.String("order.id", input.OrderID))
	}
	s.logInfo(ctx, "callback handled",
		slog.String("order.id", result.OrderID),
		slog.String("payment.status", string(result.PaymentStatus)),
		slog.Bool("callback.provisional", result.Provisional),
	)
	return result, nil
}

// Status loads the payment summary of an order.
func (s *Service) Status(ctx context.Context, orderID string) (*types.StatusView, error) {
	ctx, span := s.startSpan(ctx, "Service.Status", attribute.String("order.id", orderID))
	defer span.End()

	result, err := s.inner.Status(ctx, orderID)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to load payment status", slog.String("order.id", orderID))
	}
	span.SetAttributes(attribute.String("payment.status", string(result.PaymentStatus)))
	return result, nil
}

// Reconcile merges evidence into an order.
func (s *Service) Reconcile(ctx context.Context, orderID string, evidence domain.Evidence) (*types.ReconcileResult, error) {
	ctx, span := s.startSpan(ctx, "Service.Reconcile",
		attribute.String("order.id", orderID),
		attribute.String("evidence.channel", string(evidence.Channel)),
		attribute.String("evidence.outcome", string(evidence.Outcome)),
	)
	defer span.End()

	result, err := s.inner.Reconcile(ctx, orderID, evidence)
	if err != nil {
		s.metrics.recordRejected(ctx, evidence.Channel)
		if errors.Is(err, application.ErrTransactionMismatch) {
			s.logSecurity(ctx, "evidence reference does not match order",
				slog.String("order.id", orderID),
				slog.String("evidence.channel", string(evidence.Channel)),
			)
		}
		return nil, s.handleError(ctx, span, err, "failed to reconcile payment", slog.String("order.id", orderID))
	}
	s.recordReconcile(ctx, evidence.Channel, result.Applied, result.Order.PaymentStatus)
	return result, nil
}

// SweepPending re-verifies unresolved orders.
func (s *Service) SweepPending(ctx context.Context, input types.SweepInput) (*types.SweepResult, error) {
	ctx, span := s.startSpan(ctx, "Service.SweepPending", attribute.Int("sweep.limit", input.Limit))
	defer span.End()

	s.logInfo(ctx, "sweeping pending payments", slog.Duration("sweep.older_than", input.OlderThan))
	result, err := s.inner.SweepPending(ctx, input)
	if err != nil {
		return result, s.handleError(ctx, span, err, "failed to sweep pending payments")
	}
	span.SetAttributes(
		attribute.Int("sweep.checked", result.Checked),
		attribute.Int("sweep.confirmed", result.Confirmed),
		attribute.Int("sweep.errors", result.Errors),
	)
	s.logInfo(ctx, "swept pending payments",
		slog.Int("sweep.checked", result.Checked),
		slog.Int("sweep.confirmed", result.Confirmed),
		slog.Int("sweep.failed", result.Failed),
		slog.Int("sweep.pending", result.Pending),
		slog.Int("sweep.errors", result.Errors),
	)
	return result, nil
}

func (s *Service) recordVerify(ctx context.Context, span trace.Span, result *types.VerifyResult) {
	span.SetAttributes(
		attribute.String("verify.source", result.Source),
		attribute.String("payment.status", string(result.PaymentStatus)),
	)
	if result.GatewayErr != nil {
		s.metrics.recordGatewayError(ctx, result.GatewayErr)
		s.logWarn(ctx, "payment gateway unavailable during verification",
			slog.String("order.id", result.OrderID),
			slog.String("error", result.GatewayErr.Error()),
		)
	}
	s.logInfo(ctx, "payment verified",
		slog.String("order.id", result.OrderID),
		slog.String("verify.source", result.Source),
		slog.String("payment.status", string(result.PaymentStatus)),
	)
}

func (s *Service) recordReconcile(ctx context.Context, channel domain.Channel, applied bool, status domain.PaymentStatus) {
	if status == "" {
		return
	}
	if applied {
		s.metrics.recordApplied(ctx, channel, status)
		return
	}
	s.metrics.recordNoop(ctx, channel)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := s.tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) logInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (s *Service) logWarn(ctx context.Context, msg string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}

// logSecurity flags evidence that names a transaction the order does not own.
func (s *Service) logSecurity(ctx context.Context, msg string, attrs ...slog.Attr) {
	s.logWarn(ctx, msg, append(attrs, slog.String("security.event", "transaction_mismatch"))...)
}

func (s *Service) logError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func (s *Service) handleError(ctx context.Context, span trace.Span, err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.logError(ctx, msg, err, attrs...)
	return err
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serviceMetrics struct {
	reconcileApplied  metric.Int64Counter
	reconcileNoop     metric.Int64Counter
	reconcileRejected metric.Int64Counter
	gatewayErrors     metric.Int64Counter
	webhookEvents     metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	applied, _ := m.Int64Counter("payments.reconcile.applied", metric.WithDescription("Evidence that changed an order"))
	noop, _ := m.Int64Counter("payments.reconcile.noop", metric.WithDescription("Evidence absorbed without change"))
	rejected, _ := m.Int64Counter("payments.reconcile.rejected", metric.WithDescription("Evidence rejected by reconciliation"))
	gatewayErrors, _ := m.Int64Counter("payments.gateway.errors", metric.WithDescription("Payment gateway faults by kind"))
	webhookEvents, _ := m.Int64Counter("payments.webhook.events", metric.WithDescription("Webhook deliveries by event and outcome"))
	return serviceMetrics{
		reconcileApplied:  applied,
		reconcileNoop:     noop,
		reconcileRejected: rejected,
		gatewayErrors:     gatewayErrors,
		webhookEvents:     webhookEvents,
	}
}

func (m serviceMetrics) recordApplied(ctx context.Context, channel domain.Channel, status domain.PaymentStatus) {
	addCounter(ctx, m.reconcileApplied, 1,
		attribute.String("evidence.channel", string(channel)),
		attribute.String("payment.status", string(status)),
	)
}

func (m serviceMetrics) recordNoop(ctx context.Context, channel domain.Channel) {
	addCounter(ctx, m.reconcileNoop, 1, attribute.String("evidence.channel", string(channel)))
}

func (m serviceMetrics) recordRejected(ctx context.Context, channel domain.Channel) {
	addCounter(ctx, m.reconcileRejected, 1, attribute.String("evidence.channel", string(channel)))
}

func (m serviceMetrics) recordGatewayError(ctx context.Context, err error) {
	gwErr, ok := ports.AsGatewayError(err)
	if !ok {
		return
	}
	addCounter(ctx, m.gatewayErrors, 1, attribute.String("gateway.error_kind", string(gwErr.Kind)))
}

func (m serviceMetrics) recordWebhook(ctx context.Context, event, reason string) {
	if reason == "" {
		reason = "reconciled"
	}
	addCounter(ctx, m.webhookEvents, 1,
		attribute.String("webhook.event", event),
		attribute.String("webhook.outcome", reason),
	)
}

func addCounter(ctx context.Context, counter metric.Int64Counter, value int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

var _ ports.Service = (*Service)(nil)
