package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

// HandleWebhook reconciles a processor push. Every structurally valid delivery is acknowledged;
// only storage faults are returned as errors so the processor retries them.
func (s *Service) HandleWebhook(ctx context.Context, input types.WebhookInput) (*types.WebhookResult, error) {
	ref := strings.TrimSpace(input.TransactionRef)
	if ref == "" {
		return nil, validationError(CodeMissingFields, "transactionRef is required")
	}
	outcome, recognized := classifyWebhook(input.Event, input.Status)
	if !recognized {
		return &types.WebhookResult{Reason: types.ReasonUnrecognizedEvent}, nil
	}
	result := &types.WebhookResult{Recognized: true}

	fingerprint, err := FingerprintWebhook(input)
	if err != nil {
		return nil, err
	}
	if s.receipts != nil {
		receipt, err := s.receipts.Get(ctx, fingerprint)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			result.OrderID = receipt.OrderID
			result.Reason = types.ReasonDuplicateDelivery
			return result, nil
		}
	}

	order, err := s.resolveOrder(ctx, ref)
	if errors.Is(err, ErrOrderNotFound) {
		result.Reason = types.ReasonOrderNotFound
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.OrderID = order.ID

	evidence := settleOutcome(order, domain.Evidence{
		TransactionRef: ref,
		Channel:        domain.ChannelWebhook,
		Outcome:        outcome,
		Amount:         input.Amount,
		Currency:       input.Currency,
		RawPayload:     rawJSON(input.RawBody),
	})
	reconciled, err := s.Reconcile(ctx, order.ID, evidence)
	switch {
	case errors.Is(err, ErrTransactionMismatch):
		result.Reason = types.ReasonTransactionMismatch
		return result, nil
	case errors.Is(err, ErrOrderNotFound):
		result.Reason = types.ReasonOrderNotFound
		return result, nil
	case err != nil:
		return nil, err
	}
	result.Applied = reconciled.Applied
	result.PaymentStatus = reconciled.Order.PaymentStatus

	if s.receipts != nil {
		if _, err := s.receipts.Save(ctx, ports.WebhookReceipt{
			ID:             s.newID(),
			Fingerprint:    fingerprint,
			TransactionRef: ref,
			OrderID:        order.ID,
			Event:          input.Event,
			Status:         input.Status,
			Applied:        reconciled.Applied,
		}); err != nil {
			return nil, err
		}
	}
	if !reconciled.Order.PaymentStatus.Terminal() {
		result.ConfirmationErr = s.scheduleConfirmation(ctx, order.ID)
	}
	return result, nil
}

// resolveOrder finds the order by its stored reference, falling back to the id embedded in
// references minted by this service.
func (s *Service) resolveOrder(ctx context.Context, ref string) (*domain.Order, error) {
	order, err := s.orders.FindByTransactionRef(ctx, ref)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return nil, mapError(err)
	}
	orderID, ok := domain.OrderIDFromTransactionRef(ref)
	if !ok {
		return nil, mapError(err)
	}
	order, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, mapError(err)
	}
	return order, nil
}

// classifyWebhook maps a processor event to evidence. A known status wins over the event name.
func classifyWebhook(event, status string) (domain.Outcome, bool) {
	if strings.Contains(strings.ToLower(event), "refund") {
		return "", false
	}
	if outcome, ok := statusOutcome(status); ok {
		if event == "" || knownEventPrefix(event) {
			return outcome, true
		}
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(event)) {
	case "charge.complete", "charge.success", "charge.completed", "payment.complete", "payment.success", "payment.completed":
		return domain.OutcomeSuccess, true
	case "charge.failed", "charge.failure", "payment.failed":
		return domain.OutcomeFailure, true
	case "charge.pending", "payment.pending":
		return domain.OutcomeInconclusive, true
	default:
		return "", false
	}
}

func statusOutcome(status string) (domain.Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "successful", "completed":
		return domain.OutcomeSuccess, true
	case "failed", "failure", "cancelled", "canceled", "declined":
		return domain.OutcomeFailure, true
	case "pending", "processing":
		return domain.OutcomeInconclusive, true
	default:
		return "", false
	}
}

func knownEventPrefix(event string) bool {
	event = strings.ToLower(strings.TrimSpace(event))
	return strings.HasPrefix(event, "charge.") || strings.HasPrefix(event, "payment.")
}

func rawJSON(body []byte) json.RawMessage {
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}
	return append(json.RawMessage(nil), body...)
}
