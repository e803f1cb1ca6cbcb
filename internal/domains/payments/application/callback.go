package application

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

// HandleCallback reconciles the browser redirect from the hosted checkout and builds the
// front-end redirect. A success status is provisional unless the redirect is signed.
func (s *Service) HandleCallback(ctx context.Context, input types.CallbackInput) (*types.CallbackResult, error) {
	result := &types.CallbackResult{OrderID: input.OrderID}
	restore := s.restoreSession(input)
	result.SessionRestored = restore != nil

	if strings.TrimSpace(input.OrderID) == "" {
		result.Reason = types.ReasonOrderNotFound
		result.RedirectURL = s.failureRedirect(input, result.Reason, restore)
		return result, validationError(CodeMissingFields, "orderId is required")
	}

	outcome, provisional := s.callbackOutcome(input)
	result.Provisional = provisional
	reconciled, err := s.Reconcile(ctx, input.OrderID, domain.Evidence{
		TransactionRef: strings.TrimSpace(input.TransactionRef),
		Channel:        domain.ChannelCallback,
		Outcome:        outcome,
		RawPayload:     callbackPayload(input),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			result.Reason = types.ReasonOrderNotFound
		case errors.Is(err, ErrTransactionMismatch):
			result.Reason = types.ReasonTransactionMismatch
		default:
			result.Reason = types.ReasonCallbackError
		}
		result.RedirectURL = s.failureRedirect(input, result.Reason, restore)
		return result, err
	}

	order := reconciled.Order
	result.PaymentStatus = order.PaymentStatus
	if !order.PaymentStatus.Terminal() {
		result.ConfirmationErr = s.scheduleConfirmation(ctx, order.ID)
	}
	result.RedirectURL = s.orderRedirect(order, input, restore)
	return result, nil
}

// restoreSession decodes the capsule. It only restores a session minted for this order.
func (s *Service) restoreSession(input types.CallbackInput) *ports.Capsule {
	if s.capsules == nil || strings.TrimSpace(input.Session) == "" {
		return nil
	}
	capsule, err := s.capsules.Decode(input.Session)
	if err != nil || capsule.OrderID != input.OrderID {
		return nil
	}
	return capsule
}

func (s *Service) callbackOutcome(input types.CallbackInput) (domain.Outcome, bool) {
	outcome, ok := statusOutcome(input.Status)
	if !ok {
		return domain.OutcomeInconclusive, false
	}
	if outcome != domain.OutcomeSuccess {
		return outcome, false
	}
	if s.callbackSignatureValid(input) {
		return domain.OutcomeSuccess, false
	}
	return domain.OutcomeInconclusive, true
}

func (s *Service) callbackSignatureValid(input types.CallbackInput) bool {
	if s.callbackSigs == nil || !s.callbackSigs.Enabled() || input.Signature == "" {
		return false
	}
	return s.callbackSigs.Verify(CallbackSignaturePayload(input.OrderID, input.Status, input.TransactionRef), input.Signature)
}

// CallbackSignaturePayload is the canonical string a processor signs for a redirect.
func CallbackSignaturePayload(orderID, status, transactionRef string) []byte {
	return []byte(strings.Join([]string{orderID, strings.ToLower(strings.TrimSpace(status)), strings.TrimSpace(transactionRef)}, "|"))
}

func (s *Service) orderRedirect(order *domain.Order, input types.CallbackInput, restore *ports.Capsule) string {
	query := url.Values{}
	query.Set("orderId", order.ID)
	if ref := firstNonEmpty(order.TransactionRef, input.TransactionRef); ref != "" {
		query.Set("transactionRef", ref)
	}
	page := "success"
	switch order.PaymentStatus {
	case domain.PaymentFailed:
		page = "failed"
		query.Set("error", "payment_failed")
	case domain.PaymentPaid, domain.PaymentRefunded:
		query.Set("verified", "true")
	default:
		query.Set("verified", "false")
	}
	appendRestore(query, restore)
	return s.frontendURL("/payment/"+page+"/"+url.PathEscape(order.ID), query)
}

func (s *Service) failureRedirect(input types.CallbackInput, reason string, restore *ports.Capsule) string {
	query := url.Values{}
	query.Set("reason", reason)
	if input.OrderID != "" {
		query.Set("orderId", input.OrderID)
	}
	appendRestore(query, restore)
	return s.frontendURL("/payment/failed", query)
}

func (s *Service) frontendURL(path string, query url.Values) string {
	target := strings.TrimRight(s.urls.FrontendURL, "/") + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

func appendRestore(query url.Values, restore *ports.Capsule) {
	if restore == nil {
		return
	}
	query.Set("restoreAuth", "true")
	query.Set("authToken", restore.BearerToken)
}

func callbackPayload(input types.CallbackInput) json.RawMessage {
	raw, err := json.Marshal(struct {
		Status         string `json:"status"`
		TransactionRef string `json:"transactionRef,omitempty"`
		Signed         bool   `json:"signed"`
	}{
		Status:         input.Status,
		TransactionRef: input.TransactionRef,
		Signed:         input.Signature != "",
	})
	if err != nil {
		return nil
	}
	return raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
