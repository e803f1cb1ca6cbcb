package application

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Initiate starts a processor checkout for an existing order and returns the hosted page URL.
// The transaction reference is stored only after the processor accepted it; an order that already
// holds one reuses it.
func (s *Service) Initiate(ctx context.Context, input types.InitiateInput) (*types.InitiateResult, error) {
	if err := validateInitiate(input); err != nil {
		return nil, err
	}
	if s.gateway == nil || !s.gateway.Configured() {
		return nil, mapError(ports.ErrGatewayNotConfigured)
	}

	order, err := s.orders.Get(ctx, input.OrderID)
	if err != nil {
		return nil, mapError(err)
	}
	if input.Caller != nil && !input.Caller.CanAccess(order) {
		return nil, mapError(ports.ErrNotFound)
	}
	if !order.OnlinePayable() || order.PaymentStatus.Sticky() {
		return nil, mapError(domain.ErrOrderNotPayable)
	}
	if !input.Amount.Equal(order.TotalAmount) {
		return nil, validationError(CodeInvalidAmount, fmt.Sprintf("amount %s does not match order total %s", input.Amount.StringFixed(2), order.TotalAmount.StringFixed(2)))
	}

	ref := strings.TrimSpace(input.TransactionRef)
	if ref == "" {
		ref = firstNonEmpty(order.TransactionRef, domain.NewTransactionRef(order.ID, s.now()))
	}
	if _, err := order.Clone().AssignTransactionRef(ref); err != nil {
		return nil, mapError(err)
	}

	session := s.issueCapsule(input.Caller, order.ID)
	checkout, err := s.gateway.Initialize(ctx, ports.InitializeRequest{
		OrderID:         order.ID,
		TransactionRef:  ref,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		Email:           input.Email,
		FullName:        input.FullName,
		Phone:           input.Phone,
		DeliveryAddress: input.DeliveryAddress,
		City:            input.City,
		State:           input.State,
		Country:         input.Country,
		ReturnURL:       s.callbackURL(order.ID, session),
		CallbackURL:     s.webhookURL(),
	})
	if err != nil {
		return nil, mapError(err)
	}
	if _, err := s.reserveTransactionRef(ctx, order.ID, ref); err != nil {
		return nil, err
	}
	if checkout.TransactionRef == "" {
		checkout.TransactionRef = ref
	}
	return &types.InitiateResult{
		OrderID:        order.ID,
		CheckoutURL:    checkout.CheckoutURL,
		TransactionRef: checkout.TransactionRef,
		SessionIssued:  session != "",
	}, nil
}

func validateInitiate(input types.InitiateInput) error {
	var missing []string
	if strings.TrimSpace(input.OrderID) == "" {
		missing = append(missing, "orderId")
	}
	if input.Amount == nil {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(input.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(input.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if len(missing) > 0 {
		return validationError(CodeMissingFields, "missing required fields: "+strings.Join(missing, ", "))
	}
	if !input.Amount.IsPositive() {
		return validationError(CodeInvalidAmount, "amount must be greater than zero")
	}
	if !emailPattern.MatchString(strings.TrimSpace(input.Email)) {
		return validationError(CodeInvalidEmail, "email address is not valid")
	}
	return nil
}

// issueCapsule mints a session capsule when the caller presented a bearer token. Failures only
// mean the session will not be restored after the redirect.
func (s *Service) issueCapsule(caller *domain.Principal, orderID string) string {
	if s.capsules == nil || caller == nil || caller.System || caller.Token == "" {
		return ""
	}
	capsule, err := s.capsules.Encode(caller.UserID, orderID, caller.Token)
	if err != nil {
		return ""
	}
	return capsule
}

func (s *Service) callbackURL(orderID, session string) string {
	base := strings.TrimRight(s.urls.PublicBaseURL, "/")
	if base == "" {
		return ""
	}
	target := base + "/payment/callback/" + url.PathEscape(orderID)
	if session != "" {
		target += "?" + url.Values{"session": {session}}.Encode()
	}
	return target
}

func (s *Service) webhookURL() string {
	base := strings.TrimRight(s.urls.PublicBaseURL, "/")
	if base == "" {
		return ""
	}
	return base + "/payment/webhook"
}
