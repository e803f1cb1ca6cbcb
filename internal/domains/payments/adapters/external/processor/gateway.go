package processor

import (
	"context"
	"errors"
	"strings"

	processorclient "github.com/Apurer/payment-reconciler/internal/clients/http/processor"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

// Gateway implements the outbound processor port on top of the HTTP client.
type Gateway struct {
	client *processorclient.Client
}

// NewGateway wires a processor HTTP client into a gateway adapter.
func NewGateway(client *processorclient.Client) *Gateway {
	return &Gateway{client: client}
}

// Configured reports whether processor credentials are present.
func (g *Gateway) Configured() bool {
	return g != nil && g.client.Configured()
}

// Initialize opens a hosted checkout for the order.
func (g *Gateway) Initialize(ctx context.Context, req ports.InitializeRequest) (*ports.Checkout, error) {
	if !g.Configured() {
		return nil, ports.ErrGatewayNotConfigured
	}
	checkoutURL, err := g.client.Initialize(ctx, ToInitializeParams(req))
	if err != nil {
		return nil, toGatewayError(err)
	}
	return &ports.Checkout{CheckoutURL: checkoutURL, TransactionRef: req.TransactionRef}, nil
}

// Verify asks the processor for the authoritative state of a transaction.
func (g *Gateway) Verify(ctx context.Context, transactionRef string) (*ports.Verification, error) {
	if !g.Configured() {
		return nil, &ports.GatewayError{Kind: ports.GatewayAuthError, Message: "processor secret key is not configured", Err: ports.ErrGatewayNotConfigured}
	}
	resp, err := g.client.Verify(ctx, transactionRef)
	if err != nil {
		return nil, toGatewayError(err)
	}
	return ToVerification(transactionRef, resp), nil
}

// ToInitializeParams maps the port request onto the client's raw checkout fields.
func ToInitializeParams(req ports.InitializeRequest) processorclient.InitializeParams {
	return processorclient.InitializeParams{
		TransactionRef:  req.TransactionRef,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Email:           req.Email,
		FullName:        req.FullName,
		Phone:           req.Phone,
		DeliveryAddress: req.DeliveryAddress,
		City:            req.City,
		State:           req.State,
		Country:         req.Country,
		CallbackURL:     req.CallbackURL,
		ReturnURL:       req.ReturnURL,
	}
}

// ToVerification converts the processor envelope into evidence for reconciliation.
func ToVerification(transactionRef string, resp *processorclient.VerifyResponse) *ports.Verification {
	verification := &ports.Verification{
		TransactionRef: transactionRef,
		Outcome:        ports.VerificationPending,
		RawPayload:     resp.Raw,
	}
	if strings.EqualFold(resp.Status, "failed") && resp.Data == nil {
		verification.Outcome = ports.VerificationFailed
		return verification
	}
	if resp.Data == nil {
		return verification
	}
	if resp.Data.TxRef != "" {
		verification.TransactionRef = resp.Data.TxRef
	}
	verification.Amount = resp.Data.Amount
	verification.Currency = resp.Data.Currency
	switch strings.ToLower(strings.TrimSpace(resp.Data.Status)) {
	case "success", "successful", "completed":
		if strings.EqualFold(resp.Status, "success") {
			verification.Outcome = ports.VerificationSuccess
		}
	case "failed", "failure", "cancelled", "canceled", "declined", "reversed":
		verification.Outcome = ports.VerificationFailed
	}
	return verification
}

func toGatewayError(err error) error {
	if errors.Is(err, processorclient.ErrNotConfigured) {
		return ports.ErrGatewayNotConfigured
	}
	var procErr *processorclient.Error
	if !errors.As(err, &procErr) {
		return &ports.GatewayError{Kind: ports.GatewayAPIError, Message: err.Error(), Err: err}
	}
	kind := ports.GatewayAPIError
	switch procErr.Kind {
	case processorclient.KindTimeout:
		kind = ports.GatewayTimeout
	case processorclient.KindNetwork:
		kind = ports.GatewayNetworkError
	case processorclient.KindNotFound:
		kind = ports.GatewayNotFound
	case processorclient.KindAuth:
		kind = ports.GatewayAuthError
	}
	return &ports.GatewayError{Kind: kind, StatusCode: procErr.StatusCode, Message: procErr.Message, Err: err}
}

var _ ports.Gateway = (*Gateway)(nil)
