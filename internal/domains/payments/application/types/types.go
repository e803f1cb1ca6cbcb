package types

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
)

// InitiateInput starts a processor checkout for an existing order.
type InitiateInput struct {
	OrderID         string
	Amount          *decimal.Decimal
	Email           string
	FullName        string
	Phone           string
	DeliveryAddress string
	City            string
	State           string
	Country         string
	// TransactionRef is optional; one is generated when empty.
	TransactionRef string
	Caller         *domain.Principal
}

// InitiateResult is returned to the client that will follow CheckoutURL.
type InitiateResult struct {
	OrderID        string
	CheckoutURL    string
	TransactionRef string
	SessionIssued  bool
}

// VerifyOrderInput asks for a processor check by order id. Caller may be nil.
type VerifyOrderInput struct {
	OrderID string
	Caller  *domain.Principal
}

// VerifyTransactionInput asks for a processor check by transaction reference.
type VerifyTransactionInput struct {
	TransactionRef string
	Caller         *domain.Principal
}

// Verification sources.
const (
	SourceCache         = "cache"
	SourceGateway       = "gateway"
	SourceNoTransaction = "no_transaction"
	SourceUnavailable   = "gateway_unavailable"
)

// VerifyResult is the outcome reported to a polling client.
type VerifyResult struct {
	OrderID        string
	Verified       bool
	PaymentStatus  domain.PaymentStatus
	OrderStatus    domain.OrderStatus
	TransactionRef string
	Source         string
	// RetryAfter is set while the payment is unresolved.
	RetryAfter time.Duration
	// GatewayErr is the processor fault that made the result inconclusive.
	GatewayErr error
}

// WebhookInput is a processor push, already authenticated by the transport.
type WebhookInput struct {
	Event          string
	TransactionRef string
	Status         string
	Amount         *decimal.Decimal
	Currency       string
	RawBody        []byte
}

// Webhook ignore reasons.
const (
	ReasonUnrecognizedEvent   = "unrecognized_event"
	ReasonDuplicateDelivery   = "duplicate_delivery"
	ReasonOrderNotFound       = "order_not_found"
	ReasonTransactionMismatch = "transaction_mismatch"
	ReasonCallbackError       = "callback_error"
)

// WebhookResult describes what the engine did with a delivery.
type WebhookResult struct {
	Recognized    bool
	Applied       bool
	OrderID       string
	PaymentStatus domain.PaymentStatus
	// Reason is set when the delivery was acknowledged without reconciliation.
	Reason string
	// ConfirmationErr is set when a follow-up confirmation for an unresolved payment could not be
	// scheduled. The delivery is still acknowledged.
	ConfirmationErr error
}

// CallbackInput is the browser redirect back from the hosted checkout.
type CallbackInput struct {
	OrderID        string
	Status         string
	TransactionRef string
	Session        string
	Signature      string
}

// CallbackResult always carries a redirect target, even when reconciliation failed.
type CallbackResult struct {
	RedirectURL     string
	OrderID         string
	PaymentStatus   domain.PaymentStatus
	Provisional     bool
	SessionRestored bool
	Reason          string
	// ConfirmationErr records a failure to schedule follow-up verification.
	ConfirmationErr error
}

// StatusView is the read-only support summary of an order payment.
type StatusView struct {
	OrderID           string
	PaymentSuccess    bool
	PaymentStatus     domain.PaymentStatus
	OrderStatus       domain.OrderStatus
	TransactionRef    string
	PaymentVerifiedAt *time.Time
	Channels          []string
}

// ReconcileResult reports the order after a merge and whether it changed.
type ReconcileResult struct {
	Order   *domain.Order
	Applied bool
}

// SweepInput selects unresolved orders for re-verification.
type SweepInput struct {
	OlderThan time.Duration
	Limit     int
}

// SweepResult tallies a sweep run.
type SweepResult struct {
	Checked   int
	Confirmed int
	Failed    int
	Pending   int
	Errors    int
}
