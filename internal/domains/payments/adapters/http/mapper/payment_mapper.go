package mapper

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
)

// InitiatePayment is the checkout request posted by the front-end.
type InitiatePayment struct {
	OrderID         string           `json:"orderId"`
	Amount          *decimal.Decimal `json:"amount"`
	Email           string           `json:"email"`
	FullName        string           `json:"fullName"`
	Phone           string           `json:"phone,omitempty"`
	DeliveryAddress string           `json:"deliveryAddress,omitempty"`
	City            string           `json:"city,omitempty"`
	State           string           `json:"state,omitempty"`
	Country         string           `json:"country,omitempty"`
	TransactionRef  string           `json:"transactionRef,omitempty"`
}

// CheckoutData carries the hosted page the browser is sent to.
type CheckoutData struct {
	CheckoutURL    string `json:"checkout_url"`
	TransactionRef string `json:"tx_ref"`
	Reference      string `json:"reference"`
}

// InitiateResponse wraps CheckoutData the way the front-end expects.
type InitiateResponse struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	SessionIssued bool         `json:"sessionIssued"`
	Data          CheckoutData `json:"data"`
}

// Verification is the polling response for both verify endpoints.
type Verification struct {
	Success        bool   `json:"success"`
	Verified       bool   `json:"verified"`
	OrderID        string `json:"orderId"`
	PaymentStatus  string `json:"paymentStatus"`
	OrderStatus    string `json:"orderStatus"`
	TransactionRef string `json:"transactionRef,omitempty"`
	Source         string `json:"source"`
	// RetryAfter is in seconds.
	RetryAfter int    `json:"retryAfter,omitempty"`
	Message    string `json:"message,omitempty"`
}

// WebhookEvent is the processor push. Both camelCase and snake_case references are accepted.
type WebhookEvent struct {
	Event          string           `json:"event"`
	Type           string           `json:"type"`
	TransactionRef string           `json:"transactionRef"`
	TxRef          string           `json:"tx_ref"`
	Status         string           `json:"status"`
	Amount         *decimal.Decimal `json:"amount"`
	Currency       string           `json:"currency"`
}

// WebhookAck is always returned for structurally valid events.
type WebhookAck struct {
	Success bool   `json:"success"`
	Applied bool   `json:"applied"`
	Ignored string `json:"ignored,omitempty"`
}

// PaymentStatus is the support summary returned by the status endpoint.
type PaymentStatus struct {
	Success           bool       `json:"success"`
	OrderID           string     `json:"orderId"`
	PaymentSuccess    bool       `json:"paymentSuccess"`
	PaymentStatus     string     `json:"paymentStatus"`
	OrderStatus       string     `json:"orderStatus"`
	TransactionRef    string     `json:"transactionRef,omitempty"`
	PaymentVerifiedAt *time.Time `json:"paymentVerifiedAt,omitempty"`
	Channels          []string   `json:"channels"`
}

// ToInitiateInput maps the transport request into the use case input.
func ToInitiateInput(payload InitiatePayment, caller *domain.Principal) types.InitiateInput {
	return types.InitiateInput{
		OrderID:         payload.OrderID,
		Amount:          payload.Amount,
		Email:           payload.Email,
		FullName:        payload.FullName,
		Phone:           payload.Phone,
		DeliveryAddress: payload.DeliveryAddress,
		City:            payload.City,
		State:           payload.State,
		Country:         payload.Country,
		TransactionRef:  payload.TransactionRef,
		Caller:          caller,
	}
}

func FromInitiateResult(result *types.InitiateResult) InitiateResponse {
	return InitiateResponse{
		Success:       true,
		Message:       "Payment initiated successfully",
		SessionIssued: result.SessionIssued,
		Data: CheckoutData{
			CheckoutURL:    result.CheckoutURL,
			TransactionRef: result.TransactionRef,
			Reference:      result.TransactionRef,
		},
	}
}

// FromVerifyResult maps a verification. Processor outages still report success so clients keep
// polling instead of surfacing an error page.
func FromVerifyResult(result *types.VerifyResult) Verification {
	out := Verification{
		Success:        result.Source != types.SourceNoTransaction || result.Verified,
		Verified:       result.Verified,
		OrderID:        result.OrderID,
		PaymentStatus:  string(result.PaymentStatus),
		OrderStatus:    string(result.OrderStatus),
		TransactionRef: result.TransactionRef,
		Source:         result.Source,
		RetryAfter:     int(result.RetryAfter / time.Second),
	}
	switch {
	case result.Verified:
		out.Message = "Payment completed successfully"
	case result.PaymentStatus == domain.PaymentFailed:
		out.Message = "Payment failed"
	case result.Source == types.SourceNoTransaction:
		out.Message = "Payment verification pending"
	default:
		out.Message = "Payment is being processed. Please wait..."
	}
	return out
}

// ToWebhookInput normalizes the event; raw is the exact body used for fingerprinting.
func ToWebhookInput(event WebhookEvent, raw []byte) types.WebhookInput {
	name := event.Event
	if name == "" {
		name = event.Type
	}
	ref := event.TransactionRef
	if ref == "" {
		ref = event.TxRef
	}
	return types.WebhookInput{
		Event:          name,
		TransactionRef: ref,
		Status:         event.Status,
		Amount:         event.Amount,
		Currency:       event.Currency,
		RawBody:        raw,
	}
}

func FromWebhookResult(result *types.WebhookResult) WebhookAck {
	return WebhookAck{Success: true, Applied: result.Applied, Ignored: result.Reason}
}

func FromStatusView(view *types.StatusView) PaymentStatus {
	channels := view.Channels
	if channels == nil {
		channels = []string{}
	}
	return PaymentStatus{
		Success:           true,
		OrderID:           view.OrderID,
		PaymentSuccess:    view.PaymentSuccess,
		PaymentStatus:     string(view.PaymentStatus),
		OrderStatus:       string(view.OrderStatus),
		TransactionRef:    view.TransactionRef,
		PaymentVerifiedAt: view.PaymentVerifiedAt,
		Channels:          channels,
	}
}
