package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrGatewayNotConfigured is returned when processor credentials are missing.
var ErrGatewayNotConfigured = errors.New("payment gateway not configured")

// InitializeRequest carries the raw checkout fields; the gateway normalizes them for the processor.
type InitializeRequest struct {
	OrderID         string
	TransactionRef  string
	Amount          decimal.Decimal
	Currency        string
	Email           string
	FullName        string
	Phone           string
	DeliveryAddress string
	City            string
	State           string
	Country         string
	ReturnURL       string
	CallbackURL     string
}

// Checkout is the hosted payment page the customer is sent to.
type Checkout struct {
	CheckoutURL    string
	TransactionRef string
}

// VerificationOutcome is the processor's view of a transaction.
type VerificationOutcome string

const (
	VerificationSuccess VerificationOutcome = "success"
	VerificationFailed  VerificationOutcome = "failed"
	VerificationPending VerificationOutcome = "pending"
)

// Verification is the result of a processor status lookup.
type Verification struct {
	TransactionRef string
	Outcome        VerificationOutcome
	Amount         *decimal.Decimal
	Currency       string
	RawPayload     json.RawMessage
}

// Gateway is the outbound processor port. Declined payments are a Verification with
// VerificationFailed, never an error.
type Gateway interface {
	Configured() bool
	Initialize(ctx context.Context, req InitializeRequest) (*Checkout, error)
	Verify(ctx context.Context, transactionRef string) (*Verification, error)
}

// GatewayErrorKind classifies transport and configuration faults.
type GatewayErrorKind string

const (
	GatewayTimeout      GatewayErrorKind = "timeout"
	GatewayNetworkError GatewayErrorKind = "network_error"
	GatewayNotFound     GatewayErrorKind = "not_found"
	GatewayAuthError    GatewayErrorKind = "auth_error"
	GatewayAPIError     GatewayErrorKind = "api_error"
)

// GatewayError is the tagged failure returned by Gateway implementations.
type GatewayError struct {
	Kind       GatewayErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Retryable reports whether the same call may succeed later without intervention.
func (e *GatewayError) Retryable() bool {
	return e.Kind == GatewayTimeout || e.Kind == GatewayNetworkError
}

// AsGatewayError extracts a GatewayError from err.
func AsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}
