package application

import (
	"errors"
	"fmt"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

var (
	// ErrInvalidInput signals the request violated a domain invariant.
	ErrInvalidInput           = errors.New("invalid payment input")
	ErrOrderNotFound          = errors.New("order not found")
	ErrTransactionMismatch    = errors.New("transaction reference mismatch")
	ErrTransactionRefAssigned = errors.New("transaction reference already assigned")
	ErrOrderNotPayable        = errors.New("order is not payable")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrPaymentNotConfigured   = errors.New("payment processing is not configured")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrConcurrentUpdate       = errors.New("order kept changing during reconciliation")
)

// Validation codes surfaced to HTTP clients.
const (
	CodeMissingFields      = "MISSING_FIELDS"
	CodeInvalidAmount      = "INVALID_AMOUNT"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodePaymentConfigError = "PAYMENT_CONFIG_ERROR"
)

// ValidationError is a client input problem with a stable code.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func validationError(code, message string) error {
	return &ValidationError{Code: code, Message: message}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := ports.AsGatewayError(err); ok {
		return fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
	case errors.Is(err, domain.ErrTransactionMismatch):
		return fmt.Errorf("%w: %w", ErrTransactionMismatch, err)
	case errors.Is(err, domain.ErrTransactionRefTaken):
		return fmt.Errorf("%w: %w", ErrTransactionRefAssigned, err)
	case errors.Is(err, domain.ErrOrderNotPayable):
		return fmt.Errorf("%w: %w", ErrOrderNotPayable, err)
	case errors.Is(err, ports.ErrGatewayNotConfigured):
		return fmt.Errorf("%w: %w", ErrPaymentNotConfigured, err)
	case errors.Is(err, domain.ErrInvalidOrderID),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidPaymentMethod),
		errors.Is(err, domain.ErrInvalidPaymentStatus),
		errors.Is(err, domain.ErrInvalidOrderStatus),
		errors.Is(err, domain.ErrTransactionRefEmpty),
		errors.Is(err, domain.ErrInvalidChannel),
		errors.Is(err, domain.ErrInvalidOutcome):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
