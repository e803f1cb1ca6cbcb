package mapper

import (
	"errors"

	paymentsapp "github.com/Apurer/payment-reconciler/internal/domains/payments/application"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
	apierrors "github.com/Apurer/payment-reconciler/internal/shared/errors"
)

// Payment error codes returned in problem bodies.
const (
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodeOrderNotPayable        = "ORDER_NOT_PAYABLE"
	CodeTransactionAssigned    = "TRANSACTION_ALREADY_ASSIGNED"
	CodeTransactionMismatch    = "TRANSACTION_MISMATCH"
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	CodeGatewayTimeout         = "PAYMENT_GATEWAY_TIMEOUT"
	CodeGatewayError           = "PAYMENT_GATEWAY_ERROR"
	CodeConcurrentUpdate       = "CONCURRENT_UPDATE"
	CodeInvalidSignature       = "INVALID_SIGNATURE"
	CodeInvalidPayload         = "INVALID_PAYLOAD"
)

// ProblemFor translates payments application errors. It satisfies apierrors.ErrorMapper.
func ProblemFor(err error) (apierrors.ProblemDetail, bool) {
	var validation *paymentsapp.ValidationError
	if errors.As(err, &validation) {
		return apierrors.ErrValidation.WithCode(validation.Code).WithDetail(validation.Message), true
	}
	switch {
	case errors.Is(err, paymentsapp.ErrOrderNotFound):
		return apierrors.ErrNotFound.WithCode(CodeOrderNotFound).WithDetail("Order not found"), true
	case errors.Is(err, paymentsapp.ErrAuthenticationRequired):
		return apierrors.ErrUnauthorized.WithCode(CodeAuthenticationRequired).WithDetail("Authentication required"), true
	case errors.Is(err, paymentsapp.ErrTransactionRefAssigned):
		return apierrors.ErrConflict.WithCode(CodeTransactionAssigned).WithDetail("A different transaction is already assigned to this order"), true
	case errors.Is(err, paymentsapp.ErrTransactionMismatch):
		return apierrors.ErrConflict.WithCode(CodeTransactionMismatch).WithDetail("Transaction reference does not match the order"), true
	case errors.Is(err, paymentsapp.ErrOrderNotPayable):
		return apierrors.ErrConflict.WithCode(CodeOrderNotPayable).WithDetail("Order cannot be paid online"), true
	case errors.Is(err, paymentsapp.ErrConcurrentUpdate):
		return apierrors.ErrConflict.WithCode(CodeConcurrentUpdate).WithDetail("Order changed concurrently, retry the request"), true
	case errors.Is(err, paymentsapp.ErrPaymentNotConfigured):
		return apierrors.ErrInternal.WithCode(paymentsapp.CodePaymentConfigError).WithDetail("Payment processing is not configured"), true
	case errors.Is(err, paymentsapp.ErrInvalidInput):
		return apierrors.ErrValidation.WithCode(apierrors.CodeBadRequest).WithDetail(err.Error()), true
	}
	if gwErr, ok := ports.AsGatewayError(err); ok {
		if gwErr.Kind == ports.GatewayTimeout {
			return apierrors.ErrGatewayTimeout.WithCode(CodeGatewayTimeout).WithDetail("Payment gateway timed out"), true
		}
		return apierrors.ErrBadGateway.WithCode(CodeGatewayError).WithDetail("Payment gateway error").
			WithExtension("kind", string(gwErr.Kind)), true
	}
	return apierrors.ProblemDetail{}, false
}
