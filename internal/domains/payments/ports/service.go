package ports

import (
	"context"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
)

// Service exposes the payment reconciliation use cases to adapters.
type Service interface {
	Initiate(ctx context.Context, input types.InitiateInput) (*types.InitiateResult, error)
	VerifyOrder(ctx context.Context, input types.VerifyOrderInput) (*types.VerifyResult, error)
	VerifyTransaction(ctx context.Context, input types.VerifyTransactionInput) (*types.VerifyResult, error)
	HandleWebhook(ctx context.Context, input types.WebhookInput) (*types.WebhookResult, error)
	// HandleCallback returns a non-nil result with a redirect target even when err is set.
	HandleCallback(ctx context.Context, input types.CallbackInput) (*types.CallbackResult, error)
	Status(ctx context.Context, orderID string) (*types.StatusView, error)
	Reconcile(ctx context.Context, orderID string, evidence domain.Evidence) (*types.ReconcileResult, error)
	SweepPending(ctx context.Context, input types.SweepInput) (*types.SweepResult, error)
}
