package ports

import (
	"context"
	"time"
)

// WebhookReceipt records a processed webhook delivery keyed by its content fingerprint.
type WebhookReceipt struct {
	ID             string
	Fingerprint    string
	TransactionRef string
	OrderID        string
	Event          string
	Status         string
	Applied        bool
	CreatedAt      time.Time
}

// ReceiptStore short-circuits processor retries of an already reconciled delivery.
type ReceiptStore interface {
	// Get returns nil when the fingerprint is unknown.
	Get(ctx context.Context, fingerprint string) (*WebhookReceipt, error)
	// Save inserts the receipt. When the fingerprint already exists the stored receipt is returned.
	Save(ctx context.Context, receipt WebhookReceipt) (*WebhookReceipt, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
