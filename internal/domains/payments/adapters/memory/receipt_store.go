package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

var _ ports.ReceiptStore = (*ReceiptStore)(nil)

// ReceiptStore keeps webhook receipts in memory for development and tests.
type ReceiptStore struct {
	mu       sync.RWMutex
	receipts map[string]ports.WebhookReceipt
	now      func() time.Time
}

// NewReceiptStore constructs an empty in-memory store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		receipts: map[string]ports.WebhookReceipt{},
		now:      time.Now,
	}
}

// WithClock overrides the time source for deterministic testing.
func (s *ReceiptStore) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns the receipt for the fingerprint, or nil when absent.
func (s *ReceiptStore) Get(_ context.Context, fingerprint string) (*ports.WebhookReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[fingerprint]
	if !ok {
		return nil, nil
	}
	copy := receipt
	return &copy, nil
}

// Save stores the receipt or returns the one already recorded for its fingerprint.
func (s *ReceiptStore) Save(_ context.Context, receipt ports.WebhookReceipt) (*ports.WebhookReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.receipts[receipt.Fingerprint]; ok {
		copy := existing
		return &copy, nil
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = s.now()
	}
	s.receipts[receipt.Fingerprint] = receipt
	saved := receipt
	return &saved, nil
}

// PurgeOlderThan drops receipts created before cutoff.
func (s *ReceiptStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for key, receipt := range s.receipts {
		if receipt.CreatedAt.Before(cutoff) {
			delete(s.receipts, key)
			purged++
		}
	}
	return purged, nil
}
