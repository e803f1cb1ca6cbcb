package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

var _ ports.ReceiptStore = (*ReceiptStore)(nil)

// ReceiptStore persists webhook receipts in PostgreSQL.
type ReceiptStore struct {
	db *gorm.DB
}

// NewReceiptStore wires a PostgreSQL-backed receipt store.
func NewReceiptStore(db *gorm.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// Get loads a receipt by fingerprint, returning nil when absent.
func (s *ReceiptStore) Get(ctx context.Context, fingerprint string) (*ports.WebhookReceipt, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var record receiptRecord
	if err := s.db.WithContext(ctx).First(&record, "fingerprint = ?", fingerprint).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record.toPort(), nil
}

// Save inserts the receipt; a duplicate fingerprint returns the stored receipt.
func (s *ReceiptStore) Save(ctx context.Context, receipt ports.WebhookReceipt) (*ports.WebhookReceipt, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	record := toReceiptRecord(receipt)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, getErr := s.Get(ctx, receipt.Fingerprint)
			if getErr != nil {
				return nil, getErr
			}
			if existing == nil {
				return nil, err
			}
			return existing, nil
		}
		return nil, err
	}
	return record.toPort(), nil
}

// PurgeOlderThan deletes receipts created before cutoff.
func (s *ReceiptStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.ensureDB(); err != nil {
		return 0, err
	}
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&receiptRecord{})
	return result.RowsAffected, result.Error
}

func (s *ReceiptStore) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres receipt store not configured")
	}
	return nil
}

type receiptRecord struct {
	Fingerprint    string    `gorm:"primaryKey;column:fingerprint;size:64"`
	ID             string    `gorm:"column:id;size:64"`
	TransactionRef string    `gorm:"column:transaction_ref;size:128;index"`
	OrderID        string    `gorm:"column:order_id;size:64;index"`
	Event          string    `gorm:"column:event;size:64"`
	Status         string    `gorm:"column:status;size:32"`
	Applied        bool      `gorm:"column:applied"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
}

func (receiptRecord) TableName() string { return "payment_webhook_receipts" }

func toReceiptRecord(rec ports.WebhookReceipt) receiptRecord {
	return receiptRecord{
		Fingerprint:    rec.Fingerprint,
		ID:             rec.ID,
		TransactionRef: rec.TransactionRef,
		OrderID:        rec.OrderID,
		Event:          rec.Event,
		Status:         rec.Status,
		Applied:        rec.Applied,
		CreatedAt:      rec.CreatedAt,
	}
}

func (r receiptRecord) toPort() *ports.WebhookReceipt {
	return &ports.WebhookReceipt{
		ID:             r.ID,
		Fingerprint:    r.Fingerprint,
		TransactionRef: r.TransactionRef,
		OrderID:        r.OrderID,
		Event:          r.Event,
		Status:         r.Status,
		Applied:        r.Applied,
		CreatedAt:      r.CreatedAt,
	}
}
