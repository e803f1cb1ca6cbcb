package migrations

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Run applies the payments schema. The Postgres adapters never migrate on their own.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	return db.AutoMigrate(
		&paymentOrderRecord{},
		&webhookReceiptRecord{},
	)
}

// Order schema mirrors the payments Postgres order store.
type paymentOrderRecord struct {
	ID                string          `gorm:"primaryKey;column:id;size:64"`
	UserID            string          `gorm:"column:user_id;size:64;index"`
	TotalAmount       decimal.Decimal `gorm:"column:total_amount;type:numeric(14,2)"`
	Currency          string          `gorm:"column:currency;size:8"`
	PaymentMethod     string          `gorm:"column:payment_method;type:varchar(32)"`
	PaymentStatus     string          `gorm:"column:payment_status;type:varchar(32);index:idx_payment_orders_status_updated"`
	OrderStatus       string          `gorm:"column:order_status;type:varchar(32)"`
	TransactionRef    *string         `gorm:"column:transaction_ref;size:128;uniqueIndex"`
	PaymentVerifiedAt *time.Time      `gorm:"column:payment_verified_at"`
	PaymentHistory    string          `gorm:"column:payment_history;type:jsonb;default:'[]'"`
	Channels          pq.StringArray  `gorm:"column:channels;type:text[];default:'{}'"`
	Version           int64           `gorm:"column:version;not null;default:1"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;index:idx_payment_orders_status_updated"`
}

func (paymentOrderRecord) TableName() string { return "payment_orders" }

// Receipt schema mirrors the webhook receipt store.
type webhookReceiptRecord struct {
	Fingerprint    string    `gorm:"primaryKey;column:fingerprint;size:64"`
	ID             string    `gorm:"column:id;size:64"`
	TransactionRef string    `gorm:"column:transaction_ref;size:128;index"`
	OrderID        string    `gorm:"column:order_id;size:64;index"`
	Event          string    `gorm:"column:event;size:64"`
	Status         string    `gorm:"column:status;size:32"`
	Applied        bool      `gorm:"column:applied"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
}

func (webhookReceiptRecord) TableName() string { return "payment_webhook_receipts" }
