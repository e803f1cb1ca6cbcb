package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

var _ ports.OrderStore = (*OrderStore)(nil)

// OrderStore persists orders in PostgreSQL using GORM. Every reconciliation write is a
// conditional update on the version column.
type OrderStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewOrderStore wires a PostgreSQL-backed order store. Caller manages DB lifecycle and runs
// migrations.Run beforehand.
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db, now: time.Now}
}

// WithClock overrides the time source for deterministic testing.
func (s *OrderStore) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// orderRecord maps the order aggregate to the payment_orders table.
type orderRecord struct {
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

func (orderRecord) TableName() string { return "payment_orders" }

type historyRecord struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	TransactionRef string          `json:"transactionRef"`
	Channel        string          `json:"channel"`
	Status         string          `json:"status"`
	Timestamp      time.Time       `json:"timestamp"`
	RawEvidence    json.RawMessage `json:"rawEvidence,omitempty"`
}

// Save inserts or replaces an order and bumps its version.
func (s *OrderStore) Save(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.New("order is nil")
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	record, err := toRecord(order)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	record.Version = 1
	record.CreatedAt = now
	record.UpdatedAt = now
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"user_id":             record.UserID,
				"total_amount":        record.TotalAmount,
				"currency":            record.Currency,
				"payment_method":      record.PaymentMethod,
				"payment_status":      record.PaymentStatus,
				"order_status":        record.OrderStatus,
				"transaction_ref":     record.TransactionRef,
				"payment_verified_at": record.PaymentVerifiedAt,
				"payment_history":     record.PaymentHistory,
				"channels":            record.Channels,
				"version":             gorm.Expr("payment_orders.version + 1"),
				"updated_at":          now,
			}),
		}).Create(&record).Error
	if err != nil {
		return nil, translateError(err)
	}
	return s.Get(ctx, record.ID)
}

// Get fetches an order by identifier.
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var record orderRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return record.toDomain()
}

// FindByTransactionRef resolves an order by its stored processor reference.
func (s *OrderStore) FindByTransactionRef(ctx context.Context, ref string) (*domain.Order, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var record orderRecord
	if err := s.db.WithContext(ctx).First(&record, "transaction_ref = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return record.toDomain()
}

// CompareAndApply writes next only when the stored version still equals expectedVersion.
func (s *OrderStore) CompareAndApply(ctx context.Context, next *domain.Order, expectedVersion int64) (*domain.Order, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if next == nil {
		return nil, errors.New("order is nil")
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	record, err := toRecord(next)
	if err != nil {
		return nil, err
	}
	result := s.db.WithContext(ctx).
		Model(&orderRecord{}).
		Where("id = ? AND version = ?", record.ID, expectedVersion).
		Updates(map[string]any{
			"payment_status":      record.PaymentStatus,
			"order_status":        record.OrderStatus,
			"transaction_ref":     record.TransactionRef,
			"payment_verified_at": record.PaymentVerifiedAt,
			"payment_history":     record.PaymentHistory,
			"channels":            record.Channels,
			"version":             expectedVersion + 1,
			"updated_at":          s.now().UTC(),
		})
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&orderRecord{}).Where("id = ?", record.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ports.ErrNotFound
		}
		return nil, ports.ErrVersionConflict
	}
	return s.Get(ctx, record.ID)
}

// ListStale returns unresolved orders, oldest first.
func (s *OrderStore) ListStale(ctx context.Context, query ports.StaleQuery) ([]*domain.Order, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	tx := s.db.WithContext(ctx).Model(&orderRecord{})
	if len(query.Statuses) > 0 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, status := range query.Statuses {
			statuses = append(statuses, string(status))
		}
		tx = tx.Where("payment_status IN ?", statuses)
	}
	if !query.UpdatedBefore.IsZero() {
		tx = tx.Where("updated_at < ?", query.UpdatedBefore)
	}
	if query.WithoutChannel != "" {
		tx = tx.Where("NOT (? = ANY(channels))", string(query.WithoutChannel))
	}
	if query.WithTransactionRef {
		tx = tx.Where("transaction_ref IS NOT NULL")
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}
	var records []orderRecord
	if err := tx.Order("updated_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, 0, len(records))
	for i := range records {
		order, err := records[i].toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *OrderStore) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres order store not configured")
	}
	return nil
}

func translateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", domain.ErrTransactionRefTaken, err)
	}
	return err
}

func toRecord(order *domain.Order) (orderRecord, error) {
	history := make([]historyRecord, 0, len(order.PaymentHistory))
	for _, entry := range order.PaymentHistory {
		history = append(history, historyRecord{
			Amount:         entry.Amount,
			Currency:       entry.Currency,
			TransactionRef: entry.TransactionRef,
			Channel:        string(entry.Channel),
			Status:         string(entry.Status),
			Timestamp:      entry.Timestamp,
			RawEvidence:    entry.RawEvidence,
		})
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return orderRecord{}, fmt.Errorf("encode payment history: %w", err)
	}
	rec := orderRecord{
		ID:                order.ID,
		UserID:            order.UserID,
		TotalAmount:       order.TotalAmount,
		Currency:          order.Currency,
		PaymentMethod:     string(order.PaymentMethod),
		PaymentStatus:     string(order.PaymentStatus),
		OrderStatus:       string(order.OrderStatus),
		PaymentVerifiedAt: order.PaymentVerifiedAt,
		PaymentHistory:    string(encoded),
		Channels:          pq.StringArray(order.Channels()),
	}
	if order.TransactionRef != "" {
		ref := order.TransactionRef
		rec.TransactionRef = &ref
	}
	return rec, nil
}

func (r orderRecord) toDomain() (*domain.Order, error) {
	var history []historyRecord
	if r.PaymentHistory != "" {
		if err := json.Unmarshal([]byte(r.PaymentHistory), &history); err != nil {
			return nil, fmt.Errorf("decode payment history for order %s: %w", r.ID, err)
		}
	}
	order := &domain.Order{
		ID:                r.ID,
		UserID:            r.UserID,
		TotalAmount:       r.TotalAmount,
		Currency:          r.Currency,
		PaymentMethod:     domain.PaymentMethod(r.PaymentMethod),
		PaymentStatus:     domain.PaymentStatus(r.PaymentStatus),
		OrderStatus:       domain.OrderStatus(r.OrderStatus),
		PaymentVerifiedAt: r.PaymentVerifiedAt,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.TransactionRef != nil {
		order.TransactionRef = *r.TransactionRef
	}
	for _, entry := range history {
		order.PaymentHistory = append(order.PaymentHistory, domain.HistoryEntry{
			Amount:         entry.Amount,
			Currency:       entry.Currency,
			TransactionRef: entry.TransactionRef,
			Channel:        domain.Channel(entry.Channel),
			Status:         domain.PaymentStatus(entry.Status),
			Timestamp:      entry.Timestamp,
			RawEvidence:    entry.RawEvidence,
		})
	}
	return order, nil
}
