package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates how an order is settled.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodOnlineGateway  PaymentMethod = "online_gateway"
)

// OrderStatus is the fulfilment view of an order.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var (
	ErrInvalidOrderID       = errors.New("order id is required")
	ErrInvalidAmount        = errors.New("total amount must be greater than zero")
	ErrInvalidPaymentMethod = errors.New("payment method is invalid")
	ErrInvalidPaymentStatus = errors.New("payment status is invalid")
	ErrInvalidOrderStatus   = errors.New("order status is invalid")
	ErrTransactionRefEmpty  = errors.New("transaction reference is required")
	ErrTransactionRefTaken  = errors.New("order already has a different transaction reference")
	ErrTransactionMismatch  = errors.New("transaction reference does not match order")
	ErrInvalidChannel       = errors.New("evidence channel is invalid")
	ErrInvalidOutcome       = errors.New("evidence outcome is invalid")
	ErrOrderNotPayable      = errors.New("order is not payable online")
)

// HistoryEntry is one accepted piece of payment evidence.
type HistoryEntry struct {
	Amount         decimal.Decimal
	Currency       string
	TransactionRef string
	Channel        Channel
	Status         PaymentStatus
	Timestamp      time.Time
	RawEvidence    json.RawMessage
}

// Order is the slice of the checkout order aggregate that payment reconciliation owns.
type Order struct {
	ID                string
	UserID            string
	TotalAmount       decimal.Decimal
	Currency          string
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	OrderStatus       OrderStatus
	TransactionRef    string
	PaymentVerifiedAt *time.Time
	PaymentHistory    []HistoryEntry
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewOrder validates and constructs an order in its checkout state.
func NewOrder(id, userID string, total decimal.Decimal, currency string, method PaymentMethod) (*Order, error) {
	order := &Order{
		ID:            strings.TrimSpace(id),
		UserID:        strings.TrimSpace(userID),
		TotalAmount:   total,
		Currency:      strings.ToUpper(strings.TrimSpace(currency)),
		PaymentMethod: method,
		PaymentStatus: PaymentUnpaid,
		OrderStatus:   OrderStatusPendingPayment,
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = PaymentMethodOnlineGateway
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// Validate enforces invariants on the aggregate.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return ErrInvalidOrderID
	}
	if !o.TotalAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if !o.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if !o.PaymentStatus.Valid() {
		return ErrInvalidPaymentStatus
	}
	if !o.OrderStatus.Valid() {
		return ErrInvalidOrderStatus
	}
	return nil
}

// OnlinePayable reports whether the order settles through the processor.
func (o *Order) OnlinePayable() bool {
	return o.PaymentMethod == PaymentMethodOnlineGateway || o.PaymentMethod == PaymentMethodCard
}

// AssignTransactionRef stores the processor join key. Re-assigning the same value is a no-op.
func (o *Order) AssignTransactionRef(ref string) (bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false, ErrTransactionRefEmpty
	}
	if o.TransactionRef == ref {
		return false, nil
	}
	if o.TransactionRef != "" {
		return false, ErrTransactionRefTaken
	}
	o.TransactionRef = ref
	return true, nil
}

// LastHistoryEntry returns the most recent accepted evidence, if any.
func (o *Order) LastHistoryEntry() *HistoryEntry {
	if len(o.PaymentHistory) == 0 {
		return nil
	}
	entry := o.PaymentHistory[len(o.PaymentHistory)-1]
	return &entry
}

// Channels lists the distinct channels that have reported accepted evidence, in first-seen order.
func (o *Order) Channels() []string {
	seen := map[Channel]struct{}{}
	channels := make([]string, 0, 3)
	for _, entry := range o.PaymentHistory {
		if _, ok := seen[entry.Channel]; ok {
			continue
		}
		seen[entry.Channel] = struct{}{}
		channels = append(channels, string(entry.Channel))
	}
	return channels
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.PaymentVerifiedAt != nil {
		verified := *o.PaymentVerifiedAt
		clone.PaymentVerifiedAt = &verified
	}
	if o.PaymentHistory != nil {
		clone.PaymentHistory = make([]HistoryEntry, len(o.PaymentHistory))
		for i, entry := range o.PaymentHistory {
			if entry.RawEvidence != nil {
				entry.RawEvidence = append(json.RawMessage(nil), entry.RawEvidence...)
			}
			clone.PaymentHistory[i] = entry
		}
	}
	return &clone
}

// Valid reports whether the method is known.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCashOnDelivery, PaymentMethodCard, PaymentMethodOnlineGateway:
		return true
	default:
		return false
	}
}

// Valid reports whether the order status is known.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}
