package domain

// PaymentStatus is a point in the payment lattice:
// unpaid < pending < processing < {paid, failed}. refunded sits above paid.
type PaymentStatus string

const (
	PaymentUnpaid     PaymentStatus = "unpaid"
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Valid reports whether the status is a known lattice point.
func (s PaymentStatus) Valid() bool {
	return s.rank() >= 0
}

// Sticky statuses are never changed by reconciliation. failed is not sticky: a later success
// still promotes the order.
func (s PaymentStatus) Sticky() bool {
	return s == PaymentPaid || s == PaymentRefunded
}

// Terminal statuses need no further processor checks.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentRefunded
}

// Outranks reports whether s sits strictly above other in the lattice.
func (s PaymentStatus) Outranks(other PaymentStatus) bool {
	return s.rank() > other.rank()
}

// SameRank reports whether s and other are on the same lattice level.
func (s PaymentStatus) SameRank(other PaymentStatus) bool {
	return s.rank() == other.rank()
}

func (s PaymentStatus) rank() int {
	switch s {
	case PaymentUnpaid:
		return 0
	case PaymentPending:
		return 1
	case PaymentProcessing:
		return 2
	case PaymentPaid, PaymentFailed:
		return 3
	case PaymentRefunded:
		return 4
	default:
		return -1
	}
}

// DeriveOrderStatus projects a payment status onto the fulfilment status of an online order.
func DeriveOrderStatus(payment PaymentStatus, current OrderStatus) OrderStatus {
	switch payment {
	case PaymentPaid:
		return OrderStatusConfirmed
	case PaymentFailed:
		return OrderStatusCancelled
	default:
		return current
	}
}
