package application

import (
	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
)

func toStatusView(order *domain.Order) *types.StatusView {
	view := &types.StatusView{
		OrderID:        order.ID,
		PaymentSuccess: order.PaymentStatus == domain.PaymentPaid,
		PaymentStatus:  order.PaymentStatus,
		OrderStatus:    order.OrderStatus,
		TransactionRef: order.TransactionRef,
		Channels:       order.Channels(),
	}
	if order.PaymentVerifiedAt != nil {
		verifiedAt := *order.PaymentVerifiedAt
		view.PaymentVerifiedAt = &verifiedAt
	}
	return view
}
