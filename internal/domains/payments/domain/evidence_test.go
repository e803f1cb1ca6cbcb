package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	order, err := NewOrder("ord-1", "user-1", decimal.RequireFromString("250.00"), "etb", PaymentMethodOnlineGateway)
	require.NoError(t, err)
	_, err = order.AssignTransactionRef("order-ord-1-1700000000000")
	require.NoError(t, err)
	return order
}

func evidence(channel Channel, outcome Outcome) Evidence {
	return Evidence{
		TransactionRef: "order-ord-1-1700000000000",
		Channel:        channel,
		Outcome:        outcome,
		RawPayload:     json.RawMessage(`{"source":"test"}`),
	}
}

func TestApplyEvidence_SuccessConfirmsOrder(t *testing.T) {
	order := newTestOrder(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	changed, err := order.ApplyEvidence(evidence(ChannelWebhook, OutcomeSuccess), now)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, PaymentPaid, order.PaymentStatus)
	assert.Equal(t, OrderStatusConfirmed, order.OrderStatus)
	require.NotNil(t, order.PaymentVerifiedAt)
	assert.Equal(t, now, *order.PaymentVerifiedAt)
	require.Len(t, order.PaymentHistory, 1)
	assert.Equal(t, ChannelWebhook, order.PaymentHistory[0].Channel)
	assert.True(t, order.PaymentHistory[0].Amount.Equal(order.TotalAmount))
	assert.Equal(t, "ETB", order.PaymentHistory[0].Currency)
}

func TestApplyEvidence_PaidIsSticky(t *testing.T) {
	order := newTestOrder(t)
	now := time.Now()
	_, err := order.ApplyEvidence(evidence(ChannelVerify, OutcomeSuccess), now)
	require.NoError(t, err)
	verifiedAt := *order.PaymentVerifiedAt

	for _, outcome := range []Outcome{OutcomeFailure, OutcomeInconclusive, OutcomeSuccess} {
		for _, channel := range []Channel{ChannelVerify, ChannelWebhook, ChannelCallback} {
			changed, err := order.ApplyEvidence(evidence(channel, outcome), now.Add(time.Minute))
			require.NoError(t, err)
			assert.False(t, changed)
		}
	}
	assert.Equal(t, PaymentPaid, order.PaymentStatus)
	assert.Equal(t, verifiedAt, *order.PaymentVerifiedAt)
	assert.Len(t, order.PaymentHistory, 1)
}

func TestApplyEvidence_DuplicateEvidenceIsIdempotent(t *testing.T) {
	order := newTestOrder(t)

	changed, err := order.ApplyEvidence(evidence(ChannelCallback, OutcomeFailure), time.Now())
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = order.ApplyEvidence(evidence(ChannelWebhook, OutcomeFailure), time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, order.PaymentHistory, 1)
}

func TestApplyEvidence_FailedCanBePromotedToPaid(t *testing.T) {
	order := newTestOrder(t)

	_, err := order.ApplyEvidence(evidence(ChannelCallback, OutcomeFailure), time.Now())
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, order.PaymentStatus)
	assert.Equal(t, OrderStatusCancelled, order.OrderStatus)

	changed, err := order.ApplyEvidence(evidence(ChannelWebhook, OutcomeSuccess), time.Now())
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, PaymentPaid, order.PaymentStatus)
	assert.Equal(t, OrderStatusConfirmed, order.OrderStatus)
	assert.Len(t, order.PaymentHistory, 2)
}

func TestApplyEvidence_LowerCandidateIsIgnored(t *testing.T) {
	order := newTestOrder(t)
	_, err := order.ApplyEvidence(evidence(ChannelWebhook, OutcomeFailure), time.Now())
	require.NoError(t, err)

	changed, err := order.ApplyEvidence(evidence(ChannelVerify, OutcomeInconclusive), time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, PaymentFailed, order.PaymentStatus)
}

func TestApplyEvidence_InconclusiveLeavesOrderStatus(t *testing.T) {
	order := newTestOrder(t)

	changed, err := order.ApplyEvidence(evidence(ChannelCallback, OutcomeInconclusive), time.Now())
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, PaymentProcessing, order.PaymentStatus)
	assert.Equal(t, OrderStatusPendingPayment, order.OrderStatus)
	assert.Nil(t, order.PaymentVerifiedAt)

	changed, err = order.ApplyEvidence(evidence(ChannelVerify, OutcomeInconclusive), time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestApplyEvidence_TransactionMismatch(t *testing.T) {
	order := newTestOrder(t)
	ev := evidence(ChannelWebhook, OutcomeSuccess)
	ev.TransactionRef = "order-other-1"

	changed, err := order.ApplyEvidence(ev, time.Now())
	require.ErrorIs(t, err, ErrTransactionMismatch)
	assert.False(t, changed)
	assert.Equal(t, PaymentUnpaid, order.PaymentStatus)
	assert.Empty(t, order.PaymentHistory)
}

func TestApplyEvidence_MissingRefUsesStoredRef(t *testing.T) {
	order := newTestOrder(t)
	ev := evidence(ChannelCallback, OutcomeFailure)
	ev.TransactionRef = ""

	_, err := order.ApplyEvidence(ev, time.Now())
	require.NoError(t, err)
	assert.Equal(t, order.TransactionRef, order.PaymentHistory[0].TransactionRef)
}

func TestApplyEvidence_RejectsUnknownOutcome(t *testing.T) {
	order := newTestOrder(t)
	_, err := order.ApplyEvidence(Evidence{Channel: ChannelVerify, Outcome: "maybe"}, time.Now())
	require.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = order.ApplyEvidence(Evidence{Channel: "fax", Outcome: OutcomeSuccess}, time.Now())
	require.ErrorIs(t, err, ErrInvalidChannel)
}

func TestAssignTransactionRef(t *testing.T) {
	order, err := NewOrder("ord-2", "user-1", decimal.NewFromInt(10), "ETB", "")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodOnlineGateway, order.PaymentMethod)

	changed, err := order.AssignTransactionRef("order-ord-2-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = order.AssignTransactionRef("order-ord-2-1")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = order.AssignTransactionRef("order-ord-2-2")
	require.ErrorIs(t, err, ErrTransactionRefTaken)
}

func TestCloneIsDeep(t *testing.T) {
	order := newTestOrder(t)
	_, err := order.ApplyEvidence(evidence(ChannelWebhook, OutcomeSuccess), time.Now())
	require.NoError(t, err)

	clone := order.Clone()
	clone.PaymentHistory[0].Status = PaymentFailed
	clone.PaymentHistory[0].RawEvidence[0] = '['
	*clone.PaymentVerifiedAt = time.Time{}

	assert.Equal(t, PaymentPaid, order.PaymentHistory[0].Status)
	assert.Equal(t, byte('{'), order.PaymentHistory[0].RawEvidence[0])
	assert.False(t, order.PaymentVerifiedAt.IsZero())
}

func TestTransactionRefRoundTrip(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	ref := NewTransactionRef("3f2a-77b1", now)
	assert.Equal(t, "order-3f2a-77b1-1700000000123", ref)

	orderID, ok := OrderIDFromTransactionRef(ref)
	require.True(t, ok)
	assert.Equal(t, "3f2a-77b1", orderID)

	for _, bad := range []string{"", "tx-123", "order-", "order-abc", "order-abc-", "order-abc-xyz"} {
		_, ok := OrderIDFromTransactionRef(bad)
		assert.False(t, ok, bad)
	}
}
