package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

func newOrder(t *testing.T, id, ref string) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(id, "user-1", decimal.NewFromInt(100), "ETB", domain.PaymentMethodOnlineGateway)
	require.NoError(t, err)
	if ref != "" {
		_, err = order.AssignTransactionRef(ref)
		require.NoError(t, err)
	}
	return order
}

func TestOrderStore_CompareAndApplyChecksVersion(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()

	saved, err := store.Save(ctx, newOrder(t, "ord-1", "ref-1"))
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.Version)

	_, err = saved.ApplyEvidence(domain.Evidence{Channel: domain.ChannelVerify, Outcome: domain.OutcomeSuccess}, time.Now())
	require.NoError(t, err)

	updated, err := store.CompareAndApply(ctx, saved, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, domain.PaymentPaid, updated.PaymentStatus)

	_, err = store.CompareAndApply(ctx, saved, 1)
	assert.ErrorIs(t, err, ports.ErrVersionConflict)

	_, err = store.CompareAndApply(ctx, newOrder(t, "ghost", ""), 1)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestOrderStore_ReturnsCopies(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()
	_, err := store.Save(ctx, newOrder(t, "ord-1", "ref-1"))
	require.NoError(t, err)

	fetched, err := store.Get(ctx, "ord-1")
	require.NoError(t, err)
	fetched.PaymentStatus = domain.PaymentPaid

	again, err := store.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnpaid, again.PaymentStatus)
}

func TestOrderStore_TransactionRefIndex(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()

	_, err := store.Save(ctx, newOrder(t, "ord-1", "ref-1"))
	require.NoError(t, err)
	_, err = store.Save(ctx, newOrder(t, "ord-2", "ref-1"))
	assert.ErrorIs(t, err, domain.ErrTransactionRefTaken)

	second, err := store.Save(ctx, newOrder(t, "ord-2", ""))
	require.NoError(t, err)
	_, err = second.AssignTransactionRef("ref-1")
	require.NoError(t, err)
	_, err = store.CompareAndApply(ctx, second, second.Version)
	assert.ErrorIs(t, err, domain.ErrTransactionRefTaken)

	found, err := store.FindByTransactionRef(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", found.ID)

	_, err = store.FindByTransactionRef(ctx, "ref-unknown")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestOrderStore_ListStale(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	clock := base
	store.WithClock(func() time.Time { return clock })

	_, err := store.Save(ctx, newOrder(t, "oldest", "ref-oldest"))
	require.NoError(t, err)

	clock = base.Add(time.Minute)
	_, err = store.Save(ctx, newOrder(t, "older", "ref-older"))
	require.NoError(t, err)
	_, err = store.Save(ctx, newOrder(t, "no-ref", ""))
	require.NoError(t, err)

	webhooked := newOrder(t, "webhooked", "ref-webhooked")
	_, err = webhooked.ApplyEvidence(domain.Evidence{Channel: domain.ChannelWebhook, Outcome: domain.OutcomeInconclusive}, base)
	require.NoError(t, err)
	_, err = store.Save(ctx, webhooked)
	require.NoError(t, err)

	paid := newOrder(t, "paid", "ref-paid")
	_, err = paid.ApplyEvidence(domain.Evidence{Channel: domain.ChannelVerify, Outcome: domain.OutcomeSuccess}, base)
	require.NoError(t, err)
	_, err = store.Save(ctx, paid)
	require.NoError(t, err)

	clock = base.Add(time.Hour)
	_, err = store.Save(ctx, newOrder(t, "fresh", "ref-fresh"))
	require.NoError(t, err)

	query := ports.StaleQuery{
		UpdatedBefore:      base.Add(30 * time.Minute),
		Statuses:           []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentPending, domain.PaymentProcessing},
		WithoutChannel:     domain.ChannelWebhook,
		WithTransactionRef: true,
	}
	stale, err := store.ListStale(ctx, query)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "oldest", stale[0].ID)
	assert.Equal(t, "older", stale[1].ID)

	query.Limit = 1
	limited, err := store.ListStale(ctx, query)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "oldest", limited[0].ID)
}

func TestReceiptStore_FirstReceiptWins(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	store.WithClock(func() time.Time { return now })

	missing, err := store.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	first, err := store.Save(ctx, ports.WebhookReceipt{ID: "rcpt-1", Fingerprint: "fp-1", OrderID: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, now, first.CreatedAt)

	dup, err := store.Save(ctx, ports.WebhookReceipt{ID: "rcpt-2", Fingerprint: "fp-1", OrderID: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, "rcpt-1", dup.ID)

	_, err = store.Save(ctx, ports.WebhookReceipt{ID: "rcpt-3", Fingerprint: "fp-3", CreatedAt: now.Add(48 * time.Hour)})
	require.NoError(t, err)

	purged, err := store.PurgeOlderThan(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	kept, err := store.Get(ctx, "fp-3")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "rcpt-3", kept.ID)
}
