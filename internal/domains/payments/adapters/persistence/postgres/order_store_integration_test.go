//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
	"github.com/Apurer/payment-reconciler/internal/platform/migrations"
)

func setupPaymentsPostgresContainer(t *testing.T) (*gorm.DB, func()) {
	ctx := context.Background()

	pgContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("payments_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = migrations.Run(db)
	require.NoError(t, err)

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		pgContainer.Terminate(ctx)
	}

	return db, cleanup
}

func newTestOrder(t *testing.T, id, ref string) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(id, "user-1", decimal.RequireFromString("149.90"), "ETB", domain.PaymentMethodOnlineGateway)
	require.NoError(t, err)
	if ref != "" {
		_, err = order.AssignTransactionRef(ref)
		require.NoError(t, err)
	}
	return order
}

func TestOrderStore_SaveAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupPaymentsPostgresContainer(t)
	defer cleanup()

	store := NewOrderStore(db)
	ctx := context.Background()

	saved, err := store.Save(ctx, newTestOrder(t, "ord-1", "order-ord-1-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)
	assert.True(t, decimal.RequireFromString("149.90").Equal(saved.TotalAmount))

	fetched, err := store.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnpaid, fetched.PaymentStatus)
	assert.Equal(t, "order-ord-1-1", fetched.TransactionRef)

	byRef, err := store.FindByTransactionRef(ctx, "order-ord-1-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", byRef.ID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	_, err = store.FindByTransactionRef(ctx, "missing-ref")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestOrderStore_TransactionRefIsUnique(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupPaymentsPostgresContainer(t)
	defer cleanup()

	store := NewOrderStore(db)
	ctx := context.Background()

	_, err := store.Save(ctx, newTestOrder(t, "ord-1", "shared-ref"))
	require.NoError(t, err)
	_, err = store.Save(ctx, newTestOrder(t, "ord-2", "shared-ref"))
	assert.ErrorIs(t, err, domain.ErrTransactionRefTaken)

	// Orders without a reference do not collide on the unique index.
	_, err = store.Save(ctx, newTestOrder(t, "ord-3", ""))
	require.NoError(t, err)
	_, err = store.Save(ctx, newTestOrder(t, "ord-4", ""))
	require.NoError(t, err)
}

func TestOrderStore_CompareAndApply(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupPaymentsPostgresContainer(t)
	defer cleanup()

	store := NewOrderStore(db)
	ctx := context.Background()

	_, err := store.Save(ctx, newTestOrder(t, "ord-1", "order-ord-1-1"))
	require.NoError(t, err)

	order, err := store.Get(ctx, "ord-1")
	require.NoError(t, err)
	expected := order.Version
	changed, err := order.ApplyEvidence(domain.Evidence{
		TransactionRef: "order-ord-1-1",
		Channel:        domain.ChannelWebhook,
		Outcome:        domain.OutcomeSuccess,
	}, time.Now())
	require.NoError(t, err)
	require.True(t, changed)

	updated, err := store.CompareAndApply(ctx, order, expected)
	require.NoError(t, err)
	assert.Equal(t, expected+1, updated.Version)
	assert.Equal(t, domain.PaymentPaid, updated.PaymentStatus)
	assert.Equal(t, []string{"webhook"}, updated.Channels())
	require.Len(t, updated.PaymentHistory, 1)
	assert.Equal(t, domain.ChannelWebhook, updated.PaymentHistory[0].Channel)
	assert.NotNil(t, updated.PaymentVerifiedAt)

	_, err = store.CompareAndApply(ctx, order, expected)
	assert.ErrorIs(t, err, ports.ErrVersionConflict)

	ghost := newTestOrder(t, "ghost", "")
	_, err = store.CompareAndApply(ctx, ghost, 1)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestOrderStore_ConcurrentCompareAndApplyHasOneWinner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupPaymentsPostgresContainer(t)
	defer cleanup()

	store := NewOrderStore(db)
	ctx := context.Background()

	_, err := store.Save(ctx, newTestOrder(t, "ord-1", "order-ord-1-1"))
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := store.Get(ctx, "ord-1")
			if !assert.NoError(t, err) {
				return
			}
			_, err = order.ApplyEvidence(domain.Evidence{
				TransactionRef: "order-ord-1-1",
				Channel:        domain.ChannelVerify,
				Outcome:        domain.OutcomeInconclusive,
			}, time.Now())
			if !assert.NoError(t, err) {
				return
			}
			_, err = store.CompareAndApply(ctx, order, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, ports.ErrVersionConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
	final, err := store.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
}

func TestOrderStore_ListStale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupPaymentsPostgresContainer(t)
	defer cleanup()

	store := NewOrderStore(db)
	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)
	store.WithClock(func() time.Time { return old })

	_, err := store.Save(ctx, newTestOrder(t, "stale-unpaid", "ref-stale-unpaid"))
	require.NoError(t, err)
	_, err = store.Save(ctx, newTestOrder(t, "stale-no-ref", ""))
	require.NoError(t, err)

	webhooked := newTestOrder(t, "stale-webhooked", "ref-stale-webhooked")
	_, err = webhooked.ApplyEvidence(domain.Evidence{
		TransactionRef: "ref-stale-webhooked",
		Channel:        domain.ChannelWebhook,
		Outcome:        domain.OutcomeInconclusive,
	}, old)
	require.NoError(t, err)
	_, err = store.Save(ctx, webhooked)
	require.NoError(t, err)

	paid := newTestOrder(t, "stale-paid", "ref-stale-paid")
	_, err = paid.ApplyEvidence(domain.Evidence{
		TransactionRef: "ref-stale-paid",
		Channel:        domain.ChannelVerify,
		Outcome:        domain.OutcomeSuccess,
	}, old)
	require.NoError(t, err)
	_, err = store.Save(ctx, paid)
	require.NoError(t, err)

	store.WithClock(time.Now)
	_, err = store.Save(ctx, newTestOrder(t, "fresh", "ref-fresh"))
	require.NoError(t, err)

	stale, err := store.ListStale(ctx, ports.StaleQuery{
		Statuses:           []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentPending, domain.PaymentProcessing},
		UpdatedBefore:      time.Now().Add(-time.Hour),
		WithoutChannel:     domain.ChannelWebhook,
		WithTransactionRef: true,
		Limit:              10,
	})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "stale-unpaid", stale[0].ID)
}

func TestReceiptStore_SaveGetAndPurge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, cleanup := setupPaymentsPostgresContainer(t)
	defer cleanup()

	store := NewReceiptStore(db)
	ctx := context.Background()

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	first, err := store.Save(ctx, ports.WebhookReceipt{
		ID:             "rcpt-1",
		Fingerprint:    "fp-1",
		TransactionRef: "ref-1",
		OrderID:        "ord-1",
		Event:          "charge.success",
		Status:         "success",
		Applied:        true,
		CreatedAt:      time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "rcpt-1", first.ID)

	dup, err := store.Save(ctx, ports.WebhookReceipt{ID: "rcpt-2", Fingerprint: "fp-1", OrderID: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, "rcpt-1", dup.ID)

	_, err = store.Save(ctx, ports.WebhookReceipt{ID: "rcpt-3", Fingerprint: "fp-3", OrderID: "ord-1", CreatedAt: time.Now()})
	require.NoError(t, err)

	purged, err := store.PurgeOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	gone, err := store.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
