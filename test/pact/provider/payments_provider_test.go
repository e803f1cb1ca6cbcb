//go:build pact
// +build pact

package provider_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	pacttest "github.com/Apurer/payment-reconciler/test/pact"

	paymentserver "github.com/Apurer/payment-reconciler/go"
	paymemory "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/memory"
	paymentsobs "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/observability"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/signature"
	paymentsapp "github.com/Apurer/payment-reconciler/internal/domains/payments/application"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/domain"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"

	"github.com/gin-gonic/gin"
	"github.com/pact-foundation/pact-go/v2/models"
	pactprovider "github.com/pact-foundation/pact-go/v2/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPaymentsProviderPact(t *testing.T) {
	gin.SetMode(gin.TestMode)

	app := newContractProviderApp(t)
	pactFile := filepath.ToSlash(pacttest.PactFile(t))
	if _, err := os.Stat(pactFile); errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pact file not found at %s - run the pact consumer tests first", pactFile)
	} else {
		require.NoError(t, err)
	}

	verifier := pactprovider.NewVerifier()
	stateHandlers := models.StateHandlers{
		pacttest.StatePaidOrder: func(setup bool, _ models.ProviderState) (models.ProviderStateResponse, error) {
			app.reset()
			if setup {
				app.seedPaidOrder(t)
			}
			return nil, nil
		},
		pacttest.StatePendingOrder: func(setup bool, _ models.ProviderState) (models.ProviderStateResponse, error) {
			app.reset()
			if setup {
				app.seedPendingOrder(t)
			}
			return nil, nil
		},
		pacttest.StateOrderMissing: func(setup bool, _ models.ProviderState) (models.ProviderStateResponse, error) {
			app.reset()
			return nil, nil
		},
	}

	err := verifier.VerifyProvider(t, pactprovider.VerifyRequest{
		ProviderBaseURL: app.server.URL,
		Provider:        pacttest.ProviderName,
		PactFiles:       []string{pactFile},
		StateHandlers:   stateHandlers,
		BeforeEach: func() error {
			app.reset()
			return nil
		},
	})
	require.NoError(t, err)
}

// offlineGateway never reaches a processor; contract states only exercise cached results.
type offlineGateway struct{}

func (offlineGateway) Configured() bool { return false }

func (offlineGateway) Initialize(context.Context, ports.InitializeRequest) (*ports.Checkout, error) {
	return nil, ports.ErrGatewayNotConfigured
}

func (offlineGateway) Verify(context.Context, string) (*ports.Verification, error) {
	return nil, ports.ErrGatewayNotConfigured
}

type contractProviderApp struct {
	mu     sync.RWMutex
	store  *paymemory.OrderStore
	router http.Handler
	server *httptest.Server
}

func newContractProviderApp(t testing.TB) *contractProviderApp {
	t.Helper()
	app := &contractProviderApp{}
	app.reset()
	app.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.mu.RLock()
		router := app.router
		app.mu.RUnlock()
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(app.server.Close)
	return app
}

// reset swaps in an empty store and a router bound to it.
func (a *contractProviderApp) reset() {
	store := paymemory.NewOrderStore()
	service := paymentsobs.New(paymentsapp.NewService(store, offlineGateway{},
		paymentsapp.WithReceiptStore(paymemory.NewReceiptStore()),
		paymentsapp.WithRedirects(paymentsapp.RedirectConfig{
			PublicBaseURL: "http://localhost",
			FrontendURL:   "http://localhost:3000",
		}),
	))
	api := paymentserver.NewPaymentAPI(service, signature.NewHMACVerifier(""), "http://localhost:3000", nil)
	router := paymentserver.NewRouter(paymentserver.ApiHandleFunctions{PaymentAPI: api}, paymentserver.RouterConfig{})

	a.mu.Lock()
	a.store = store
	a.router = router
	a.mu.Unlock()
}

func (a *contractProviderApp) seedPaidOrder(t testing.TB) {
	t.Helper()
	order := a.newOrder(t, pacttest.PaidOrderID, pacttest.PaidTransactionRef)
	_, err := order.ApplyEvidence(domain.Evidence{
		TransactionRef: pacttest.PaidTransactionRef,
		Channel:        domain.ChannelWebhook,
		Outcome:        domain.OutcomeSuccess,
	}, time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	a.save(t, order)
}

func (a *contractProviderApp) seedPendingOrder(t testing.TB) {
	t.Helper()
	a.save(t, a.newOrder(t, pacttest.PendingOrderID, pacttest.PendingTransactionRef))
}

func (a *contractProviderApp) newOrder(t testing.TB, id, ref string) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(id, pacttest.OrderOwner, decimal.NewFromInt(1500), "ETB", domain.PaymentMethodOnlineGateway)
	require.NoError(t, err)
	_, err = order.AssignTransactionRef(ref)
	require.NoError(t, err)
	return order
}

func (a *contractProviderApp) save(t testing.TB, order *domain.Order) {
	t.Helper()
	a.mu.RLock()
	store := a.store
	a.mu.RUnlock()
	_, err := store.Save(context.Background(), order)
	require.NoError(t, err)
}
