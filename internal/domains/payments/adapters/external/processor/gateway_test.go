package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	processorclient "github.com/Apurer/payment-reconciler/internal/clients/http/processor"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

func newGateway(t *testing.T, status int, body string) *Gateway {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return NewGateway(processorclient.NewClient(processorclient.Config{BaseURL: server.URL, SecretKey: "sk"}, server.Client()))
}

func TestVerify_MapsOutcomes(t *testing.T) {
	cases := map[string]struct {
		status  int
		body    string
		outcome ports.VerificationOutcome
	}{
		"success":  {http.StatusOK, `{"status":"success","data":{"status":"success","amount":100,"currency":"ETB"}}`, ports.VerificationSuccess},
		"pending":  {http.StatusOK, `{"status":"success","data":{"status":"pending"}}`, ports.VerificationPending},
		"failed":   {http.StatusOK, `{"status":"success","data":{"status":"failed"}}`, ports.VerificationFailed},
		"declined": {http.StatusBadRequest, `{"status":"failed","message":"declined","data":null}`, ports.VerificationFailed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			gw := newGateway(t, tc.status, tc.body)
			verification, err := gw.Verify(context.Background(), "order-1-1")
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, verification.Outcome)
			assert.Equal(t, "order-1-1", verification.TransactionRef)
		})
	}
}

func TestVerify_AmountIsCarried(t *testing.T) {
	gw := newGateway(t, http.StatusOK, `{"status":"success","data":{"status":"success","amount":"99.50","currency":"ETB","tx_ref":"order-1-1"}}`)
	verification, err := gw.Verify(context.Background(), "order-1-1")
	require.NoError(t, err)
	require.NotNil(t, verification.Amount)
	assert.True(t, verification.Amount.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, "ETB", verification.Currency)
}

func TestVerify_ErrorsBecomeGatewayErrors(t *testing.T) {
	gw := newGateway(t, http.StatusNotFound, `{"status":"failed","message":"Invalid transaction"}`)
	_, err := gw.Verify(context.Background(), "order-1-1")
	gwErr, ok := ports.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, ports.GatewayNotFound, gwErr.Kind)
	assert.False(t, gwErr.Retryable())
}

func TestInitialize_Unconfigured(t *testing.T) {
	gw := NewGateway(processorclient.NewClient(processorclient.Config{}, nil))
	assert.False(t, gw.Configured())
	_, err := gw.Initialize(context.Background(), ports.InitializeRequest{})
	require.ErrorIs(t, err, ports.ErrGatewayNotConfigured)
}
