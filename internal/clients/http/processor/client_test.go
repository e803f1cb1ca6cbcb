package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL, SecretKey: "sk-test"}, server.Client())
}

func TestInitialize_SendsNormalizedForm(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "250.50", r.PostForm.Get("amount"))
		assert.Equal(t, "ETB", r.PostForm.Get("currency"))
		assert.Equal(t, "buyer@example.com", r.PostForm.Get("email"))
		assert.Equal(t, "Abebe", r.PostForm.Get("first_name"))
		assert.Equal(t, "Kebede Alemu", r.PostForm.Get("last_name"))
		assert.Equal(t, "Bole District, Addis Ababa, Ethiopia", r.PostForm.Get("delivery_address"))
		assert.Equal(t, "order-1-1", r.PostForm.Get("tx_ref"))
		assert.LessOrEqual(t, len(r.PostForm.Get("customization[title]")), 16)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"checkout_url":"https://checkout.example.com/abc"}}`))
	})

	checkoutURL, err := client.Initialize(context.Background(), InitializeParams{
		TransactionRef:  "order-1-1",
		Amount:          decimal.RequireFromString("250.5"),
		Email:           "  Buyer@Example.com ",
		FullName:        "Abebe Kebede Alemu",
		DeliveryAddress: "Bole",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/abc", checkoutURL)
}

func TestInitializeForm_Defaults(t *testing.T) {
	client := NewClient(Config{SecretKey: "sk", Title: "Payment for a very long store name"}, nil)
	form := client.InitializeForm(InitializeParams{Amount: decimal.NewFromInt(10), City: "A"})

	assert.Equal(t, "10.00", form.Get("amount"))
	assert.Equal(t, "Customer", form.Get("first_name"))
	assert.Equal(t, "User", form.Get("last_name"))
	assert.Equal(t, "Addis Ababa", form.Get("city"))
	assert.Equal(t, "Ethiopia", form.Get("country"))
	assert.Equal(t, "Default delivery address, Addis Ababa, Ethiopia", form.Get("delivery_address"))
	assert.Equal(t, "Payment for a ve", form.Get("customization[title]"))
	assert.Empty(t, form.Get("phone_number"))
}

func TestInitializeForm_AddressPadding(t *testing.T) {
	client := NewClient(Config{SecretKey: "sk"}, nil)

	short := client.InitializeForm(InitializeParams{Amount: decimal.NewFromInt(10), DeliveryAddress: " Kazanchis ", City: "Bahir Dar"})
	assert.Equal(t, "Kazanchis District, Addis Ababa, Ethiopia", short.Get("delivery_address"))
	assert.Equal(t, "Bahir Dar", short.Get("city"))

	long := client.InitializeForm(InitializeParams{Amount: decimal.NewFromInt(10), DeliveryAddress: "Bole Road, House 12"})
	assert.Equal(t, "Bole Road, House 12", long.Get("delivery_address"))

	// Length counts characters, not bytes.
	amharic := client.InitializeForm(InitializeParams{Amount: decimal.NewFromInt(10), DeliveryAddress: "ቦሌ ወረዳ"})
	assert.Equal(t, "ቦሌ ወረዳ District, Addis Ababa, Ethiopia", amharic.Get("delivery_address"))
}

func TestInitializeForm_TruncatesOnRuneBoundaries(t *testing.T) {
	client := NewClient(Config{SecretKey: "sk"}, nil)
	form := client.InitializeForm(InitializeParams{
		Amount:   decimal.NewFromInt(10),
		FullName: "Abebe " + strings.Repeat("ከ", 120),
	})

	assert.Equal(t, "Abebe", form.Get("first_name"))
	last := form.Get("last_name")
	assert.True(t, utf8.ValidString(last))
	assert.Equal(t, 94, utf8.RuneCountInString(last))

	assert.Equal(t, "ሰላም", truncate("ሰላም ለዓለም", 3))
	assert.Equal(t, "short", truncate("short", 10))
}

func TestInitialize_MissingCheckoutURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{}}`))
	})
	_, err := client.Initialize(context.Background(), InitializeParams{Amount: decimal.NewFromInt(1)})
	var procErr *Error
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, KindAPI, procErr.Kind)
}

func TestInitialize_NotConfigured(t *testing.T) {
	client := NewClient(Config{}, nil)
	_, err := client.Initialize(context.Background(), InitializeParams{})
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, client.Configured())
}

func TestVerify_ReturnsTransactionData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/order-abc-1700000000000", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","message":"Payment details","data":{"status":"success","tx_ref":"order-abc-1700000000000","amount":"250.00","currency":"ETB"}}`))
	})

	resp, err := client.Verify(context.Background(), "order-abc-1700000000000")
	require.NoError(t, err)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "success", resp.Data.Status)
	require.NotNil(t, resp.Data.Amount)
	assert.True(t, resp.Data.Amount.Equal(decimal.RequireFromString("250")))
	assert.NotEmpty(t, resp.Raw)
}

func TestVerify_DeclineIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"failed","message":"Transaction declined","data":null}`))
	})
	resp, err := client.Verify(context.Background(), "order-abc-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", resp.Status)
}

func TestVerify_ClassifiesFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		kind   Kind
	}{
		"not found":    {http.StatusNotFound, KindNotFound},
		"unauthorized": {http.StatusUnauthorized, KindAuth},
		"forbidden":    {http.StatusForbidden, KindAuth},
		"server error": {http.StatusBadGateway, KindAPI},
		"bad request":  {http.StatusBadRequest, KindAPI},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"status":"error","message":"nope"}`))
			})
			_, err := client.Verify(context.Background(), "order-abc-1")
			var procErr *Error
			require.ErrorAs(t, err, &procErr)
			assert.Equal(t, tc.kind, procErr.Kind)
			assert.Equal(t, tc.status, procErr.StatusCode)
		})
	}
}

func TestVerify_TimeoutAndNetworkErrors(t *testing.T) {
	slow := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := slow.Verify(ctx, "order-abc-1")
	var procErr *Error
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, KindTimeout, procErr.Kind)

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	offline := NewClient(Config{BaseURL: server.URL, SecretKey: "sk"}, nil)
	_, err = offline.Verify(context.Background(), "order-abc-1")
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, KindNetwork, procErr.Kind)
}
