//go:build pact
// +build pact

package consumer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	pacttest "github.com/Apurer/payment-reconciler/test/pact"

	pactconsumer "github.com/pact-foundation/pact-go/v2/consumer"
	pactlog "github.com/pact-foundation/pact-go/v2/log"
	"github.com/pact-foundation/pact-go/v2/matchers"
	"github.com/stretchr/testify/require"
)

type paymentStatus struct {
	Success        bool     `json:"success"`
	OrderID        string   `json:"orderId"`
	PaymentSuccess bool     `json:"paymentSuccess"`
	PaymentStatus  string   `json:"paymentStatus"`
	OrderStatus    string   `json:"orderStatus"`
	TransactionRef string   `json:"transactionRef"`
	Channels       []string `json:"channels"`
}

type verification struct {
	Success       bool   `json:"success"`
	Verified      bool   `json:"verified"`
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
	Source        string `json:"source"`
}

type problemDetail struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiError struct {
	status int
	code   string
	msg    string
}

func (e apiError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.code, e.msg, e.status)
}

func TestCheckoutFrontendContract(t *testing.T) {
	pactlog.SetLogLevel("INFO")

	pact, err := pactconsumer.NewV2Pact(pactconsumer.MockHTTPProviderConfig{
		Consumer: pacttest.ConsumerName,
		Provider: pacttest.ProviderName,
		PactDir:  pacttest.PactDir(t),
		LogDir:   pacttest.LogDir(t),
	})
	require.NoError(t, err)

	jsonContentType := matchers.Regex("application/json; charset=utf-8", "application\\/json(?:;\\s?charset=utf-8)?")
	paymentStatusMatcher := matchers.Term("paid", "unpaid|pending|processing|paid|failed|refunded")

	pact.AddInteraction().
		Given(pacttest.StatePaidOrder).
		UponReceiving("a status lookup for a paid order").
		WithRequest("GET", "/payment/status/"+pacttest.PaidOrderID).
		WillRespondWith(http.StatusOK, func(b *pactconsumer.V2ResponseBuilder) {
			b.Header("Content-Type", jsonContentType)
			b.JSONBody(matchers.Map{
				"success":        matchers.Like(true),
				"orderId":        matchers.S(pacttest.PaidOrderID),
				"paymentSuccess": matchers.Like(true),
				"paymentStatus":  paymentStatusMatcher,
				"orderStatus":    matchers.Like("confirmed"),
				"transactionRef": matchers.Like(pacttest.PaidTransactionRef),
				"channels":       matchers.ArrayMinLike("webhook", 1),
			})
		})

	pact.AddInteraction().
		Given(pacttest.StatePaidOrder).
		UponReceiving("an anonymous verification of a paid order").
		WithRequest("GET", "/payment/verify/"+pacttest.PaidOrderID).
		WillRespondWith(http.StatusOK, func(b *pactconsumer.V2ResponseBuilder) {
			b.Header("Content-Type", jsonContentType)
			b.JSONBody(matchers.Map{
				"success":       matchers.Like(true),
				"verified":      matchers.Like(true),
				"orderId":       matchers.S(pacttest.PaidOrderID),
				"paymentStatus": paymentStatusMatcher,
				"source":        matchers.Term("cache", "cache|gateway"),
			})
		})

	pact.AddInteraction().
		Given(pacttest.StatePendingOrder).
		UponReceiving("an anonymous verification of an unpaid order").
		WithRequest("GET", "/payment/verify/"+pacttest.PendingOrderID).
		WillRespondWith(http.StatusUnauthorized, func(b *pactconsumer.V2ResponseBuilder) {
			b.Header("Content-Type", matchers.S("application/problem+json"))
			b.JSONBody(matchers.Map{
				"status": matchers.Like(http.StatusUnauthorized),
				"code":   matchers.S("AUTHENTICATION_REQUIRED"),
			})
		})

	pact.AddInteraction().
		Given(pacttest.StateOrderMissing).
		UponReceiving("a status lookup for a missing order").
		WithRequest("GET", "/payment/status/"+pacttest.MissingOrderID).
		WillRespondWith(http.StatusNotFound, func(b *pactconsumer.V2ResponseBuilder) {
			b.Header("Content-Type", matchers.S("application/problem+json"))
			b.JSONBody(matchers.Map{
				"status":  matchers.Like(http.StatusNotFound),
				"code":    matchers.S("ORDER_NOT_FOUND"),
				"message": matchers.Like("Order not found"),
			})
		})

	err = pact.ExecuteTest(t, func(config pactconsumer.MockServerConfig) error {
		client := newCheckoutClient(config)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var status paymentStatus
		if err := client.get(ctx, "/payment/status/"+pacttest.PaidOrderID, &status); err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if !status.PaymentSuccess || status.OrderID != pacttest.PaidOrderID {
			return fmt.Errorf("unexpected status %+v", status)
		}

		var verified verification
		if err := client.get(ctx, "/payment/verify/"+pacttest.PaidOrderID, &verified); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if !verified.Verified {
			return fmt.Errorf("expected paid order to verify, got %+v", verified)
		}

		err := client.get(ctx, "/payment/verify/"+pacttest.PendingOrderID, &verification{})
		if apiErr, ok := err.(apiError); !ok || apiErr.status != http.StatusUnauthorized {
			return fmt.Errorf("expected 401 for anonymous pending verify, got %v", err)
		}

		err = client.get(ctx, "/payment/status/"+pacttest.MissingOrderID, &paymentStatus{})
		if apiErr, ok := err.(apiError); !ok || apiErr.code != "ORDER_NOT_FOUND" {
			return fmt.Errorf("expected ORDER_NOT_FOUND, got %v", err)
		}
		return nil
	})
	require.NoError(t, err)
}

type checkoutClient struct {
	baseURL    string
	httpClient *http.Client
}

func newCheckoutClient(config pactconsumer.MockServerConfig) *checkoutClient {
	host := config.Host
	if host == "" {
		host = "localhost"
	}
	transport := &http.Transport{TLSClientConfig: config.TLSConfig}
	return &checkoutClient{
		baseURL:    fmt.Sprintf("http://%s:%d", host, config.Port),
		httpClient: &http.Client{Transport: transport, Timeout: 10 * time.Second},
	}
}

func (c *checkoutClient) get(ctx context.Context, path string, out any) error {
	target, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var problem problemDetail
		_ = json.NewDecoder(res.Body).Decode(&problem)
		status := problem.Status
		if status == 0 {
			status = res.StatusCode
		}
		return apiError{status: status, code: problem.Code, msg: problem.Message}
	}
	return json.NewDecoder(res.Body).Decode(out)
}
