package paymentserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	paymenthttpmapper "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/http/mapper"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
	apierrors "github.com/Apurer/payment-reconciler/internal/shared/errors"
)

// maxWebhookBody bounds the processor payload read into memory.
const maxWebhookBody = 1 << 20

// PaymentAPI wires HTTP transport with the payments bounded context service.
type PaymentAPI struct {
	service     ports.Service
	webhookSigs ports.SignatureVerifier
	frontendURL string
	logger      *slog.Logger
}

// NewPaymentAPI creates a PaymentAPI backed by the provided service. webhookSigs may be nil.
func NewPaymentAPI(service ports.Service, webhookSigs ports.SignatureVerifier, frontendURL string, logger *slog.Logger) PaymentAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return PaymentAPI{service: service, webhookSigs: webhookSigs, frontendURL: strings.TrimRight(frontendURL, "/"), logger: logger}
}

// Post /payment
// Starts a hosted checkout for an order
func (api *PaymentAPI) InitiatePayment(c *gin.Context) {
	var payload paymenthttpmapper.InitiatePayment
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBadRequest(c, paymenthttpmapper.CodeInvalidPayload, err.Error())
		return
	}
	result, err := api.service.Initiate(c.Request.Context(), paymenthttpmapper.ToInitiateInput(payload, principalFrom(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymenthttpmapper.FromInitiateResult(result))
}

// Get /payment/verify/:orderId
// Verifies an order payment with the processor
func (api *PaymentAPI) VerifyOrder(c *gin.Context) {
	result, err := api.service.VerifyOrder(c.Request.Context(), types.VerifyOrderInput{
		OrderID: c.Param("orderId"),
		Caller:  principalFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondVerification(c, result)
}

// Get /payment/verify/tx/:transactionRef
// Verifies a payment by transaction reference
func (api *PaymentAPI) VerifyTransaction(c *gin.Context) {
	result, err := api.service.VerifyTransaction(c.Request.Context(), types.VerifyTransactionInput{
		TransactionRef: c.Param("transactionRef"),
		Caller:         principalFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondVerification(c, result)
}

func respondVerification(c *gin.Context, result *types.VerifyResult) {
	body := paymenthttpmapper.FromVerifyResult(result)
	if body.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	c.JSON(http.StatusOK, body)
}

// Post /payment/webhook
// Receives processor payment events
func (api *PaymentAPI) HandleWebhook(c *gin.Context) {
	raw, err := readBody(c)
	if err != nil {
		respondBadRequest(c, paymenthttpmapper.CodeInvalidPayload, "request body could not be read")
		return
	}
	if api.webhookSigs != nil && api.webhookSigs.Enabled() {
		signature := firstHeader(c, "Chapa-Signature", "X-Chapa-Signature")
		if signature == "" || !api.webhookSigs.Verify(raw, signature) {
			api.logger.LogAttrs(c.Request.Context(), slog.LevelWarn, "webhook signature rejected",
				slog.String("security.event", "invalid_webhook_signature"),
				slog.String("clientIp", c.ClientIP()))
			respondProblem(c, apierrors.ErrUnauthorized.WithCode(paymenthttpmapper.CodeInvalidSignature).WithDetail("Invalid webhook signature"))
			return
		}
	}
	var event paymenthttpmapper.WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		respondBadRequest(c, paymenthttpmapper.CodeInvalidPayload, "webhook body is not valid JSON")
		return
	}
	result, err := api.service.HandleWebhook(c.Request.Context(), paymenthttpmapper.ToWebhookInput(event, raw))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymenthttpmapper.FromWebhookResult(result))
}

// Get /payment/callback/:orderId
// Browser return from the hosted checkout; always redirects to the front-end
func (api *PaymentAPI) HandleCallback(c *gin.Context) {
	input := types.CallbackInput{
		OrderID:        c.Param("orderId"),
		Status:         c.Query("status"),
		TransactionRef: firstQuery(c, "transactionRef", "tx_ref", "trx_ref"),
		Session:        c.Query("session"),
		Signature:      c.Query("signature"),
	}
	result, err := api.service.HandleCallback(c.Request.Context(), input)
	if err != nil {
		api.logger.LogAttrs(c.Request.Context(), slog.LevelWarn, "payment callback not reconciled",
			slog.String("orderId", input.OrderID), slog.String("error", err.Error()))
	}
	if result == nil || result.RedirectURL == "" {
		c.Redirect(http.StatusFound, api.frontendURL+"/payment/failed?reason="+types.ReasonCallbackError)
		return
	}
	if result.ConfirmationErr != nil {
		api.logger.LogAttrs(c.Request.Context(), slog.LevelWarn, "payment confirmation not scheduled",
			slog.String("orderId", input.OrderID), slog.String("error", result.ConfirmationErr.Error()))
	}
	c.Redirect(http.StatusFound, result.RedirectURL)
}

// Get /payment/status/:orderId
// Read-only payment summary for support
func (api *PaymentAPI) GetPaymentStatus(c *gin.Context) {
	view, err := api.service.Status(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymenthttpmapper.FromStatusView(view))
}

// Get /payment
// Lists the payment routes
func (api *PaymentAPI) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment API is running",
		"endpoints": []string{
			"POST /payment",
			"GET /payment/verify/:orderId",
			"GET /payment/verify/tx/:transactionRef",
			"POST /payment/webhook",
			"GET /payment/callback/:orderId",
			"GET /payment/status/:orderId",
		},
	})
}

func readBody(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	return c.GetRawData()
}

func firstHeader(c *gin.Context, names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(c.GetHeader(name)); value != "" {
			return value
		}
	}
	return ""
}

func firstQuery(c *gin.Context, names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(c.Query(name)); value != "" {
			return value
		}
	}
	return ""
}
