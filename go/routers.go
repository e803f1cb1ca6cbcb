package paymentserver

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

// Route is the information for every URI.
type Route struct {
	// Name is the name of this Route.
	Name string
	// Method is the string for the HTTP method. ex) GET, POST etc..
	Method string
	// Pattern is the pattern of the URI.
	Pattern string
	// HandlerFunc is the handler function of this route.
	HandlerFunc gin.HandlerFunc
	// Middleware runs before HandlerFunc.
	Middleware []gin.HandlerFunc
}

// ApiHandleFunctions groups the handlers exposed by the API.
type ApiHandleFunctions struct {
	PaymentAPI PaymentAPI
}

// RouterConfig carries the cross-cutting collaborators of the router.
type RouterConfig struct {
	ServiceName    string
	Logger         *slog.Logger
	Tokens         ports.TokenVerifier
	AllowedOrigins []string
	// RateLimit is requests per second per client on Initiate and Verify; zero disables it.
	RateLimit float64
	RateBurst int
}

// NewRouter returns a new router.
func NewRouter(handleFunctions ApiHandleFunctions, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger))
	if corsMiddleware := CORS(cfg.AllowedOrigins); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}
	for _, route := range getRoutes(handleFunctions, cfg) {
		if route.HandlerFunc == nil {
			route.HandlerFunc = DefaultHandleFunc
		}
		handlers := append(append([]gin.HandlerFunc{}, route.Middleware...), route.HandlerFunc)
		router.Handle(route.Method, route.Pattern, handlers...)
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// DefaultHandleFunc is the default handler for routes without an implementation.
func DefaultHandleFunc(c *gin.Context) {
	c.String(http.StatusNotImplemented, "501 not implemented")
}

func getRoutes(handleFunctions ApiHandleFunctions, cfg RouterConfig) []Route {
	limiter := NewClientRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware()
	optional := OptionalAuth(cfg.Tokens)
	required := RequireAuth(cfg.Tokens)
	api := handleFunctions.PaymentAPI
	return []Route{
		{"Index", http.MethodGet, "/payment", api.Index, nil},
		{"InitiatePayment", http.MethodPost, "/payment", api.InitiatePayment, []gin.HandlerFunc{limiter, optional}},
		{"VerifyOrder", http.MethodGet, "/payment/verify/:orderId", api.VerifyOrder, []gin.HandlerFunc{limiter, optional}},
		{"VerifyTransaction", http.MethodGet, "/payment/verify/tx/:transactionRef", api.VerifyTransaction, []gin.HandlerFunc{limiter, required}},
		{"HandleWebhook", http.MethodPost, "/payment/webhook", api.HandleWebhook, nil},
		{"HandleCallback", http.MethodGet, "/payment/callback/:orderId", api.HandleCallback, nil},
		{"GetPaymentStatus", http.MethodGet, "/payment/status/:orderId", api.GetPaymentStatus, nil},
	}
}
