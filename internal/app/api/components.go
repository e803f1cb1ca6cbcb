package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	workerlog "go.temporal.io/sdk/log"

	processorclient "github.com/Apurer/payment-reconciler/internal/clients/http/processor"
	paymentprocessor "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/external/processor"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/identity"
	paymemory "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/memory"
	paymentsobs "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/observability"
	paymentpostgres "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/persistence/postgres"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/session"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/signature"
	paymentsapp "github.com/Apurer/payment-reconciler/internal/domains/payments/application"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
	"github.com/Apurer/payment-reconciler/internal/platform/migrations"
	platformobservability "github.com/Apurer/payment-reconciler/internal/platform/observability"
	platformpostgres "github.com/Apurer/payment-reconciler/internal/platform/postgres"
)

// Components bundles the payment collaborators shared by the API, the worker and the CLI.
type Components struct {
	Config      Config
	Logger      *slog.Logger
	Orders      ports.OrderStore
	Receipts    ports.ReceiptStore
	Service     ports.Service
	Capsules    *session.CapsuleCodec
	Tokens      ports.TokenVerifier
	WebhookSigs *signature.HMACVerifier
	Postgres    bool
	cleanup     func()
}

// Close releases the database connection.
func (c *Components) Close() {
	if c != nil && c.cleanup != nil {
		c.cleanup()
	}
}

// BuildComponents wires stores, gateway, codecs and the instrumented payments service. scheduler
// may be nil when the process never schedules confirmations.
func BuildComponents(ctx context.Context, cfg Config, instruments *platformobservability.Instruments, scheduler ports.ConfirmationScheduler) (*Components, error) {
	logger := effectiveLogger(instruments)
	components := &Components{Config: cfg, Logger: logger, cleanup: func() {}}

	db, cleanup := platformpostgres.ConnectWithFallback(ctx, cfg.PostgresDSN, logger)
	if db != nil {
		if err := migrations.Run(db); err != nil {
			cleanup()
			return nil, fmt.Errorf("migrate payments schema: %w", err)
		}
		components.Orders = paymentpostgres.NewOrderStore(db)
		components.Receipts = paymentpostgres.NewReceiptStore(db)
		components.Postgres = true
		components.cleanup = cleanup
		logger.Info("payment stores configured with postgres")
	} else {
		components.Orders = paymemory.NewOrderStore()
		components.Receipts = paymemory.NewReceiptStore()
	}

	processor := processorclient.NewClient(processorclient.Config{
		BaseURL:        cfg.Processor.BaseURL,
		SecretKey:      cfg.Processor.SecretKey,
		Currency:       cfg.Processor.Currency,
		DefaultCity:    cfg.Processor.DefaultCity,
		DefaultState:   cfg.Processor.DefaultState,
		DefaultCountry: cfg.Processor.DefaultCountry,
	}, &http.Client{})
	if !processor.Configured() {
		logger.Warn("PROCESSOR_SECRET_KEY not set, checkout initiation is disabled")
	}

	opts := []paymentsapp.Option{
		paymentsapp.WithReceiptStore(components.Receipts),
		paymentsapp.WithRedirects(paymentsapp.RedirectConfig{PublicBaseURL: cfg.PublicBaseURL, FrontendURL: cfg.FrontendURL}),
		paymentsapp.WithCallbackVerifier(signature.NewHMACVerifier(cfg.CallbackSigningSecret)),
	}
	if scheduler != nil {
		opts = append(opts, paymentsapp.WithConfirmationScheduler(scheduler))
	}
	if cfg.CapsuleSecret != "" {
		codec, err := session.NewCapsuleCodec(cfg.CapsuleSecret, cfg.CapsuleTTL())
		if err != nil {
			components.Close()
			return nil, err
		}
		components.Capsules = codec
		opts = append(opts, paymentsapp.WithCapsuleCodec(codec))
	} else {
		logger.Warn("CAPSULE_SECRET not set, sessions will not be restored after checkout")
	}
	if cfg.JWTSecret != "" {
		tokens, err := identity.NewJWTVerifier(cfg.JWTSecret)
		if err != nil {
			components.Close()
			return nil, err
		}
		components.Tokens = tokens
	} else {
		logger.Warn("JWT_SECRET not set, every caller is anonymous")
	}
	components.WebhookSigs = signature.NewHMACVerifier(cfg.WebhookSecret)
	if !components.WebhookSigs.Enabled() {
		logger.Warn("WEBHOOK_SECRET not set, webhook signatures are not checked")
	}

	core := paymentsapp.NewService(components.Orders, paymentprocessor.NewGateway(processor), opts...)
	components.Service = paymentsobs.New(
		core,
		paymentsobs.WithLogger(logger),
		paymentsobs.WithTracer(instruments.Tracer("internal.payments.application")),
		paymentsobs.WithMeter(instruments.Meter("internal.payments.application")),
	)
	return components, nil
}

// ConnectTemporal dials the Temporal frontend with tracing and structured logging.
func ConnectTemporal(cfg Config, instruments *platformobservability.Instruments) (client.Client, error) {
	if cfg.TemporalDisabled {
		return nil, errors.New("temporal disabled via TEMPORAL_DISABLED")
	}
	tracerOptions := temporalotel.TracerOptions{}
	if instruments != nil {
		tracerOptions.Tracer = instruments.Tracer("temporal-client")
	}
	tracingInterceptor, err := temporalotel.NewTracingInterceptor(tracerOptions)
	if err != nil {
		return nil, err
	}
	options := client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    workerlog.NewStructuredLogger(effectiveLogger(instruments)),
	}
	options.Interceptors = append(options.Interceptors, tracingInterceptor)
	return client.Dial(options)
}

func effectiveLogger(instruments *platformobservability.Instruments) *slog.Logger {
	if instruments != nil && instruments.Logger != nil {
		return instruments.Logger
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
