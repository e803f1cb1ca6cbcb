package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	paymentserver "github.com/Apurer/payment-reconciler/go"
	paymentworkflows "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/workflows"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
	platformobservability "github.com/Apurer/payment-reconciler/internal/platform/observability"
)

const inlineConfirmationDelay = 5 * time.Second

// Run boots the payments HTTP API with observability, stores, and confirmations wired. It returns
// once ctx is cancelled and in-flight requests have drained.
func Run(ctx context.Context) error {
	const serviceName = "payment-reconciler-api"
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	instruments, shutdown, err := platformobservability.Init(ctx, platformobservability.ServiceInfo{
		Name:        serviceName,
		Version:     cfg.ServiceVersion,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger

	inline := paymentworkflows.NewInlineConfirmations(logger, inlineConfirmationDelay)
	var scheduler ports.ConfirmationScheduler = inline
	if temporalClient, err := ConnectTemporal(cfg, instruments); err != nil {
		logger.Warn("Temporal workflows unavailable, confirming payments inline", slog.String("error", err.Error()))
	} else {
		defer temporalClient.Close()
		scheduler = paymentworkflows.NewTemporalConfirmations(temporalClient)
		logger.Info("Temporal workflows enabled", slog.String("namespace", cfg.TemporalNamespace))
	}

	components, err := BuildComponents(ctx, cfg, instruments, scheduler)
	if err != nil {
		return err
	}
	defer components.Close()
	inline.Attach(components.Service)
	defer inline.Wait()

	handlers := paymentserver.ApiHandleFunctions{
		PaymentAPI: paymentserver.NewPaymentAPI(components.Service, components.WebhookSigs, cfg.FrontendURL, logger),
	}
	router := paymentserver.NewRouter(handlers, paymentserver.RouterConfig{
		ServiceName:    serviceName,
		Logger:         logger,
		Tokens:         components.Tokens,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimitRPS,
		RateBurst:      cfg.RateLimitBurst,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("payments API listening", slog.String("addr", server.Addr))
		serveErr <- server.ListenAndServe()
	}()
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("payments API server exited", slog.String("addr", server.Addr), slog.String("error", err.Error()))
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("payments API shutdown failed", slog.String("error", err.Error()))
		return err
	}
	logger.Info("payments API stopped")
	return nil
}
