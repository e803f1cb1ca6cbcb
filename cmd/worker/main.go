package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/Apurer/payment-reconciler/internal/app/api"
	paymentadapters "github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/workflows"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	platformobservability "github.com/Apurer/payment-reconciler/internal/platform/observability"
	paymentactivities "github.com/Apurer/payment-reconciler/internal/platform/temporal/activities/payments"
	paymentworkflows "github.com/Apurer/payment-reconciler/internal/platform/temporal/workflows/payments"
)

func main() {
	ctx := context.Background()
	const serviceName = "payment-reconciler-worker"
	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	instruments, shutdown, err := platformobservability.Init(ctx, platformobservability.ServiceInfo{
		Name:        serviceName,
		Version:     cfg.ServiceVersion,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("failed to initialize observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger

	components, err := api.BuildComponents(ctx, cfg, instruments, nil)
	if err != nil {
		logger.Error("failed to build payment components", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer components.Close()
	if !components.Postgres {
		logger.Warn("worker is verifying against in-memory stores; confirmations will not reach the API process")
	}
	paymentActivities := paymentactivities.NewActivities(components.Service)

	temporalClient, err := api.ConnectTemporal(cfg, instruments)
	if err != nil {
		logger.Error("failed to create Temporal client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, paymentworkflows.PaymentConfirmationTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(paymentworkflows.PaymentConfirmationWorkflow, workflow.RegisterOptions{Name: paymentworkflows.PaymentConfirmationWorkflowName})
	w.RegisterActivityWithOptions(paymentActivities.VerifyPayment, activity.RegisterOptions{Name: paymentactivities.VerifyPaymentActivityName})

	sweepCtx, stopSweeps := context.WithCancel(ctx)
	defer stopSweeps()
	if components.Postgres {
		sweeper := paymentadapters.NewPendingSweeper(components.Service, logger, cfg.SweepInterval(), types.SweepInput{})
		go sweeper.Run(sweepCtx)
	}

	logger.Info("worker listening", slog.String("taskQueue", paymentworkflows.PaymentConfirmationTaskQueue), slog.String("namespace", cfg.TemporalNamespace))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("Temporal worker exited with error", slog.String("error", err.Error()))
		return
	}
	logger.Info("Temporal worker stopped")
}
