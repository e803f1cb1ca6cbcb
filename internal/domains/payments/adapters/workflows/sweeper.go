package workflows

import (
	"context"
	"log/slog"
	"time"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

// PendingSweeper periodically re-verifies unresolved orders that never saw a webhook. Webhooks
// whose confirmation could not be scheduled are picked up here.
type PendingSweeper struct {
	service  ports.Service
	logger   *slog.Logger
	interval time.Duration
	input    types.SweepInput
}

// NewPendingSweeper builds a sweeper that runs every interval with the given selection.
func NewPendingSweeper(service ports.Service, logger *slog.Logger, interval time.Duration, input types.SweepInput) *PendingSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &PendingSweeper{service: service, logger: logger, interval: interval, input: input}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *PendingSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "payment sweep failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single sweep bounded by the interval.
func (s *PendingSweeper) SweepOnce(ctx context.Context) (*types.SweepResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	result, err := s.service.SweepPending(runCtx, s.input)
	if err != nil {
		return result, err
	}
	s.logger.LogAttrs(runCtx, slog.LevelInfo, "payment sweep completed",
		slog.Int("checked", result.Checked),
		slog.Int("confirmed", result.Confirmed),
		slog.Int("failed", result.Failed),
		slog.Int("pending", result.Pending),
		slog.Int("errors", result.Errors))
	return result, nil
}
