package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Apurer/payment-reconciler/internal/app/api"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/adapters/session"
	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
	platformobservability "github.com/Apurer/payment-reconciler/internal/platform/observability"
)

func sweepCmd() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-verify stale unresolved payments that never received a webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			components, err := persistentComponents(ctx)
			if err != nil {
				return err
			}
			defer components.Close()

			result, err := components.Service.SweepPending(ctx, types.SweepInput{OlderThan: olderThan, Limit: limit})
			if err != nil {
				return fmt.Errorf("sweep pending payments: %w", err)
			}
			components.Logger.Info("payment sweep completed",
				slog.Int("checked", result.Checked),
				slog.Int("confirmed", result.Confirmed),
				slog.Int("failed", result.Failed),
				slog.Int("pending", result.Pending),
				slog.Int("errors", result.Errors))
			return writeJSON(cmd, result)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "Only orders untouched for at least this long")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum orders to verify")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall deadline for the sweep")
	return cmd
}

func purgeReceiptsCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge-receipts",
		Short: "Delete webhook receipts past their retention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			components, err := persistentComponents(ctx)
			if err != nil {
				return err
			}
			defer components.Close()

			retention := olderThan
			if retention <= 0 {
				retention = components.Config.ReceiptRetention()
			}
			purged, err := components.Receipts.PurgeOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				return fmt.Errorf("purge webhook receipts: %w", err)
			}
			components.Logger.Info("webhook receipt purge completed", slog.Int64("purged", purged), slog.Duration("retention", retention))
			return writeJSON(cmd, map[string]int64{"purged": purged})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Retention window (defaults to RECEIPT_RETENTION_HOURS)")
	return cmd
}

func capsuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capsule",
		Short: "Session capsule support tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <capsule>",
		Short: "Decode a session capsule with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := api.LoadConfig()
			if err != nil {
				return err
			}
			codec, err := session.NewCapsuleCodec(cfg.CapsuleSecret, cfg.CapsuleTTL())
			if err != nil {
				return err
			}
			capsule, err := codec.Decode(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"userId":    capsule.UserID,
				"orderId":   capsule.OrderID,
				"issuedAt":  capsule.IssuedAt,
				"expiresAt": capsule.ExpiresAt,
				"token":     redact(capsule.BearerToken),
			})
		},
	})
	return cmd
}

// persistentComponents refuses to run against in-memory stores: an operator command there would
// act on an empty process-local database.
func persistentComponents(ctx context.Context) (*api.Components, error) {
	cfg, err := api.LoadConfig()
	if err != nil {
		return nil, err
	}
	instruments := &platformobservability.Instruments{Logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	components, err := api.BuildComponents(ctx, cfg, instruments, nil)
	if err != nil {
		return nil, err
	}
	if !components.Postgres {
		components.Close()
		return nil, errors.New("POSTGRES_DSN not set or connection failed; refusing to run against in-memory stores")
	}
	return components, nil
}

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
