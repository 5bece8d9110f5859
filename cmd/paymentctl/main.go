// Command paymentctl runs payment reconciliation batches from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/laundrix/api/internal/app"
	"github.com/laundrix/api/internal/config"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/service"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Reconcile laundry payments with the Tap gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(cleanupCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func syncCmd() *cobra.Command {
	var (
		methods []string
		status  string
		limit   int32
		offset  int32
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Re-read gateway status for pending payments and apply changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(cmd.Context(), func(ctx context.Context, rec *service.ReconcileService) error {
				f := service.SyncFilter{
					Status: database.PaymentStatus(status),
					Limit:  limit,
					Offset: offset,
				}
				for _, m := range methods {
					f.Methods = append(f.Methods, database.PaymentMethod(m))
				}
				report, err := rec.SyncPaymentStatuses(ctx, f)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&methods, "method", "m", nil, "Payment methods to sync (TAP_INVOICE, TAP_CHARGE)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Local status to select (default PENDING)")
	cmd.Flags().Int32VarP(&limit, "limit", "n", 0, "Maximum records to check (default 50)")
	cmd.Flags().Int32Var(&offset, "offset", 0, "Records to skip")

	return cmd
}

func cleanupCmd() *cobra.Command {
	var (
		dryRun     bool
		batchSize  int32
		maxRecords int
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Backfill missing gateway references on payment records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(cmd.Context(), func(ctx context.Context, rec *service.ReconcileService) error {
				report, err := rec.CleanupPaymentData(ctx, service.CleanupOptions{
					BatchSize:  batchSize,
					DryRun:     dryRun,
					MaxRecords: maxRecords,
				})
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "Report fixes without writing them")
	cmd.Flags().Int32Var(&batchSize, "batch-size", 100, "Records read per page")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "Stop after this many records (0 means all)")

	return cmd
}

func withReconciler(ctx context.Context, fn func(context.Context, *service.ReconcileService) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	notifier, closeNotifier, err := app.NewNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	return fn(ctx, app.NewServices(cfg, pool, notifier, logger).Reconcile)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
