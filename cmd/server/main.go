package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/laundrix/api/internal/app"
	"github.com/laundrix/api/internal/config"
	"github.com/laundrix/api/internal/notify"
	"github.com/laundrix/api/internal/router"
	"github.com/laundrix/api/internal/scheduler"
	"github.com/laundrix/api/internal/service"
	"github.com/laundrix/api/internal/ws"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	hub := ws.NewHub()

	notifier, closeNotifier, err := app.NewNotifier(cfg, logger, notify.NewFeed(hub))
	if err != nil {
		return err
	}
	defer closeNotifier()

	svc := app.NewServices(cfg, pool, notifier, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, svc.Routes(), hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var syncer *scheduler.Scheduler
	if cfg.Reconcile.Enabled {
		syncer = newSyncScheduler(cfg, svc.Reconcile, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if syncer != nil {
		g.Go(func() error {
			if err := syncer.Start(gctx); err != nil {
				return fmt.Errorf("start payment sync: %w", err)
			}
			<-gctx.Done()
			syncer.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newSyncScheduler runs the periodic gateway reconciliation. With REDIS_ADDR
// set, replicas share a lock so only one of them syncs per tick.
func newSyncScheduler(cfg *config.Config, rec *service.ReconcileService, logger *slog.Logger) *scheduler.Scheduler {
	opts := scheduler.Options{Logger: logger}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		opts.Locker = scheduler.NewRedisLocker(client, "laundrix:lock:")
		logger.Info("payment sync lock via redis", "addr", cfg.RedisAddr)
	}

	job := func(ctx context.Context) error {
		report, err := rec.SyncPaymentStatuses(ctx, service.SyncFilter{Limit: int32(cfg.Reconcile.BatchSize)})
		if err != nil {
			return err
		}
		logger.Info("payment sync finished",
			"checked", report.TotalChecked,
			"mismatches", report.StatusMismatches,
			"updated", report.Updated,
			"errors", len(report.Errors),
		)
		return nil
	}
	return scheduler.New("payment-sync", cfg.Reconcile.Interval, job, opts)
}
