package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/laundrix/api/internal/app"
	"github.com/laundrix/api/internal/auth"
	"github.com/laundrix/api/internal/config"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/service"
	"github.com/shopspring/decimal"
)

type seedCustomer struct {
	name    string
	email   string
	phone   string
	deposit string
}

var customers = []seedCustomer{
	{"Fatima Al-Sabah", "fatima@example.com", "+96550000001", "25.000"},
	{"Yousef Hamad", "yousef@example.com", "+96550000002", "10.500"},
	{"Noura Khaled", "noura@example.com", "+96550000003", "0"},
}

func main() {
	orders := flag.Int("orders", 1, "Orders to place per customer")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed dev tokens")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*orders, *tokenTTL, logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seed completed successfully")
}

func run(ordersPer int, tokenTTL time.Duration, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	svc := app.NewServices(cfg, pool, nil, logger)

	for _, c := range customers {
		customerID, err := seedCustomerRow(ctx, pool, c, logger)
		if err != nil {
			return err
		}

		wallet, created, err := svc.Wallets.CreateWalletForCustomer(ctx, customerID)
		if err != nil {
			return fmt.Errorf("create wallet for %s: %w", c.email, err)
		}
		if amount := decimal.RequireFromString(c.deposit); created && amount.IsPositive() {
			if _, err := svc.Wallets.ProcessWalletTransaction(ctx, service.WalletTransactionRequest{
				WalletID:    wallet.ID,
				Type:        database.WalletTransactionTypeDEPOSIT,
				Amount:      amount,
				Description: "opening balance",
			}); err != nil {
				return fmt.Errorf("deposit for %s: %w", c.email, err)
			}
		}

		for i := 0; i < ordersPer; i++ {
			start := time.Now().Add(time.Duration(i+1) * 24 * time.Hour).Truncate(time.Hour)
			order, err := svc.Tracking.CreateOrder(ctx, service.CreateOrderRequest{
				CustomerID:          customerID,
				ActorID:             customerID,
				ActorRole:           database.ActorRoleCUSTOMER,
				PickupAddress:       "Block 3, Street 12, Salmiya",
				PickupWindowStart:   start,
				PickupWindowEnd:     start.Add(2 * time.Hour),
				DeliveryWindowStart: start.Add(48 * time.Hour),
				DeliveryWindowEnd:   start.Add(50 * time.Hour),
			})
			if err != nil {
				return fmt.Errorf("create order for %s: %w", c.email, err)
			}
			logger.Info("created order", "order_number", order.OrderNumber, "customer", c.email)
		}

		if err := printToken(cfg, customerID, auth.RoleCustomer, tokenTTL, c.email); err != nil {
			return err
		}
	}

	for _, role := range []string{auth.RoleAdmin, auth.RoleDriver, auth.RoleFacility} {
		if err := printToken(cfg, uuid.New(), role, tokenTTL, role); err != nil {
			return err
		}
	}
	return nil
}

// seedCustomerRow returns the customer with c.email, inserting it if needed.
func seedCustomerRow(ctx context.Context, pool *pgxpool.Pool, c seedCustomer, logger *slog.Logger) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM customers WHERE email = $1`, c.email).Scan(&id)
	if err == nil {
		logger.Info("customer already exists, skipping", "email", c.email, "id", id)
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("check customer %s: %w", c.email, err)
	}

	err = pool.QueryRow(ctx,
		`INSERT INTO customers (name, email, phone) VALUES ($1, $2, $3) RETURNING id`,
		c.name, c.email, c.phone,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert customer %s: %w", c.email, err)
	}
	logger.Info("created customer", "email", c.email, "id", id)
	return id, nil
}

// printToken prints a bearer token for local testing; sessions are issued
// by the identity provider in other environments.
func printToken(cfg *config.Config, userID uuid.UUID, role string, ttl time.Duration, label string) error {
	token, err := auth.GenerateToken(cfg.JWTSecret, userID, role, ttl)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Printf("%-22s %-9s %s\n", label, role, token)
	return nil
}
