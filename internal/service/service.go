// Package service holds the order tracking, wallet ledger and payment
// business logic. Every multi-row write runs in one pgx transaction built
// from a store factory, so tests can swap in fakes.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/gateway"
	"github.com/laundrix/api/internal/notify"
	"github.com/shopspring/decimal"
)

// Errors shared across services.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrInvalidAmount    = errors.New("amount must be > 0 with at most 3 decimal places")
	ErrReasonRequired   = errors.New("reason is required")
	ErrConcurrentUpdate = errors.New("record was modified concurrently")

	ErrGateway            = errors.New("payment gateway error")
	ErrGatewayUnavailable = errors.New("payment gateway not configured")
)

// ValidAmount reports whether d is a positive amount that is stored without
// rounding.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && fitsMoneyScale(d)
}

func fitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(database.MoneyScale))
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is a pool that can run single statements and start transactions.
// Satisfied by *pgxpool.Pool.
type DB interface {
	TxBeginner
	database.DBTX
}

// Gateway is the subset of the Tap client the services call.
// Satisfied by *gateway.Client.
type Gateway interface {
	CreateCharge(ctx context.Context, req gateway.CreateChargeRequest) (*gateway.Charge, error)
	GetCharge(ctx context.Context, id string) (*gateway.Charge, error)
	CreateInvoice(ctx context.Context, req gateway.CreateInvoiceRequest) (*gateway.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*gateway.Invoice, error)
	CancelInvoice(ctx context.Context, id string) error
	ResendInvoice(ctx context.Context, id string) error
}

// events delivers notifications after commit. Failures are logged only.
type events struct {
	notifier notify.Notifier
	logger   *slog.Logger
}

func newEvents(n notify.Notifier, logger *slog.Logger) events {
	if n == nil {
		n = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return events{notifier: n, logger: logger}
}

func (e events) emit(ctx context.Context, ev notify.Event) {
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.Warn("notification failed",
			"type", ev.Type,
			"order_id", ev.OrderID,
			"payment_id", ev.PaymentID,
			"error", err,
		)
	}
}

func clampLimit(limit, def, maxLimit int32) int32 {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
