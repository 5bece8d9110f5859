package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/laundrix/api/internal/database"
	"github.com/shopspring/decimal"
)

// Ledger errors.
var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrTransactionNotFound    = errors.New("wallet transaction not found")
	ErrInsufficientBalance    = errors.New("insufficient wallet balance")
	ErrNegativeBalance        = errors.New("adjustment would make balance negative")
	ErrNoBalanceChange        = errors.New("adjustment does not change the balance")
	ErrInvalidTransactionType = errors.New("invalid transaction_type")
	ErrLedgerNotSettled       = errors.New("linked wallet transaction could not be completed")
)

// ledgerStore is the wallet subset shared by the wallet and payment stores.
type ledgerStore interface {
	GetWalletForUpdate(ctx context.Context, id uuid.UUID) (database.Wallet, error)
	UpdateWalletBalance(ctx context.Context, arg database.UpdateWalletBalanceParams) (database.Wallet, error)
	CreateWalletTransaction(ctx context.Context, arg database.CreateWalletTransactionParams) (database.WalletTransaction, error)
	GetWalletTransaction(ctx context.Context, id uuid.UUID) (database.WalletTransaction, error)
	CompleteWalletTransaction(ctx context.Context, arg database.CompleteWalletTransactionParams) (database.WalletTransaction, error)
	FailWalletTransaction(ctx context.Context, id uuid.UUID) (database.WalletTransaction, error)
}

// signedAmount returns the balance delta of a transaction. ADJUSTMENT
// amounts are stored signed; every other type stores a magnitude.
func signedAmount(t database.WalletTransactionType, amount decimal.Decimal) decimal.Decimal {
	switch t {
	case database.WalletTransactionTypeDEPOSIT, database.WalletTransactionTypeREFUND:
		return amount.Abs()
	case database.WalletTransactionTypeWITHDRAWAL, database.WalletTransactionTypePAYMENT, database.WalletTransactionTypeTRANSFER:
		return amount.Abs().Neg()
	default:
		return amount
	}
}

// ledgerEntry is one completed balance movement. Delta is signed. When
// SetBalance is non-nil the delta is derived from the locked balance instead.
type ledgerEntry struct {
	WalletID    uuid.UUID
	Type        database.WalletTransactionType
	Delta       decimal.Decimal
	SetBalance  *decimal.Decimal
	Description string
	OrderID     uuid.UUID
	Metadata    []byte
}

// postLedgerEntry locks the wallet, appends a COMPLETED transaction and
// moves the balance. Must run inside a transaction.
func postLedgerEntry(ctx context.Context, store ledgerStore, e ledgerEntry) (database.Wallet, database.WalletTransaction, error) {
	w, err := store.GetWalletForUpdate(ctx, e.WalletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Wallet{}, database.WalletTransaction{}, ErrWalletNotFound
		}
		return database.Wallet{}, database.WalletTransaction{}, fmt.Errorf("lock wallet: %w", err)
	}

	before := database.Decimal(w.Balance)
	delta := e.Delta
	if e.SetBalance != nil {
		delta = e.SetBalance.Sub(before)
	}
	if delta.IsZero() {
		return database.Wallet{}, database.WalletTransaction{}, ErrNoBalanceChange
	}
	after := before.Add(delta)
	if after.IsNegative() {
		if e.Type == database.WalletTransactionTypeADJUSTMENT {
			return database.Wallet{}, database.WalletTransaction{}, ErrNegativeBalance
		}
		return database.Wallet{}, database.WalletTransaction{}, fmt.Errorf("%w: balance %s, requested %s",
			ErrInsufficientBalance, before.StringFixed(database.MoneyScale), delta.Abs().StringFixed(database.MoneyScale))
	}

	amount := delta.Abs()
	if e.Type == database.WalletTransactionTypeADJUSTMENT {
		amount = delta
	}

	txn, err := store.CreateWalletTransaction(ctx, database.CreateWalletTransactionParams{
		WalletID:        w.ID,
		TransactionType: e.Type,
		Amount:          database.Numeric(amount),
		BalanceBefore:   database.Numeric(before),
		BalanceAfter:    database.Numeric(after),
		Status:          database.WalletTransactionStatusCOMPLETED,
		Description:     database.Text(e.Description),
		OrderID:         database.UUID(e.OrderID),
		Metadata:        e.Metadata,
	})
	if err != nil {
		return database.Wallet{}, database.WalletTransaction{}, fmt.Errorf("create wallet transaction: %w", err)
	}

	updated, err := store.UpdateWalletBalance(ctx, database.UpdateWalletBalanceParams{
		ID:      w.ID,
		Balance: database.Numeric(after),
		Version: w.Version,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Wallet{}, database.WalletTransaction{}, ErrConcurrentUpdate
		}
		return database.Wallet{}, database.WalletTransaction{}, fmt.Errorf("update wallet balance: %w", err)
	}
	return updated, txn, nil
}

// createPendingDeposit records a DEPOSIT that does not move the balance yet.
// Its before/after values are a projection and are recomputed on completion.
func createPendingDeposit(ctx context.Context, store ledgerStore, walletID uuid.UUID, amount decimal.Decimal, description string, metadata []byte) (database.WalletTransaction, error) {
	w, err := store.GetWalletForUpdate(ctx, walletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.WalletTransaction{}, ErrWalletNotFound
		}
		return database.WalletTransaction{}, fmt.Errorf("lock wallet: %w", err)
	}
	balance := database.Decimal(w.Balance)
	txn, err := store.CreateWalletTransaction(ctx, database.CreateWalletTransactionParams{
		WalletID:        w.ID,
		TransactionType: database.WalletTransactionTypeDEPOSIT,
		Amount:          database.Numeric(amount),
		BalanceBefore:   database.Numeric(balance),
		BalanceAfter:    database.Numeric(balance.Add(amount)),
		Status:          database.WalletTransactionStatusPENDING,
		Description:     database.Text(description),
		Metadata:        metadata,
	})
	if err != nil {
		return database.WalletTransaction{}, fmt.Errorf("create pending deposit: %w", err)
	}
	return txn, nil
}

// completePendingTransaction applies a PENDING transaction to its wallet
// exactly once. With reopenFailed a FAILED transaction is applied as well;
// this is how a payment that settles after being declined credits its
// deposit. applied is false when there was nothing left to apply.
func completePendingTransaction(ctx context.Context, store ledgerStore, txnID uuid.UUID, reopenFailed bool) (w database.Wallet, txn database.WalletTransaction, applied bool, err error) {
	txn, err = store.GetWalletTransaction(ctx, txnID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return w, txn, false, ErrTransactionNotFound
		}
		return w, txn, false, fmt.Errorf("get wallet transaction: %w", err)
	}
	switch {
	case txn.Status == database.WalletTransactionStatusPENDING:
	case txn.Status == database.WalletTransactionStatusFAILED && reopenFailed:
	default:
		return w, txn, false, nil
	}

	locked, err := store.GetWalletForUpdate(ctx, txn.WalletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return w, txn, false, ErrWalletNotFound
		}
		return w, txn, false, fmt.Errorf("lock wallet: %w", err)
	}
	before := database.Decimal(locked.Balance)
	after := before.Add(signedAmount(txn.TransactionType, database.Decimal(txn.Amount)))
	if after.IsNegative() {
		return w, txn, false, ErrInsufficientBalance
	}

	done, err := store.CompleteWalletTransaction(ctx, database.CompleteWalletTransactionParams{
		ID:            txn.ID,
		BalanceBefore: database.Numeric(before),
		BalanceAfter:  database.Numeric(after),
		FromStatus:    txn.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return w, txn, false, nil
		}
		return w, txn, false, fmt.Errorf("complete wallet transaction: %w", err)
	}

	w, err = store.UpdateWalletBalance(ctx, database.UpdateWalletBalanceParams{
		ID:      locked.ID,
		Balance: database.Numeric(after),
		Version: locked.Version,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return w, done, false, ErrConcurrentUpdate
		}
		return w, done, false, fmt.Errorf("update wallet balance: %w", err)
	}
	return w, done, true, nil
}

// failPendingTransaction marks a PENDING transaction FAILED. applied is
// false when it was no longer pending.
func failPendingTransaction(ctx context.Context, store ledgerStore, txnID uuid.UUID) (database.WalletTransaction, bool, error) {
	txn, err := store.FailWalletTransaction(ctx, txnID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.WalletTransaction{}, false, nil
		}
		return database.WalletTransaction{}, false, fmt.Errorf("fail wallet transaction: %w", err)
	}
	return txn, true, nil
}
