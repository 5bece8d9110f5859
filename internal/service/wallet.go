package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/laundrix/api/internal/audit"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/enum"
	"github.com/laundrix/api/internal/gateway"
	"github.com/laundrix/api/internal/notify"
	"github.com/shopspring/decimal"
)

// Errors returned by the wallet service.
var (
	ErrAdjustmentMode  = errors.New("exactly one of new_balance or delta is required")
	ErrInvalidMetadata = errors.New("invalid metadata")
)

const defaultWalletCurrency = "KWD"

// WalletStore defines the DB methods the wallet service needs.
// Satisfied by *database.Queries.
type WalletStore interface {
	ledgerStore
	GetWallet(ctx context.Context, id uuid.UUID) (database.Wallet, error)
	GetWalletByCustomer(ctx context.Context, customerID uuid.UUID) (database.Wallet, error)
	CreateWallet(ctx context.Context, arg database.CreateWalletParams) (database.Wallet, error)
	ListWalletTransactions(ctx context.Context, arg database.ListWalletTransactionsParams) ([]database.WalletTransaction, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	CreatePaymentRecord(ctx context.Context, arg database.CreatePaymentRecordParams) (database.PaymentRecord, error)
}

// NewWalletStore creates a WalletStore from a DBTX (pool or tx).
type NewWalletStore func(db database.DBTX) WalletStore

// WalletService manages customer wallets and their append-only ledger.
type WalletService struct {
	db       DB
	newStore NewWalletStore
	gateway  Gateway
	currency string
	events   events
}

// NewWalletService creates a WalletService. gw may be nil when top-ups are
// not offered.
func NewWalletService(db DB, newStore NewWalletStore, gw Gateway, currency string, notifier notify.Notifier, logger *slog.Logger) *WalletService {
	if currency == "" {
		currency = defaultWalletCurrency
	}
	return &WalletService{
		db:       db,
		newStore: newStore,
		gateway:  gw,
		currency: currency,
		events:   newEvents(notifier, logger),
	}
}

// LedgerResult is a wallet after a balance movement and the transaction
// that caused it.
type LedgerResult struct {
	Wallet      database.Wallet            `json:"wallet"`
	Transaction database.WalletTransaction `json:"transaction"`
}

// CreateWalletForCustomer returns the customer's wallet, creating an empty
// one if needed. created reports whether this call inserted it.
func (s *WalletService) CreateWalletForCustomer(ctx context.Context, customerID uuid.UUID) (w database.Wallet, created bool, err error) {
	store := s.newStore(s.db)

	w, err = store.GetWalletByCustomer(ctx, customerID)
	if err == nil {
		return w, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return w, false, fmt.Errorf("get wallet: %w", err)
	}

	if _, err := store.GetCustomer(ctx, customerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return w, false, ErrCustomerNotFound
		}
		return w, false, fmt.Errorf("get customer: %w", err)
	}

	w, err = store.CreateWallet(ctx, database.CreateWalletParams{
		CustomerID: customerID,
		Currency:   s.currency,
	})
	if err == nil {
		return w, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return w, false, fmt.Errorf("create wallet: %w", err)
	}

	// Lost the insert race; the other writer's wallet is the wallet.
	w, err = store.GetWalletByCustomer(ctx, customerID)
	if err != nil {
		return w, false, fmt.Errorf("get wallet after conflict: %w", err)
	}
	return w, false, nil
}

// WalletTransactionRequest is the input for ProcessWalletTransaction.
type WalletTransactionRequest struct {
	WalletID    uuid.UUID
	Type        database.WalletTransactionType
	Amount      decimal.Decimal
	Description string
	OrderID     uuid.UUID
	Metadata    []byte
}

// ProcessWalletTransaction posts a completed DEPOSIT, WITHDRAWAL, PAYMENT,
// REFUND or TRANSFER. Amount is a positive magnitude; the type decides the
// sign. Adjustments go through AdjustBalance.
func (s *WalletService) ProcessWalletTransaction(ctx context.Context, req WalletTransactionRequest) (*LedgerResult, error) {
	if !req.Type.Valid() || req.Type == database.WalletTransactionTypeADJUSTMENT {
		return nil, ErrInvalidTransactionType
	}
	if !ValidAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}
	if err := audit.Validate(req.Metadata); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	w, txn, err := postLedgerEntry(ctx, store, ledgerEntry{
		WalletID:    req.WalletID,
		Type:        req.Type,
		Delta:       signedAmount(req.Type, req.Amount),
		Description: req.Description,
		OrderID:     req.OrderID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.emitWalletUpdated(ctx, w, txn)
	return &LedgerResult{Wallet: w, Transaction: txn}, nil
}

// AdjustBalanceRequest is an admin correction. Exactly one of NewBalance and
// Delta must be set.
type AdjustBalanceRequest struct {
	WalletID   uuid.UUID
	AdminID    uuid.UUID
	NewBalance *decimal.Decimal
	Delta      *decimal.Decimal
	Reason     string
}

// AdjustBalance records an ADJUSTMENT transaction with a signed amount.
func (s *WalletService) AdjustBalance(ctx context.Context, req AdjustBalanceRequest) (*LedgerResult, error) {
	if (req.NewBalance == nil) == (req.Delta == nil) {
		return nil, ErrAdjustmentMode
	}
	if req.Reason == "" {
		return nil, ErrReasonRequired
	}

	entry := ledgerEntry{
		WalletID:    req.WalletID,
		Type:        database.WalletTransactionTypeADJUSTMENT,
		Description: "Balance adjustment: " + req.Reason,
	}
	meta := audit.Entry{
		Kind:    audit.KindBalanceAdjustment,
		ActorID: req.AdminID.String(),
		Reason:  req.Reason,
	}
	if req.NewBalance != nil {
		if req.NewBalance.IsNegative() {
			return nil, ErrNegativeBalance
		}
		if !fitsMoneyScale(*req.NewBalance) {
			return nil, ErrInvalidAmount
		}
		entry.SetBalance = req.NewBalance
		meta.Mode = enum.AdjustModeSet
		meta.Amount = req.NewBalance.StringFixed(database.MoneyScale)
	} else {
		if !fitsMoneyScale(*req.Delta) {
			return nil, ErrInvalidAmount
		}
		entry.Delta = *req.Delta
		meta.Mode = enum.AdjustModeDelta
		meta.Amount = req.Delta.StringFixed(database.MoneyScale)
	}
	metadata, err := audit.New(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	entry.Metadata = metadata

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	w, txn, err := postLedgerEntry(ctx, s.newStore(tx), entry)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.events.logger.Info("wallet balance adjusted",
		"wallet_id", w.ID,
		"admin_id", req.AdminID,
		"mode", meta.Mode,
		"balance", database.Decimal(w.Balance).StringFixed(database.MoneyScale),
	)
	s.emitWalletUpdated(ctx, w, txn)
	return &LedgerResult{Wallet: w, Transaction: txn}, nil
}

// CreatePendingDeposit records a PENDING deposit. The balance moves only
// when the deposit is completed.
func (s *WalletService) CreatePendingDeposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, description string) (database.WalletTransaction, error) {
	if !ValidAmount(amount) {
		return database.WalletTransaction{}, ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.WalletTransaction{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	txn, err := createPendingDeposit(ctx, s.newStore(tx), walletID, amount, description, nil)
	if err != nil {
		return database.WalletTransaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.WalletTransaction{}, fmt.Errorf("commit tx: %w", err)
	}
	return txn, nil
}

// CompletePendingTransaction applies a pending transaction. Completing one
// that is no longer pending returns its current state without effect.
func (s *WalletService) CompletePendingTransaction(ctx context.Context, txnID uuid.UUID) (*LedgerResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	w, txn, applied, err := completePendingTransaction(ctx, store, txnID, false)
	if err != nil {
		return nil, err
	}
	if !applied {
		w, err = store.GetWallet(ctx, txn.WalletID)
		if err != nil {
			return nil, fmt.Errorf("get wallet: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	if applied {
		s.emitWalletUpdated(ctx, w, txn)
	}
	return &LedgerResult{Wallet: w, Transaction: txn}, nil
}

// FailPendingTransaction marks a pending transaction FAILED.
func (s *WalletService) FailPendingTransaction(ctx context.Context, txnID uuid.UUID) (database.WalletTransaction, error) {
	store := s.newStore(s.db)
	txn, applied, err := failPendingTransaction(ctx, store, txnID)
	if err != nil {
		return database.WalletTransaction{}, err
	}
	if applied {
		return txn, nil
	}
	txn, err = store.GetWalletTransaction(ctx, txnID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.WalletTransaction{}, ErrTransactionNotFound
		}
		return database.WalletTransaction{}, fmt.Errorf("get wallet transaction: %w", err)
	}
	return txn, nil
}

// TopUpResult is a started top-up.
type TopUpResult struct {
	Wallet      database.Wallet            `json:"wallet"`
	Transaction database.WalletTransaction `json:"transaction"`
	Payment     database.PaymentRecord     `json:"payment"`
	CheckoutURL string                     `json:"checkout_url"`
}

// TopUp starts a gateway charge for amount and records a pending deposit
// linked to a pending TAP_CHARGE payment. Reconciliation settles both.
func (s *WalletService) TopUp(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (*TopUpResult, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}

	w, _, err := s.CreateWalletForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	customer, err := s.newStore(s.db).GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}

	charge, err := s.gateway.CreateCharge(ctx, gateway.CreateChargeRequest{
		Amount:      amount,
		Description: "Wallet top-up",
		Customer:    gatewayCustomer(customer),
		Reference:   gateway.Reference{Transaction: "topup-" + w.ID.String()},
		Metadata:    map[string]string{"wallet_id": w.ID.String(), "customer_id": customerID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create charge: %w", ErrGateway, err)
	}

	depositMeta, err := audit.New(audit.Entry{
		Kind:      audit.KindTopUp,
		ActorID:   customerID.String(),
		Amount:    amount.StringFixed(database.MoneyScale),
		Reference: charge.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	paymentMeta, err := audit.New(audit.Entry{
		Kind:          audit.KindCreated,
		ActorID:       customerID.String(),
		To:            string(database.PaymentStatusPENDING),
		GatewayStatus: charge.Status,
		Amount:        amount.StringFixed(database.MoneyScale),
		Reference:     charge.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	txn, err := createPendingDeposit(ctx, store, w.ID, amount, "Wallet top-up", depositMeta)
	if err != nil {
		return nil, err
	}
	payment, err := store.CreatePaymentRecord(ctx, database.CreatePaymentRecordParams{
		CustomerID:          customerID,
		WalletTransactionID: database.UUID(txn.ID),
		Amount:              database.Numeric(amount),
		PaymentMethod:       database.PaymentMethodTAPCHARGE,
		PaymentStatus:       database.PaymentStatusPENDING,
		TapReference:        database.Text(charge.ID),
		Metadata:            paymentMeta,
		CreatedBy:           database.UUID(customerID),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.events.logger.Info("wallet top-up started",
		"wallet_id", w.ID,
		"payment_id", payment.ID,
		"charge_id", charge.ID,
	)
	return &TopUpResult{
		Wallet:      w,
		Transaction: txn,
		Payment:     payment,
		CheckoutURL: charge.Transaction.URL,
	}, nil
}

// GetWalletByCustomer returns the customer's wallet.
func (s *WalletService) GetWalletByCustomer(ctx context.Context, customerID uuid.UUID) (database.Wallet, error) {
	w, err := s.newStore(s.db).GetWalletByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Wallet{}, ErrWalletNotFound
		}
		return database.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// GetWallet returns a wallet by id.
func (s *WalletService) GetWallet(ctx context.Context, id uuid.UUID) (database.Wallet, error) {
	w, err := s.newStore(s.db).GetWallet(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Wallet{}, ErrWalletNotFound
		}
		return database.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// ListWalletTransactions returns the wallet's ledger, newest first.
func (s *WalletService) ListWalletTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int32) ([]database.WalletTransaction, error) {
	if offset < 0 {
		offset = 0
	}
	txns, err := s.newStore(s.db).ListWalletTransactions(ctx, database.ListWalletTransactionsParams{
		WalletID: walletID,
		Limit:    clampLimit(limit, 50, 200),
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return txns, nil
}

func (s *WalletService) emitWalletUpdated(ctx context.Context, w database.Wallet, txn database.WalletTransaction) {
	s.events.emit(ctx, notify.Event{
		Type:       enum.EventWalletUpdated,
		CustomerID: w.CustomerID,
		Data: map[string]any{
			"wallet_id":        w.ID,
			"transaction_id":   txn.ID,
			"transaction_type": txn.TransactionType,
			"balance":          database.Decimal(w.Balance).StringFixed(database.MoneyScale),
		},
	})
}

func gatewayCustomer(c database.Customer) gateway.Customer {
	return gateway.Customer{
		FirstName: c.Name,
		Email:     c.Email.String,
	}
}
