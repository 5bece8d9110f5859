package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const walletColumns = `id, customer_id, balance, currency, version, created_at, updated_at`

func scanWallet(row rowScanner) (Wallet, error) {
	var i Wallet
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.Balance,
		&i.Currency,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getWallet = `-- name: GetWallet :one
SELECT ` + walletColumns + `
FROM wallets
WHERE id = $1
`

func (q *Queries) GetWallet(ctx context.Context, id uuid.UUID) (Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, getWallet, id))
}

const getWalletByCustomer = `-- name: GetWalletByCustomer :one
SELECT ` + walletColumns + `
FROM wallets
WHERE customer_id = $1
`

func (q *Queries) GetWalletByCustomer(ctx context.Context, customerID uuid.UUID) (Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, getWalletByCustomer, customerID))
}

const getWalletForUpdate = `-- name: GetWalletForUpdate :one
SELECT ` + walletColumns + `
FROM wallets
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, getWalletForUpdate, id))
}

const createWallet = `-- name: CreateWallet :one
INSERT INTO wallets (customer_id, balance, currency)
VALUES ($1, 0, $2)
ON CONFLICT (customer_id) DO NOTHING
RETURNING ` + walletColumns

type CreateWalletParams struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Currency   string    `json:"currency"`
}

// CreateWallet returns pgx.ErrNoRows when the customer already has a wallet.
func (q *Queries) CreateWallet(ctx context.Context, arg CreateWalletParams) (Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, createWallet, arg.CustomerID, arg.Currency))
}

const updateWalletBalance = `-- name: UpdateWalletBalance :one
UPDATE wallets
SET balance = $2, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $3
RETURNING ` + walletColumns

type UpdateWalletBalanceParams struct {
	ID      uuid.UUID      `json:"id"`
	Balance pgtype.Numeric `json:"balance"`
	Version int32          `json:"version"`
}

// UpdateWalletBalance returns pgx.ErrNoRows when Version no longer matches.
func (q *Queries) UpdateWalletBalance(ctx context.Context, arg UpdateWalletBalanceParams) (Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, updateWalletBalance, arg.ID, arg.Balance, arg.Version))
}

const walletTransactionColumns = `id, wallet_id, transaction_type, amount, balance_before, balance_after, status,
    description, order_id, metadata, created_at, completed_at`

func scanWalletTransaction(row rowScanner) (WalletTransaction, error) {
	var i WalletTransaction
	err := row.Scan(
		&i.ID,
		&i.WalletID,
		&i.TransactionType,
		&i.Amount,
		&i.BalanceBefore,
		&i.BalanceAfter,
		&i.Status,
		&i.Description,
		&i.OrderID,
		&i.Metadata,
		&i.CreatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const createWalletTransaction = `-- name: CreateWalletTransaction :one
INSERT INTO wallet_transactions (wallet_id, transaction_type, amount, balance_before, balance_after, status,
    description, order_id, metadata, completed_at)
VALUES ($1, $2, $3, $4, $5, $6::text, $7, $8, $9, CASE WHEN $6::text = 'COMPLETED' THEN now() END)
RETURNING ` + walletTransactionColumns

type CreateWalletTransactionParams struct {
	WalletID        uuid.UUID               `json:"wallet_id"`
	TransactionType WalletTransactionType   `json:"transaction_type"`
	Amount          pgtype.Numeric          `json:"amount"`
	BalanceBefore   pgtype.Numeric          `json:"balance_before"`
	BalanceAfter    pgtype.Numeric          `json:"balance_after"`
	Status          WalletTransactionStatus `json:"status"`
	Description     pgtype.Text             `json:"description"`
	OrderID         pgtype.UUID             `json:"order_id"`
	Metadata        []byte                  `json:"metadata"`
}

func (q *Queries) CreateWalletTransaction(ctx context.Context, arg CreateWalletTransactionParams) (WalletTransaction, error) {
	row := q.db.QueryRow(ctx, createWalletTransaction,
		arg.WalletID,
		arg.TransactionType,
		arg.Amount,
		arg.BalanceBefore,
		arg.BalanceAfter,
		arg.Status,
		arg.Description,
		arg.OrderID,
		arg.Metadata,
	)
	return scanWalletTransaction(row)
}

const getWalletTransaction = `-- name: GetWalletTransaction :one
SELECT ` + walletTransactionColumns + `
FROM wallet_transactions
WHERE id = $1
`

func (q *Queries) GetWalletTransaction(ctx context.Context, id uuid.UUID) (WalletTransaction, error) {
	return scanWalletTransaction(q.db.QueryRow(ctx, getWalletTransaction, id))
}

const completeWalletTransaction = `-- name: CompleteWalletTransaction :one
UPDATE wallet_transactions
SET status = 'COMPLETED', balance_before = $2, balance_after = $3, completed_at = now()
WHERE id = $1 AND status = $4
RETURNING ` + walletTransactionColumns

type CompleteWalletTransactionParams struct {
	ID            uuid.UUID               `json:"id"`
	BalanceBefore pgtype.Numeric          `json:"balance_before"`
	BalanceAfter  pgtype.Numeric          `json:"balance_after"`
	FromStatus    WalletTransactionStatus `json:"from_status"`
}

// CompleteWalletTransaction returns pgx.ErrNoRows unless the row is still in
// FromStatus.
func (q *Queries) CompleteWalletTransaction(ctx context.Context, arg CompleteWalletTransactionParams) (WalletTransaction, error) {
	row := q.db.QueryRow(ctx, completeWalletTransaction, arg.ID, arg.BalanceBefore, arg.BalanceAfter, arg.FromStatus)
	return scanWalletTransaction(row)
}

const failWalletTransaction = `-- name: FailWalletTransaction :one
UPDATE wallet_transactions
SET status = 'FAILED', completed_at = now()
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + walletTransactionColumns

func (q *Queries) FailWalletTransaction(ctx context.Context, id uuid.UUID) (WalletTransaction, error) {
	return scanWalletTransaction(q.db.QueryRow(ctx, failWalletTransaction, id))
}

const listWalletTransactions = `-- name: ListWalletTransactions :many
SELECT ` + walletTransactionColumns + `
FROM wallet_transactions
WHERE wallet_id = $1
ORDER BY COALESCE(completed_at, created_at) DESC, created_at DESC, id
LIMIT $2 OFFSET $3
`

type ListWalletTransactionsParams struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Limit    int32     `json:"limit"`
	Offset   int32     `json:"offset"`
}

// ListWalletTransactions returns the ledger newest first by the time each
// entry took effect, so the first COMPLETED row carries the current balance.
func (q *Queries) ListWalletTransactions(ctx context.Context, arg ListWalletTransactionsParams) ([]WalletTransaction, error) {
	rows, err := q.db.Query(ctx, listWalletTransactions, arg.WalletID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []WalletTransaction{}
	for rows.Next() {
		i, err := scanWalletTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
