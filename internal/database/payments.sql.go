package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, customer_id, wallet_transaction_id, amount, payment_method, payment_status,
    tap_reference, tap_transaction_id, refund_amount, metadata, paid_at, created_by, created_at, updated_at`

func scanPaymentRecord(row rowScanner) (PaymentRecord, error) {
	var i PaymentRecord
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.CustomerID,
		&i.WalletTransactionID,
		&i.Amount,
		&i.PaymentMethod,
		&i.PaymentStatus,
		&i.TapReference,
		&i.TapTransactionID,
		&i.RefundAmount,
		&i.Metadata,
		&i.PaidAt,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectPaymentRecords(rows interface {
	rowScanner
	Next() bool
	Err() error
	Close()
}) ([]PaymentRecord, error) {
	defer rows.Close()
	items := []PaymentRecord{}
	for rows.Next() {
		i, err := scanPaymentRecord(rows)
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

const createPaymentRecord = `-- name: CreatePaymentRecord :one
INSERT INTO payment_records (order_id, customer_id, wallet_transaction_id, amount, payment_method,
    payment_status, tap_reference, tap_transaction_id, metadata, paid_at, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + paymentColumns

type CreatePaymentRecordParams struct {
	OrderID             pgtype.UUID        `json:"order_id"`
	CustomerID          uuid.UUID          `json:"customer_id"`
	WalletTransactionID pgtype.UUID        `json:"wallet_transaction_id"`
	Amount              pgtype.Numeric     `json:"amount"`
	PaymentMethod       PaymentMethod      `json:"payment_method"`
	PaymentStatus       PaymentStatus      `json:"payment_status"`
	TapReference        pgtype.Text        `json:"tap_reference"`
	TapTransactionID    pgtype.Text        `json:"tap_transaction_id"`
	Metadata            []byte             `json:"metadata"`
	PaidAt              pgtype.Timestamptz `json:"paid_at"`
	CreatedBy           pgtype.UUID        `json:"created_by"`
}

func (q *Queries) CreatePaymentRecord(ctx context.Context, arg CreatePaymentRecordParams) (PaymentRecord, error) {
	row := q.db.QueryRow(ctx, createPaymentRecord,
		arg.OrderID,
		arg.CustomerID,
		arg.WalletTransactionID,
		arg.Amount,
		arg.PaymentMethod,
		arg.PaymentStatus,
		arg.TapReference,
		arg.TapTransactionID,
		arg.Metadata,
		arg.PaidAt,
		arg.CreatedBy,
	)
	return scanPaymentRecord(row)
}

const getPaymentRecord = `-- name: GetPaymentRecord :one
SELECT ` + paymentColumns + `
FROM payment_records
WHERE id = $1
`

func (q *Queries) GetPaymentRecord(ctx context.Context, id uuid.UUID) (PaymentRecord, error) {
	return scanPaymentRecord(q.db.QueryRow(ctx, getPaymentRecord, id))
}

const getPaymentRecordForUpdate = `-- name: GetPaymentRecordForUpdate :one
SELECT ` + paymentColumns + `
FROM payment_records
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetPaymentRecordForUpdate(ctx context.Context, id uuid.UUID) (PaymentRecord, error) {
	return scanPaymentRecord(q.db.QueryRow(ctx, getPaymentRecordForUpdate, id))
}

const getPaymentRecordByTapReference = `-- name: GetPaymentRecordByTapReference :one
SELECT ` + paymentColumns + `
FROM payment_records
WHERE tap_reference = $1
`

func (q *Queries) GetPaymentRecordByTapReference(ctx context.Context, tapReference string) (PaymentRecord, error) {
	return scanPaymentRecord(q.db.QueryRow(ctx, getPaymentRecordByTapReference, tapReference))
}

const listPaymentRecordsByOrder = `-- name: ListPaymentRecordsByOrder :many
SELECT ` + paymentColumns + `
FROM payment_records
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListPaymentRecordsByOrder(ctx context.Context, orderID uuid.UUID) ([]PaymentRecord, error) {
	rows, err := q.db.Query(ctx, listPaymentRecordsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	return collectPaymentRecords(rows)
}

const listPaymentRecordsForSync = `-- name: ListPaymentRecordsForSync :many
SELECT ` + paymentColumns + `
FROM payment_records
WHERE payment_status = $1
  AND payment_method = ANY($2::text[])
ORDER BY created_at, id
LIMIT $3 OFFSET $4
`

type ListPaymentRecordsForSyncParams struct {
	PaymentStatus PaymentStatus `json:"payment_status"`
	Methods       []string      `json:"methods"`
	Limit         int32         `json:"limit"`
	Offset        int32         `json:"offset"`
}

func (q *Queries) ListPaymentRecordsForSync(ctx context.Context, arg ListPaymentRecordsForSyncParams) ([]PaymentRecord, error) {
	rows, err := q.db.Query(ctx, listPaymentRecordsForSync, arg.PaymentStatus, arg.Methods, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectPaymentRecords(rows)
}

const updatePaymentRecordStatus = `-- name: UpdatePaymentRecordStatus :one
UPDATE payment_records
SET payment_status     = $2,
    tap_transaction_id = COALESCE($3, tap_transaction_id),
    paid_at            = COALESCE($4, paid_at),
    metadata           = $5,
    updated_at         = now()
WHERE id = $1
RETURNING ` + paymentColumns

type UpdatePaymentRecordStatusParams struct {
	ID               uuid.UUID          `json:"id"`
	PaymentStatus    PaymentStatus      `json:"payment_status"`
	TapTransactionID pgtype.Text        `json:"tap_transaction_id"`
	PaidAt           pgtype.Timestamptz `json:"paid_at"`
	Metadata         []byte             `json:"metadata"`
}

func (q *Queries) UpdatePaymentRecordStatus(ctx context.Context, arg UpdatePaymentRecordStatusParams) (PaymentRecord, error) {
	row := q.db.QueryRow(ctx, updatePaymentRecordStatus,
		arg.ID,
		arg.PaymentStatus,
		arg.TapTransactionID,
		arg.PaidAt,
		arg.Metadata,
	)
	return scanPaymentRecord(row)
}

const updatePaymentRecordRefund = `-- name: UpdatePaymentRecordRefund :one
UPDATE payment_records
SET payment_status = $2,
    refund_amount  = $3,
    metadata       = $4,
    updated_at     = now()
WHERE id = $1
RETURNING ` + paymentColumns

type UpdatePaymentRecordRefundParams struct {
	ID            uuid.UUID      `json:"id"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	RefundAmount  pgtype.Numeric `json:"refund_amount"`
	Metadata      []byte         `json:"metadata"`
}

func (q *Queries) UpdatePaymentRecordRefund(ctx context.Context, arg UpdatePaymentRecordRefundParams) (PaymentRecord, error) {
	row := q.db.QueryRow(ctx, updatePaymentRecordRefund, arg.ID, arg.PaymentStatus, arg.RefundAmount, arg.Metadata)
	return scanPaymentRecord(row)
}

const updatePaymentRecordMetadata = `-- name: UpdatePaymentRecordMetadata :one
UPDATE payment_records
SET metadata = $2, updated_at = now()
WHERE id = $1
RETURNING ` + paymentColumns

type UpdatePaymentRecordMetadataParams struct {
	ID       uuid.UUID `json:"id"`
	Metadata []byte    `json:"metadata"`
}

func (q *Queries) UpdatePaymentRecordMetadata(ctx context.Context, arg UpdatePaymentRecordMetadataParams) (PaymentRecord, error) {
	return scanPaymentRecord(q.db.QueryRow(ctx, updatePaymentRecordMetadata, arg.ID, arg.Metadata))
}

const listPaymentRecordsMissingGatewayIDs = `-- name: ListPaymentRecordsMissingGatewayIDs :many
SELECT ` + paymentColumns + `
FROM payment_records
WHERE (tap_reference IS NULL OR tap_transaction_id IS NULL)
  AND metadata IS NOT NULL
  AND id > $1
ORDER BY id
LIMIT $2
`

type ListPaymentRecordsMissingGatewayIDsParams struct {
	AfterID uuid.UUID `json:"after_id"`
	Limit   int32     `json:"limit"`
}

// ListPaymentRecordsMissingGatewayIDs pages by primary key; pass the last
// seen id as AfterID (uuid.Nil for the first page).
func (q *Queries) ListPaymentRecordsMissingGatewayIDs(ctx context.Context, arg ListPaymentRecordsMissingGatewayIDsParams) ([]PaymentRecord, error) {
	rows, err := q.db.Query(ctx, listPaymentRecordsMissingGatewayIDs, arg.AfterID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectPaymentRecords(rows)
}

const fillPaymentGatewayIDs = `-- name: FillPaymentGatewayIDs :execrows
UPDATE payment_records
SET tap_reference      = COALESCE(tap_reference, $2),
    tap_transaction_id = COALESCE(tap_transaction_id, $3),
    updated_at         = now()
WHERE id = $1
`

type FillPaymentGatewayIDsParams struct {
	ID               uuid.UUID   `json:"id"`
	TapReference     pgtype.Text `json:"tap_reference"`
	TapTransactionID pgtype.Text `json:"tap_transaction_id"`
}

func (q *Queries) FillPaymentGatewayIDs(ctx context.Context, arg FillPaymentGatewayIDsParams) (int64, error) {
	result, err := q.db.Exec(ctx, fillPaymentGatewayIDs, arg.ID, arg.TapReference, arg.TapTransactionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
