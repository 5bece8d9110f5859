package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, customer_id, status, payment_status, invoice_total, failure_stage,
    pickup_address, pickup_window_start, pickup_window_end, delivery_window_start, delivery_window_end,
    notes, picked_up_at, delivered_at, created_at, updated_at`

func scanOrder(row rowScanner) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OrderNumber,
		&i.CustomerID,
		&i.Status,
		&i.PaymentStatus,
		&i.InvoiceTotal,
		&i.FailureStage,
		&i.PickupAddress,
		&i.PickupWindowStart,
		&i.PickupWindowEnd,
		&i.DeliveryWindowStart,
		&i.DeliveryWindowEnd,
		&i.Notes,
		&i.PickedUpAt,
		&i.DeliveredAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getNextOrderNumber = `-- name: GetNextOrderNumber :one
SELECT (COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS INTEGER)), 0) + 1)::int4
FROM orders
`

func (q *Queries) GetNextOrderNumber(ctx context.Context) (int32, error) {
	row := q.db.QueryRow(ctx, getNextOrderNumber)
	var column_1 int32
	err := row.Scan(&column_1)
	return column_1, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (order_number, customer_id, status, payment_status, invoice_total, pickup_address,
    pickup_window_start, pickup_window_end, delivery_window_start, delivery_window_end, notes)
VALUES ($1, $2, 'ORDER_PLACED', 'PENDING', 0, $3, $4, $5, $6, $7, $8)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderNumber         string             `json:"order_number"`
	CustomerID          uuid.UUID          `json:"customer_id"`
	PickupAddress       string             `json:"pickup_address"`
	PickupWindowStart   pgtype.Timestamptz `json:"pickup_window_start"`
	PickupWindowEnd     pgtype.Timestamptz `json:"pickup_window_end"`
	DeliveryWindowStart pgtype.Timestamptz `json:"delivery_window_start"`
	DeliveryWindowEnd   pgtype.Timestamptz `json:"delivery_window_end"`
	Notes               pgtype.Text        `json:"notes"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber,
		arg.CustomerID,
		arg.PickupAddress,
		arg.PickupWindowStart,
		arg.PickupWindowEnd,
		arg.DeliveryWindowStart,
		arg.DeliveryWindowEnd,
		arg.Notes,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR NO KEY UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::uuid IS NULL OR customer_id = $1::uuid)
  AND ($2::text IS NULL OR status = $2::text)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`

type ListOrdersParams struct {
	CustomerID pgtype.UUID `json:"customer_id"`
	Status     pgtype.Text `json:"status"`
	Limit      int32       `json:"limit"`
	Offset     int32       `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.CustomerID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
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

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status        = $2,
    failure_stage = $4,
    picked_up_at  = COALESCE($5, picked_up_at),
    delivered_at  = COALESCE($6, delivered_at),
    updated_at    = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID             uuid.UUID          `json:"id"`
	Status         OrderStatus        `json:"status"`
	ExpectedStatus OrderStatus        `json:"expected_status"`
	FailureStage   NullFailureStage   `json:"failure_stage"`
	PickedUpAt     pgtype.Timestamptz `json:"picked_up_at"`
	DeliveredAt    pgtype.Timestamptz `json:"delivered_at"`
}

// UpdateOrderStatus only matches while the order is still in ExpectedStatus;
// a concurrent transition yields pgx.ErrNoRows.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus,
		arg.ID,
		arg.Status,
		arg.ExpectedStatus,
		arg.FailureStage,
		arg.PickedUpAt,
		arg.DeliveredAt,
	)
	return scanOrder(row)
}

const updateOrderPaymentStatus = `-- name: UpdateOrderPaymentStatus :one
UPDATE orders
SET payment_status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderPaymentStatusParams struct {
	ID            uuid.UUID          `json:"id"`
	PaymentStatus OrderPaymentStatus `json:"payment_status"`
}

func (q *Queries) UpdateOrderPaymentStatus(ctx context.Context, arg UpdateOrderPaymentStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderPaymentStatus, arg.ID, arg.PaymentStatus))
}

const updateOrderInvoiceTotal = `-- name: UpdateOrderInvoiceTotal :one
UPDATE orders
SET invoice_total = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderInvoiceTotalParams struct {
	ID           uuid.UUID      `json:"id"`
	InvoiceTotal pgtype.Numeric `json:"invoice_total"`
}

func (q *Queries) UpdateOrderInvoiceTotal(ctx context.Context, arg UpdateOrderInvoiceTotalParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderInvoiceTotal, arg.ID, arg.InvoiceTotal))
}
