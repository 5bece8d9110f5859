package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createOrderHistory = `-- name: CreateOrderHistory :one
INSERT INTO order_history (order_id, from_status, to_status, action, actor_id, actor_role, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, order_id, from_status, to_status, action, actor_id, actor_role, notes, created_at
`

type CreateOrderHistoryParams struct {
	OrderID    uuid.UUID       `json:"order_id"`
	FromStatus NullOrderStatus `json:"from_status"`
	ToStatus   OrderStatus     `json:"to_status"`
	Action     OrderAction     `json:"action"`
	ActorID    pgtype.UUID     `json:"actor_id"`
	ActorRole  ActorRole       `json:"actor_role"`
	Notes      pgtype.Text     `json:"notes"`
}

func (q *Queries) CreateOrderHistory(ctx context.Context, arg CreateOrderHistoryParams) (OrderHistory, error) {
	row := q.db.QueryRow(ctx, createOrderHistory,
		arg.OrderID,
		arg.FromStatus,
		arg.ToStatus,
		arg.Action,
		arg.ActorID,
		arg.ActorRole,
		arg.Notes,
	)
	var i OrderHistory
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.FromStatus,
		&i.ToStatus,
		&i.Action,
		&i.ActorID,
		&i.ActorRole,
		&i.Notes,
		&i.CreatedAt,
	)
	return i, err
}

const listOrderHistory = `-- name: ListOrderHistory :many
SELECT id, order_id, from_status, to_status, action, actor_id, actor_role, notes, created_at
FROM order_history
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListOrderHistory(ctx context.Context, orderID uuid.UUID) ([]OrderHistory, error) {
	rows, err := q.db.Query(ctx, listOrderHistory, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderHistory{}
	for rows.Next() {
		var i OrderHistory
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.FromStatus,
			&i.ToStatus,
			&i.Action,
			&i.ActorID,
			&i.ActorRole,
			&i.Notes,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createOrderUpdate = `-- name: CreateOrderUpdate :one
INSERT INTO order_updates (order_id, field, old_value, new_value, actor_id, actor_role, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, order_id, field, old_value, new_value, actor_id, actor_role, reason, created_at
`

type CreateOrderUpdateParams struct {
	OrderID   uuid.UUID   `json:"order_id"`
	Field     string      `json:"field"`
	OldValue  pgtype.Text `json:"old_value"`
	NewValue  pgtype.Text `json:"new_value"`
	ActorID   pgtype.UUID `json:"actor_id"`
	ActorRole ActorRole   `json:"actor_role"`
	Reason    pgtype.Text `json:"reason"`
}

func (q *Queries) CreateOrderUpdate(ctx context.Context, arg CreateOrderUpdateParams) (OrderUpdate, error) {
	row := q.db.QueryRow(ctx, createOrderUpdate,
		arg.OrderID,
		arg.Field,
		arg.OldValue,
		arg.NewValue,
		arg.ActorID,
		arg.ActorRole,
		arg.Reason,
	)
	var i OrderUpdate
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.Field,
		&i.OldValue,
		&i.NewValue,
		&i.ActorID,
		&i.ActorRole,
		&i.Reason,
		&i.CreatedAt,
	)
	return i, err
}

const listOrderUpdates = `-- name: ListOrderUpdates :many
SELECT id, order_id, field, old_value, new_value, actor_id, actor_role, reason, created_at
FROM order_updates
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListOrderUpdates(ctx context.Context, orderID uuid.UUID) ([]OrderUpdate, error) {
	rows, err := q.db.Query(ctx, listOrderUpdates, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderUpdate{}
	for rows.Next() {
		var i OrderUpdate
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.Field,
			&i.OldValue,
			&i.NewValue,
			&i.ActorID,
			&i.ActorRole,
			&i.Reason,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
