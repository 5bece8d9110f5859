package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const assignmentColumns = `id, order_id, driver_id, assignment_type, status, scheduled_at, started_at,
    completed_at, failure_reason, notes, created_at, updated_at`

func scanDriverAssignment(row rowScanner) (DriverAssignment, error) {
	var i DriverAssignment
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.DriverID,
		&i.AssignmentType,
		&i.Status,
		&i.ScheduledAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.FailureReason,
		&i.Notes,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createDriverAssignment = `-- name: CreateDriverAssignment :one
INSERT INTO driver_assignments (order_id, driver_id, assignment_type, status, scheduled_at, notes)
VALUES ($1, $2, $3, 'ASSIGNED', $4, $5)
RETURNING ` + assignmentColumns

type CreateDriverAssignmentParams struct {
	OrderID        uuid.UUID          `json:"order_id"`
	DriverID       uuid.UUID          `json:"driver_id"`
	AssignmentType AssignmentType     `json:"assignment_type"`
	ScheduledAt    pgtype.Timestamptz `json:"scheduled_at"`
	Notes          pgtype.Text        `json:"notes"`
}

func (q *Queries) CreateDriverAssignment(ctx context.Context, arg CreateDriverAssignmentParams) (DriverAssignment, error) {
	row := q.db.QueryRow(ctx, createDriverAssignment,
		arg.OrderID,
		arg.DriverID,
		arg.AssignmentType,
		arg.ScheduledAt,
		arg.Notes,
	)
	return scanDriverAssignment(row)
}

const getOpenAssignment = `-- name: GetOpenAssignment :one
SELECT ` + assignmentColumns + `
FROM driver_assignments
WHERE order_id = $1 AND assignment_type = $2 AND status IN ('ASSIGNED', 'IN_PROGRESS')
ORDER BY created_at DESC
LIMIT 1
`

type GetOpenAssignmentParams struct {
	OrderID        uuid.UUID      `json:"order_id"`
	AssignmentType AssignmentType `json:"assignment_type"`
}

func (q *Queries) GetOpenAssignment(ctx context.Context, arg GetOpenAssignmentParams) (DriverAssignment, error) {
	return scanDriverAssignment(q.db.QueryRow(ctx, getOpenAssignment, arg.OrderID, arg.AssignmentType))
}

const updateAssignmentStatus = `-- name: UpdateAssignmentStatus :one
UPDATE driver_assignments
SET status         = $2::text,
    started_at     = CASE WHEN $2::text = 'IN_PROGRESS' THEN now() ELSE started_at END,
    completed_at   = CASE WHEN $2::text IN ('COMPLETED', 'FAILED') THEN now() ELSE completed_at END,
    failure_reason = COALESCE($3, failure_reason),
    updated_at     = now()
WHERE id = $1
RETURNING ` + assignmentColumns

type UpdateAssignmentStatusParams struct {
	ID            uuid.UUID        `json:"id"`
	Status        AssignmentStatus `json:"status"`
	FailureReason pgtype.Text      `json:"failure_reason"`
}

func (q *Queries) UpdateAssignmentStatus(ctx context.Context, arg UpdateAssignmentStatusParams) (DriverAssignment, error) {
	return scanDriverAssignment(q.db.QueryRow(ctx, updateAssignmentStatus, arg.ID, arg.Status, arg.FailureReason))
}

const cancelOpenAssignments = `-- name: CancelOpenAssignments :execrows
UPDATE driver_assignments
SET status = 'CANCELLED', updated_at = now()
WHERE order_id = $1
  AND status IN ('ASSIGNED', 'IN_PROGRESS')
  AND ($2::text IS NULL OR assignment_type = $2::text)
`

type CancelOpenAssignmentsParams struct {
	OrderID        uuid.UUID   `json:"order_id"`
	AssignmentType pgtype.Text `json:"assignment_type"`
}

func (q *Queries) CancelOpenAssignments(ctx context.Context, arg CancelOpenAssignmentsParams) (int64, error) {
	result, err := q.db.Exec(ctx, cancelOpenAssignments, arg.OrderID, arg.AssignmentType)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listAssignmentsByOrder = `-- name: ListAssignmentsByOrder :many
SELECT ` + assignmentColumns + `
FROM driver_assignments
WHERE order_id = $1
ORDER BY created_at
`

func (q *Queries) ListAssignmentsByOrder(ctx context.Context, orderID uuid.UUID) ([]DriverAssignment, error) {
	rows, err := q.db.Query(ctx, listAssignmentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []DriverAssignment{}
	for rows.Next() {
		i, err := scanDriverAssignment(rows)
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

const createOrderPhoto = `-- name: CreateOrderPhoto :one
INSERT INTO order_photos (order_id, assignment_id, photo_url, uploaded_by)
VALUES ($1, $2, $3, $4)
RETURNING id, order_id, assignment_id, photo_url, uploaded_by, created_at
`

type CreateOrderPhotoParams struct {
	OrderID      uuid.UUID   `json:"order_id"`
	AssignmentID pgtype.UUID `json:"assignment_id"`
	PhotoUrl     string      `json:"photo_url"`
	UploadedBy   uuid.UUID   `json:"uploaded_by"`
}

func (q *Queries) CreateOrderPhoto(ctx context.Context, arg CreateOrderPhotoParams) (OrderPhoto, error) {
	row := q.db.QueryRow(ctx, createOrderPhoto,
		arg.OrderID,
		arg.AssignmentID,
		arg.PhotoUrl,
		arg.UploadedBy,
	)
	var i OrderPhoto
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.AssignmentID,
		&i.PhotoUrl,
		&i.UploadedBy,
		&i.CreatedAt,
	)
	return i, err
}
