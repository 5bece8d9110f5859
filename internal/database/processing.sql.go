package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const processingColumns = `id, order_id, status, total_pieces, total_weight, processed_by, quality_notes,
    started_at, completed_at, created_at, updated_at`

func scanOrderProcessing(row rowScanner) (OrderProcessing, error) {
	var i OrderProcessing
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.Status,
		&i.TotalPieces,
		&i.TotalWeight,
		&i.ProcessedBy,
		&i.QualityNotes,
		&i.StartedAt,
		&i.CompletedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrderProcessing = `-- name: CreateOrderProcessing :one
INSERT INTO order_processing (order_id, status, total_pieces, total_weight, processed_by, quality_notes)
VALUES ($1, 'RECEIVED', $2, $3, $4, $5)
RETURNING ` + processingColumns

type CreateOrderProcessingParams struct {
	OrderID      uuid.UUID      `json:"order_id"`
	TotalPieces  int32          `json:"total_pieces"`
	TotalWeight  pgtype.Numeric `json:"total_weight"`
	ProcessedBy  pgtype.UUID    `json:"processed_by"`
	QualityNotes pgtype.Text    `json:"quality_notes"`
}

func (q *Queries) CreateOrderProcessing(ctx context.Context, arg CreateOrderProcessingParams) (OrderProcessing, error) {
	row := q.db.QueryRow(ctx, createOrderProcessing,
		arg.OrderID,
		arg.TotalPieces,
		arg.TotalWeight,
		arg.ProcessedBy,
		arg.QualityNotes,
	)
	return scanOrderProcessing(row)
}

const getOrderProcessingByOrder = `-- name: GetOrderProcessingByOrder :one
SELECT ` + processingColumns + `
FROM order_processing
WHERE order_id = $1
`

func (q *Queries) GetOrderProcessingByOrder(ctx context.Context, orderID uuid.UUID) (OrderProcessing, error) {
	return scanOrderProcessing(q.db.QueryRow(ctx, getOrderProcessingByOrder, orderID))
}

const updateOrderProcessing = `-- name: UpdateOrderProcessing :one
UPDATE order_processing
SET status        = $2::text,
    total_pieces  = COALESCE($3, total_pieces),
    total_weight  = COALESCE($4, total_weight),
    processed_by  = COALESCE($5, processed_by),
    quality_notes = COALESCE($6, quality_notes),
    started_at    = CASE WHEN $2::text = 'IN_PROGRESS' THEN now() ELSE started_at END,
    completed_at  = CASE WHEN $2::text = 'COMPLETED' THEN now() ELSE completed_at END,
    updated_at    = now()
WHERE id = $1
RETURNING ` + processingColumns

type UpdateOrderProcessingParams struct {
	ID           uuid.UUID        `json:"id"`
	Status       ProcessingStatus `json:"status"`
	TotalPieces  pgtype.Int4      `json:"total_pieces"`
	TotalWeight  pgtype.Numeric   `json:"total_weight"`
	ProcessedBy  pgtype.UUID      `json:"processed_by"`
	QualityNotes pgtype.Text      `json:"quality_notes"`
}

func (q *Queries) UpdateOrderProcessing(ctx context.Context, arg UpdateOrderProcessingParams) (OrderProcessing, error) {
	row := q.db.QueryRow(ctx, updateOrderProcessing,
		arg.ID,
		arg.Status,
		arg.TotalPieces,
		arg.TotalWeight,
		arg.ProcessedBy,
		arg.QualityNotes,
	)
	return scanOrderProcessing(row)
}

const itemColumns = `id, processing_id, item_name, service_type, quantity, weight, status, notes, created_at`

func scanProcessingItem(row rowScanner) (ProcessingItemDetail, error) {
	var i ProcessingItemDetail
	err := row.Scan(
		&i.ID,
		&i.ProcessingID,
		&i.ItemName,
		&i.ServiceType,
		&i.Quantity,
		&i.Weight,
		&i.Status,
		&i.Notes,
		&i.CreatedAt,
	)
	return i, err
}

const createProcessingItemDetail = `-- name: CreateProcessingItemDetail :one
INSERT INTO processing_item_details (processing_id, item_name, service_type, quantity, weight, status, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + itemColumns

type CreateProcessingItemDetailParams struct {
	ProcessingID uuid.UUID      `json:"processing_id"`
	ItemName     string         `json:"item_name"`
	ServiceType  string         `json:"service_type"`
	Quantity     int32          `json:"quantity"`
	Weight       pgtype.Numeric `json:"weight"`
	Status       ItemStatus     `json:"status"`
	Notes        pgtype.Text    `json:"notes"`
}

func (q *Queries) CreateProcessingItemDetail(ctx context.Context, arg CreateProcessingItemDetailParams) (ProcessingItemDetail, error) {
	row := q.db.QueryRow(ctx, createProcessingItemDetail,
		arg.ProcessingID,
		arg.ItemName,
		arg.ServiceType,
		arg.Quantity,
		arg.Weight,
		arg.Status,
		arg.Notes,
	)
	return scanProcessingItem(row)
}

const updateProcessingItemStatus = `-- name: UpdateProcessingItemStatus :one
UPDATE processing_item_details
SET status = $3, notes = COALESCE($4, notes)
WHERE id = $1 AND processing_id = $2
RETURNING ` + itemColumns

type UpdateProcessingItemStatusParams struct {
	ID           uuid.UUID   `json:"id"`
	ProcessingID uuid.UUID   `json:"processing_id"`
	Status       ItemStatus  `json:"status"`
	Notes        pgtype.Text `json:"notes"`
}

func (q *Queries) UpdateProcessingItemStatus(ctx context.Context, arg UpdateProcessingItemStatusParams) (ProcessingItemDetail, error) {
	row := q.db.QueryRow(ctx, updateProcessingItemStatus, arg.ID, arg.ProcessingID, arg.Status, arg.Notes)
	return scanProcessingItem(row)
}

const listProcessingItems = `-- name: ListProcessingItems :many
SELECT ` + itemColumns + `
FROM processing_item_details
WHERE processing_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListProcessingItems(ctx context.Context, processingID uuid.UUID) ([]ProcessingItemDetail, error) {
	rows, err := q.db.Query(ctx, listProcessingItems, processingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ProcessingItemDetail{}
	for rows.Next() {
		i, err := scanProcessingItem(rows)
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

const issueColumns = `id, order_id, processing_item_id, reported_by, issue_type, description, status,
    resolution, resolved_by, resolved_at, created_at`

func scanIssueReport(row rowScanner) (IssueReport, error) {
	var i IssueReport
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ProcessingItemID,
		&i.ReportedBy,
		&i.IssueType,
		&i.Description,
		&i.Status,
		&i.Resolution,
		&i.ResolvedBy,
		&i.ResolvedAt,
		&i.CreatedAt,
	)
	return i, err
}

const createIssueReport = `-- name: CreateIssueReport :one
INSERT INTO issue_reports (order_id, processing_item_id, reported_by, issue_type, description, status)
VALUES ($1, $2, $3, $4, $5, 'OPEN')
RETURNING ` + issueColumns

type CreateIssueReportParams struct {
	OrderID          uuid.UUID   `json:"order_id"`
	ProcessingItemID pgtype.UUID `json:"processing_item_id"`
	ReportedBy       uuid.UUID   `json:"reported_by"`
	IssueType        IssueType   `json:"issue_type"`
	Description      string      `json:"description"`
}

func (q *Queries) CreateIssueReport(ctx context.Context, arg CreateIssueReportParams) (IssueReport, error) {
	row := q.db.QueryRow(ctx, createIssueReport,
		arg.OrderID,
		arg.ProcessingItemID,
		arg.ReportedBy,
		arg.IssueType,
		arg.Description,
	)
	return scanIssueReport(row)
}

const getIssueReport = `-- name: GetIssueReport :one
SELECT ` + issueColumns + `
FROM issue_reports
WHERE id = $1
`

func (q *Queries) GetIssueReport(ctx context.Context, id uuid.UUID) (IssueReport, error) {
	return scanIssueReport(q.db.QueryRow(ctx, getIssueReport, id))
}

const resolveIssueReport = `-- name: ResolveIssueReport :one
UPDATE issue_reports
SET status = $2, resolution = $3, resolved_by = $4, resolved_at = now()
WHERE id = $1 AND status = 'OPEN'
RETURNING ` + issueColumns

type ResolveIssueReportParams struct {
	ID         uuid.UUID   `json:"id"`
	Status     IssueStatus `json:"status"`
	Resolution pgtype.Text `json:"resolution"`
	ResolvedBy pgtype.UUID `json:"resolved_by"`
}

func (q *Queries) ResolveIssueReport(ctx context.Context, arg ResolveIssueReportParams) (IssueReport, error) {
	row := q.db.QueryRow(ctx, resolveIssueReport, arg.ID, arg.Status, arg.Resolution, arg.ResolvedBy)
	return scanIssueReport(row)
}

const listIssueReportsByOrder = `-- name: ListIssueReportsByOrder :many
SELECT ` + issueColumns + `
FROM issue_reports
WHERE order_id = $1
ORDER BY created_at
`

func (q *Queries) ListIssueReportsByOrder(ctx context.Context, orderID uuid.UUID) ([]IssueReport, error) {
	rows, err := q.db.Query(ctx, listIssueReportsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []IssueReport{}
	for rows.Next() {
		i, err := scanIssueReport(rows)
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
