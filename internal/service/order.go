package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/enum"
	"github.com/laundrix/api/internal/notify"
)

const maxOrderNumberRetries = 3

// Errors returned by order creation and reads.
var (
	ErrPickupAddressRequired = errors.New("pickup_address is required")
	ErrInvalidPickupWindow   = errors.New("pickup window end must be after its start")
	ErrInvalidDeliveryWindow = errors.New("delivery window must start after the pickup window and end after it starts")
)

// OrderStore defines the DB methods the tracking service needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)

	GetNextOrderNumber(ctx context.Context) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)

	CreateOrderHistory(ctx context.Context, arg database.CreateOrderHistoryParams) (database.OrderHistory, error)
	ListOrderHistory(ctx context.Context, orderID uuid.UUID) ([]database.OrderHistory, error)
	CreateOrderUpdate(ctx context.Context, arg database.CreateOrderUpdateParams) (database.OrderUpdate, error)
	ListOrderUpdates(ctx context.Context, orderID uuid.UUID) ([]database.OrderUpdate, error)

	CreateDriverAssignment(ctx context.Context, arg database.CreateDriverAssignmentParams) (database.DriverAssignment, error)
	GetOpenAssignment(ctx context.Context, arg database.GetOpenAssignmentParams) (database.DriverAssignment, error)
	UpdateAssignmentStatus(ctx context.Context, arg database.UpdateAssignmentStatusParams) (database.DriverAssignment, error)
	CancelOpenAssignments(ctx context.Context, arg database.CancelOpenAssignmentsParams) (int64, error)
	ListAssignmentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.DriverAssignment, error)
	CreateOrderPhoto(ctx context.Context, arg database.CreateOrderPhotoParams) (database.OrderPhoto, error)

	CreateOrderProcessing(ctx context.Context, arg database.CreateOrderProcessingParams) (database.OrderProcessing, error)
	GetOrderProcessingByOrder(ctx context.Context, orderID uuid.UUID) (database.OrderProcessing, error)
	UpdateOrderProcessing(ctx context.Context, arg database.UpdateOrderProcessingParams) (database.OrderProcessing, error)
	CreateProcessingItemDetail(ctx context.Context, arg database.CreateProcessingItemDetailParams) (database.ProcessingItemDetail, error)
	UpdateProcessingItemStatus(ctx context.Context, arg database.UpdateProcessingItemStatusParams) (database.ProcessingItemDetail, error)
	ListProcessingItems(ctx context.Context, processingID uuid.UUID) ([]database.ProcessingItemDetail, error)

	CreateIssueReport(ctx context.Context, arg database.CreateIssueReportParams) (database.IssueReport, error)
	GetIssueReport(ctx context.Context, id uuid.UUID) (database.IssueReport, error)
	ResolveIssueReport(ctx context.Context, arg database.ResolveIssueReportParams) (database.IssueReport, error)
	ListIssueReportsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.IssueReport, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// TrackingService drives the order lifecycle.
type TrackingService struct {
	db          DB
	newStore    NewOrderStore
	autoAdvance bool
	events      events
}

// NewTrackingService creates a TrackingService. autoAdvance enables the
// MARK_READY step when an order's payment settles.
func NewTrackingService(db DB, newStore NewOrderStore, autoAdvance bool, notifier notify.Notifier, logger *slog.Logger) *TrackingService {
	return &TrackingService{
		db:          db,
		newStore:    newStore,
		autoAdvance: autoAdvance,
		events:      newEvents(notifier, logger),
	}
}

// CreateOrderRequest is the validated input for placing an order.
type CreateOrderRequest struct {
	CustomerID          uuid.UUID
	ActorID             uuid.UUID
	ActorRole           database.ActorRole
	PickupAddress       string
	PickupWindowStart   time.Time
	PickupWindowEnd     time.Time
	DeliveryWindowStart time.Time // optional
	DeliveryWindowEnd   time.Time // optional
	Notes               string
}

func (r CreateOrderRequest) validate() error {
	if r.PickupAddress == "" {
		return ErrPickupAddressRequired
	}
	if r.PickupWindowStart.IsZero() || r.PickupWindowEnd.IsZero() || !r.PickupWindowEnd.After(r.PickupWindowStart) {
		return ErrInvalidPickupWindow
	}
	if r.DeliveryWindowStart.IsZero() && r.DeliveryWindowEnd.IsZero() {
		return nil
	}
	if r.DeliveryWindowStart.IsZero() || !r.DeliveryWindowStart.After(r.PickupWindowStart) {
		return ErrInvalidDeliveryWindow
	}
	if !r.DeliveryWindowEnd.IsZero() && !r.DeliveryWindowEnd.After(r.DeliveryWindowStart) {
		return ErrInvalidDeliveryWindow
	}
	return nil
}

// CreateOrder places an order in ORDER_PLACED with payment PENDING.
// Retries up to maxOrderNumberRetries times on order_number unique constraint
// violations (concurrent transactions reading the same MAX).
func (s *TrackingService) CreateOrder(ctx context.Context, req CreateOrderRequest) (database.Order, error) {
	if err := req.validate(); err != nil {
		return database.Order{}, err
	}
	if !req.ActorRole.Valid() {
		req.ActorRole = database.ActorRoleCUSTOMER
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		order, err := s.createOrderTx(ctx, req)
		if err == nil {
			s.emitStatusChanged(ctx, order, database.OrderActionPLACE, "")
			return order, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return database.Order{}, err
	}
	return database.Order{}, lastErr
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key"
	}
	return false
}

func (s *TrackingService) createOrderTx(ctx context.Context, req CreateOrderRequest) (database.Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.GetCustomer(ctx, req.CustomerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrCustomerNotFound
		}
		return database.Order{}, fmt.Errorf("get customer: %w", err)
	}

	nextNum, err := store.GetNextOrderNumber(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("get next order number: %w", err)
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:         fmt.Sprintf("LDX-%05d", nextNum),
		CustomerID:          req.CustomerID,
		PickupAddress:       req.PickupAddress,
		PickupWindowStart:   timestamptz(req.PickupWindowStart),
		PickupWindowEnd:     timestamptz(req.PickupWindowEnd),
		DeliveryWindowStart: timestamptz(req.DeliveryWindowStart),
		DeliveryWindowEnd:   timestamptz(req.DeliveryWindowEnd),
		Notes:               database.Text(req.Notes),
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("create order: %w", err)
	}

	if _, err := store.CreateOrderHistory(ctx, database.CreateOrderHistoryParams{
		OrderID:   order.ID,
		ToStatus:  order.Status,
		Action:    database.OrderActionPLACE,
		ActorID:   database.UUID(req.ActorID),
		ActorRole: req.ActorRole,
	}); err != nil {
		return database.Order{}, fmt.Errorf("create order history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return order, nil
}

// OrderDetail is an order with its operational sub-records.
type OrderDetail struct {
	Order       database.Order                  `json:"order"`
	Assignments []database.DriverAssignment     `json:"assignments"`
	Processing  *database.OrderProcessing       `json:"processing,omitempty"`
	Items       []database.ProcessingItemDetail `json:"items"`
	Issues      []database.IssueReport          `json:"issues"`
}

// GetOrder returns the order with assignments, processing and issues.
func (s *TrackingService) GetOrder(ctx context.Context, id uuid.UUID) (*OrderDetail, error) {
	store := s.newStore(s.db)

	order, err := store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	detail := &OrderDetail{Order: order}

	if detail.Assignments, err = store.ListAssignmentsByOrder(ctx, id); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if detail.Issues, err = store.ListIssueReportsByOrder(ctx, id); err != nil {
		return nil, fmt.Errorf("list issue reports: %w", err)
	}

	proc, err := store.GetOrderProcessingByOrder(ctx, id)
	switch {
	case err == nil:
		detail.Processing = &proc
		if detail.Items, err = store.ListProcessingItems(ctx, proc.ID); err != nil {
			return nil, fmt.Errorf("list processing items: %w", err)
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("get order processing: %w", err)
	}
	return detail, nil
}

// ListOrdersFilter narrows ListOrders. Zero values mean "any".
type ListOrdersFilter struct {
	CustomerID uuid.UUID
	Status     database.OrderStatus
	Limit      int32
	Offset     int32
}

// ListOrders returns orders newest first.
func (s *TrackingService) ListOrders(ctx context.Context, f ListOrdersFilter) ([]database.Order, error) {
	params := database.ListOrdersParams{
		CustomerID: database.UUID(f.CustomerID),
		Limit:      clampLimit(f.Limit, 50, 200),
		Offset:     max(f.Offset, 0),
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
		}
		params.Status = database.Text(string(f.Status))
	}
	orders, err := s.newStore(s.db).ListOrders(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListOrderHistory returns the order's status transitions, oldest first.
func (s *TrackingService) ListOrderHistory(ctx context.Context, orderID uuid.UUID) ([]database.OrderHistory, error) {
	rows, err := s.newStore(s.db).ListOrderHistory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order history: %w", err)
	}
	return rows, nil
}

// ListOrderUpdates returns the order's administrative field changes, oldest first.
func (s *TrackingService) ListOrderUpdates(ctx context.Context, orderID uuid.UUID) ([]database.OrderUpdate, error) {
	rows, err := s.newStore(s.db).ListOrderUpdates(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order updates: %w", err)
	}
	return rows, nil
}

func (s *TrackingService) emitStatusChanged(ctx context.Context, order database.Order, action database.OrderAction, from database.OrderStatus) {
	s.events.emit(ctx, notify.Event{
		Type:       enum.EventOrderStatusChanged,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Data: map[string]any{
			"order_number": order.OrderNumber,
			"action":       action,
			"from":         from,
			"to":           order.Status,
		},
	})
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
