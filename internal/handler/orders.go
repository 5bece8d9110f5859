package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/laundrix/api/internal/auth"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/service"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.TrackingService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*service.OrderDetail, error)
	ListOrders(ctx context.Context, f service.ListOrdersFilter) ([]database.Order, error)
	ListOrderHistory(ctx context.Context, orderID uuid.UUID) ([]database.OrderHistory, error)
	ListOrderUpdates(ctx context.Context, orderID uuid.UUID) ([]database.OrderUpdate, error)
	Transition(ctx context.Context, req service.TransitionRequest) (*service.TransitionResult, error)
	ReportIssue(ctx context.Context, req service.ReportIssueRequest) (database.IssueReport, error)
	ResolveIssue(ctx context.Context, req service.ResolveIssueRequest) (database.IssueReport, error)
}

// OrderHandler handles order lifecycle endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/history", h.History)
	r.Get("/{id}/updates", h.Updates)
	r.Post("/{id}/actions", h.Transition)
	r.Post("/{id}/issues", h.ReportIssue)
}

// RegisterIssueRoutes registers issue endpoints. Expected to be mounted at
// /issues behind an ADMIN role check.
func (h *OrderHandler) RegisterIssueRoutes(r chi.Router) {
	r.Post("/{issueID}/resolve", h.ResolveIssue)
}

// --- Request / Response types ---

type createOrderRequest struct {
	CustomerID          string     `json:"customer_id"`
	PickupAddress       string     `json:"pickup_address"`
	PickupWindowStart   time.Time  `json:"pickup_window_start"`
	PickupWindowEnd     time.Time  `json:"pickup_window_end"`
	DeliveryWindowStart *time.Time `json:"delivery_window_start"`
	DeliveryWindowEnd   *time.Time `json:"delivery_window_end"`
	Notes               string     `json:"notes"`
}

type transitionRequest struct {
	Action      string             `json:"action"`
	Notes       string             `json:"notes"`
	PhotoURL    string             `json:"photo_url"`
	DriverID    string             `json:"driver_id"`
	ScheduledAt *time.Time         `json:"scheduled_at"`
	Processing  *processingRequest `json:"processing"`
}

type processingRequest struct {
	TotalPieces  *int32                  `json:"total_pieces"`
	TotalWeight  string                  `json:"total_weight"`
	QualityNotes string                  `json:"quality_notes"`
	Items        []processingItemRequest `json:"items"`
}

type processingItemRequest struct {
	ID          string `json:"id"`
	ItemName    string `json:"item_name"`
	ServiceType string `json:"service_type"`
	Quantity    int32  `json:"quantity"`
	Weight      string `json:"weight"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
}

type reportIssueRequest struct {
	ProcessingItemID string `json:"processing_item_id"`
	IssueType        string `json:"issue_type"`
	Description      string `json:"description"`
}

type resolveIssueRequest struct {
	Status     string `json:"status"`
	Resolution string `json:"resolution"`
}

type orderListResponse struct {
	Orders []database.Order `json:"orders"`
	Limit  int32            `json:"limit"`
	Offset int32            `json:"offset"`
}

// --- Handlers ---

// Create handles POST /orders. Customers place orders for themselves; admins
// name the customer.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	customerID := claims.UserID
	switch claims.Role {
	case auth.RoleCustomer:
	case auth.RoleAdmin:
		id, err := uuid.Parse(req.CustomerID)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "customer_id is required")
			return
		}
		customerID = id
	default:
		writeMessage(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	in := service.CreateOrderRequest{
		CustomerID:        customerID,
		ActorID:           claims.UserID,
		ActorRole:         actorRole(claims),
		PickupAddress:     req.PickupAddress,
		PickupWindowStart: req.PickupWindowStart,
		PickupWindowEnd:   req.PickupWindowEnd,
		Notes:             req.Notes,
	}
	if req.DeliveryWindowStart != nil {
		in.DeliveryWindowStart = *req.DeliveryWindowStart
	}
	if req.DeliveryWindowEnd != nil {
		in.DeliveryWindowEnd = *req.DeliveryWindowEnd
	}

	order, err := h.svc.CreateOrder(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "create order")
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// List handles GET /orders. Customers only see their own orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	f := service.ListOrdersFilter{Status: database.OrderStatus(r.URL.Query().Get("status"))}
	f.Limit, f.Offset = pageParams(r)
	if isCustomer(claims) {
		f.CustomerID = claims.UserID
	} else {
		id, err := optionalUUID(r.URL.Query().Get("customer_id"))
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid customer_id")
			return
		}
		f.CustomerID = id
	}

	orders, err := h.svc.ListOrders(r.Context(), f)
	if err != nil {
		writeServiceError(w, err, "list orders")
		return
	}
	if orders == nil {
		orders = []database.Order{}
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: orders, Limit: f.Limit, Offset: f.Offset})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	detail, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err, "get order")
		return
	}
	if isCustomer(claims) && detail.Order.CustomerID != claims.UserID {
		writeMessage(w, http.StatusNotFound, service.ErrOrderNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// History handles GET /orders/{id}/history.
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	_, orderID, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListOrderHistory(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err, "list order history")
		return
	}
	if rows == nil {
		rows = []database.OrderHistory{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Updates handles GET /orders/{id}/updates.
func (h *OrderHandler) Updates(w http.ResponseWriter, r *http.Request) {
	_, orderID, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListOrderUpdates(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err, "list order updates")
		return
	}
	if rows == nil {
		rows = []database.OrderUpdate{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Transition handles POST /orders/{id}/actions.
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	claims, orderID, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeMessage(w, http.StatusBadRequest, "action is required")
		return
	}

	driverID, err := optionalUUID(req.DriverID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid driver_id")
		return
	}
	processing, err := req.Processing.toInput()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	in := service.TransitionRequest{
		OrderID:    orderID,
		ActorID:    claims.UserID,
		Role:       actorRole(claims),
		Action:     database.OrderAction(req.Action),
		Notes:      req.Notes,
		PhotoURL:   req.PhotoURL,
		DriverID:   driverID,
		Processing: processing,
	}
	if req.ScheduledAt != nil {
		in.ScheduledAt = *req.ScheduledAt
	}

	res, err := h.svc.Transition(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "transition order")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ReportIssue handles POST /orders/{id}/issues.
func (h *OrderHandler) ReportIssue(w http.ResponseWriter, r *http.Request) {
	claims, orderID, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}

	var req reportIssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	itemID, err := optionalUUID(req.ProcessingItemID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid processing_item_id")
		return
	}

	issue, err := h.svc.ReportIssue(r.Context(), service.ReportIssueRequest{
		OrderID:          orderID,
		ActorID:          claims.UserID,
		Role:             actorRole(claims),
		ProcessingItemID: itemID,
		IssueType:        database.IssueType(req.IssueType),
		Description:      req.Description,
	})
	if err != nil {
		writeServiceError(w, err, "report issue")
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

// ResolveIssue handles POST /issues/{issueID}/resolve.
func (h *OrderHandler) ResolveIssue(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	issueID, ok := uuidParam(w, r, "issueID", "issue ID")
	if !ok {
		return
	}

	var req resolveIssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issue, err := h.svc.ResolveIssue(r.Context(), service.ResolveIssueRequest{
		IssueID:    issueID,
		ActorID:    claims.UserID,
		Role:       actorRole(claims),
		Status:     database.IssueStatus(req.Status),
		Resolution: req.Resolution,
	})
	if err != nil {
		writeServiceError(w, err, "resolve issue")
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// --- Helpers ---

// visibleOrder parses the order id and, for customers, checks ownership.
// Another customer's order is reported as not found.
func (h *OrderHandler) visibleOrder(w http.ResponseWriter, r *http.Request) (*auth.Claims, uuid.UUID, bool) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return nil, uuid.Nil, false
	}
	orderID, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return nil, uuid.Nil, false
	}
	if !isCustomer(claims) {
		return claims, orderID, true
	}
	detail, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err, "get order")
		return nil, uuid.Nil, false
	}
	if detail.Order.CustomerID != claims.UserID {
		writeMessage(w, http.StatusNotFound, service.ErrOrderNotFound.Error())
		return nil, uuid.Nil, false
	}
	return claims, orderID, true
}

func (p *processingRequest) toInput() (*service.ProcessingInput, error) {
	if p == nil {
		return nil, nil
	}
	in := &service.ProcessingInput{
		TotalPieces:  p.TotalPieces,
		QualityNotes: p.QualityNotes,
	}
	if p.TotalWeight != "" {
		d, err := decimal.NewFromString(p.TotalWeight)
		if err != nil {
			return nil, errInvalidField("total_weight")
		}
		in.TotalWeight = &d
	}
	for _, it := range p.Items {
		id, err := optionalUUID(it.ID)
		if err != nil {
			return nil, errInvalidField("items.id")
		}
		item := service.ProcessingItemInput{
			ID:          id,
			ItemName:    it.ItemName,
			ServiceType: it.ServiceType,
			Quantity:    it.Quantity,
			Status:      database.ItemStatus(it.Status),
			Notes:       it.Notes,
		}
		if it.Weight != "" {
			d, err := decimal.NewFromString(it.Weight)
			if err != nil {
				return nil, errInvalidField("items.weight")
			}
			item.Weight = &d
		}
		in.Items = append(in.Items, item)
	}
	return in, nil
}

type errInvalidField string

func (e errInvalidField) Error() string { return "invalid " + string(e) }
