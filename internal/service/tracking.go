package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/enum"
	"github.com/laundrix/api/internal/notify"
	"github.com/shopspring/decimal"
)

// Errors returned by the tracking service.
var (
	ErrInvalidAction         = errors.New("invalid action")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrActionNotPermitted    = errors.New("role may not perform this action")
	ErrNotAssignedDriver     = errors.New("driver is not assigned to this order")
	ErrDriverRequired        = errors.New("driver_id is required")
	ErrFailureReasonRequired = errors.New("notes are required when failing a pickup or delivery")
	ErrInvalidProcessing     = errors.New("invalid processing details")
	ErrIssueNotFound         = errors.New("issue report not found")
	ErrIssueNotAllowed       = errors.New("issues can only be reported while the order is at the facility or out for delivery")
	ErrIssueClosed           = errors.New("issue report is already closed")
	ErrInvalidIssue          = errors.New("invalid issue report")
)

type transitionRule struct {
	from  []database.OrderStatus
	to    database.OrderStatus // empty: derived from failure_stage
	roles []database.ActorRole
}

var (
	adminOnly       = []database.ActorRole{database.ActorRoleADMIN}
	driverOrAdmin   = []database.ActorRole{database.ActorRoleDRIVER, database.ActorRoleADMIN}
	facilityOrAdmin = []database.ActorRole{database.ActorRoleFACILITY, database.ActorRoleADMIN}
	adminOrSystem   = []database.ActorRole{database.ActorRoleADMIN, database.ActorRoleSYSTEM}
	cancellable     = []database.OrderStatus{
		database.OrderStatusORDERPLACED,
		database.OrderStatusCONFIRMED,
		database.OrderStatusPICKUPASSIGNED,
		database.OrderStatusFAILED,
	}
)

var transitions = map[database.OrderAction]transitionRule{
	database.OrderActionCONFIRM: {
		from: []database.OrderStatus{database.OrderStatusORDERPLACED}, to: database.OrderStatusCONFIRMED, roles: adminOnly,
	},
	database.OrderActionASSIGNPICKUP: {
		from: []database.OrderStatus{database.OrderStatusCONFIRMED}, to: database.OrderStatusPICKUPASSIGNED, roles: adminOnly,
	},
	database.OrderActionSTARTPICKUP: {
		from: []database.OrderStatus{database.OrderStatusPICKUPASSIGNED}, to: database.OrderStatusPICKUPINPROGRESS, roles: driverOrAdmin,
	},
	database.OrderActionCOMPLETEPICKUP: {
		from: []database.OrderStatus{database.OrderStatusPICKUPINPROGRESS}, to: database.OrderStatusPICKUPCOMPLETED, roles: driverOrAdmin,
	},
	database.OrderActionFAILPICKUP: {
		from: []database.OrderStatus{database.OrderStatusPICKUPASSIGNED, database.OrderStatusPICKUPINPROGRESS}, to: database.OrderStatusFAILED, roles: driverOrAdmin,
	},
	database.OrderActionRECEIVEATFACILITY: {
		from: []database.OrderStatus{database.OrderStatusPICKUPCOMPLETED}, to: database.OrderStatusRECEIVEDATFACILITY, roles: facilityOrAdmin,
	},
	database.OrderActionSTARTPROCESSING: {
		from: []database.OrderStatus{database.OrderStatusRECEIVEDATFACILITY}, to: database.OrderStatusPROCESSING, roles: facilityOrAdmin,
	},
	database.OrderActionCOMPLETEPROCESSING: {
		from: []database.OrderStatus{database.OrderStatusPROCESSING}, to: database.OrderStatusPROCESSINGCOMPLETED, roles: facilityOrAdmin,
	},
	database.OrderActionMARKREADY: {
		from: []database.OrderStatus{database.OrderStatusPROCESSINGCOMPLETED}, to: database.OrderStatusREADYFORDELIVERY, roles: adminOrSystem,
	},
	database.OrderActionASSIGNDELIVERY: {
		from: []database.OrderStatus{database.OrderStatusREADYFORDELIVERY}, to: database.OrderStatusDELIVERYASSIGNED, roles: adminOnly,
	},
	database.OrderActionSTARTDELIVERY: {
		from: []database.OrderStatus{database.OrderStatusDELIVERYASSIGNED}, to: database.OrderStatusDELIVERYINPROGRESS, roles: driverOrAdmin,
	},
	database.OrderActionCOMPLETEDELIVERY: {
		from: []database.OrderStatus{database.OrderStatusDELIVERYINPROGRESS}, to: database.OrderStatusDELIVERED, roles: driverOrAdmin,
	},
	database.OrderActionFAILDELIVERY: {
		from: []database.OrderStatus{database.OrderStatusDELIVERYASSIGNED, database.OrderStatusDELIVERYINPROGRESS}, to: database.OrderStatusFAILED, roles: driverOrAdmin,
	},
	database.OrderActionRESCHEDULE: {
		from: []database.OrderStatus{database.OrderStatusFAILED}, roles: adminOnly,
	},
	database.OrderActionCANCEL: {
		from: cancellable, to: database.OrderStatusCANCELLED, roles: adminOnly,
	},
}

// ActionPermitted reports whether role may perform action.
func ActionPermitted(action database.OrderAction, role database.ActorRole) bool {
	rule, ok := transitions[action]
	return ok && slices.Contains(rule.roles, role)
}

// NextStatus returns the status action moves an order to from current.
func NextStatus(current database.OrderStatus, action database.OrderAction, stage database.NullFailureStage) (database.OrderStatus, error) {
	rule, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if !slices.Contains(rule.from, current) {
		return "", fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, action, current)
	}
	if rule.to != "" {
		return rule.to, nil
	}
	// RESCHEDULE resumes the leg that failed.
	switch {
	case stage.Valid && stage.FailureStage == database.FailureStagePICKUP:
		return database.OrderStatusCONFIRMED, nil
	case stage.Valid && stage.FailureStage == database.FailureStageDELIVERY:
		return database.OrderStatusREADYFORDELIVERY, nil
	}
	return "", fmt.Errorf("%w: cannot %s without a failure stage", ErrInvalidTransition, action)
}

// legOf returns the assignment type a driver action operates on.
func legOf(action database.OrderAction) (database.AssignmentType, bool) {
	switch action {
	case database.OrderActionASSIGNPICKUP, database.OrderActionSTARTPICKUP,
		database.OrderActionCOMPLETEPICKUP, database.OrderActionFAILPICKUP:
		return database.AssignmentTypePICKUP, true
	case database.OrderActionASSIGNDELIVERY, database.OrderActionSTARTDELIVERY,
		database.OrderActionCOMPLETEDELIVERY, database.OrderActionFAILDELIVERY:
		return database.AssignmentTypeDELIVERY, true
	}
	return "", false
}

// ProcessingInput carries facility counts and item lines.
type ProcessingInput struct {
	TotalPieces  *int32
	TotalWeight  *decimal.Decimal
	QualityNotes string
	Items        []ProcessingItemInput
}

// ProcessingItemInput is one garment line. A set ID updates an existing
// line's status; otherwise a new line is added.
type ProcessingItemInput struct {
	ID          uuid.UUID
	ItemName    string
	ServiceType string
	Quantity    int32
	Weight      *decimal.Decimal
	Status      database.ItemStatus
	Notes       string
}

var serviceTypes = []string{
	enum.ServiceTypeWashFold,
	enum.ServiceTypeDryClean,
	enum.ServiceTypeIronOnly,
	enum.ServiceTypeWashIron,
	enum.ServiceTypeSpecialty,
}

func (p *ProcessingInput) validate() error {
	if p == nil {
		return nil
	}
	if p.TotalPieces != nil && *p.TotalPieces < 0 {
		return fmt.Errorf("%w: total_pieces must be >= 0", ErrInvalidProcessing)
	}
	if p.TotalWeight != nil && p.TotalWeight.IsNegative() {
		return fmt.Errorf("%w: total_weight must be >= 0", ErrInvalidProcessing)
	}
	for i, it := range p.Items {
		if it.Status != "" && !it.Status.Valid() {
			return fmt.Errorf("%w: items[%d]: invalid status", ErrInvalidProcessing, i)
		}
		if it.ID != uuid.Nil {
			continue
		}
		if it.ItemName == "" {
			return fmt.Errorf("%w: items[%d]: item_name is required", ErrInvalidProcessing, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: items[%d]: quantity must be > 0", ErrInvalidProcessing, i)
		}
		if !slices.Contains(serviceTypes, it.ServiceType) {
			return fmt.Errorf("%w: items[%d]: invalid service_type", ErrInvalidProcessing, i)
		}
	}
	return nil
}

// TransitionRequest asks for one lifecycle action on an order.
type TransitionRequest struct {
	OrderID     uuid.UUID
	ActorID     uuid.UUID
	Role        database.ActorRole
	Action      database.OrderAction
	Notes       string
	PhotoURL    string
	DriverID    uuid.UUID
	ScheduledAt time.Time
	Processing  *ProcessingInput
}

// TransitionResult is the order after a transition and the records it wrote.
type TransitionResult struct {
	Order      database.Order             `json:"order"`
	History    database.OrderHistory      `json:"history"`
	Assignment *database.DriverAssignment `json:"assignment,omitempty"`
	Processing *database.OrderProcessing  `json:"processing,omitempty"`
	Photo      *database.OrderPhoto       `json:"photo,omitempty"`
}

// Transition applies req.Action to the order. The role is checked before the
// current status; neither failure mutates anything.
func (s *TrackingService) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if !req.Action.Valid() || req.Action == database.OrderActionPLACE {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}
	if !ActionPermitted(req.Action, req.Role) {
		return nil, fmt.Errorf("%w: %s cannot %s", ErrActionNotPermitted, req.Role, req.Action)
	}
	switch req.Action {
	case database.OrderActionASSIGNPICKUP, database.OrderActionASSIGNDELIVERY:
		if req.DriverID == uuid.Nil {
			return nil, ErrDriverRequired
		}
	case database.OrderActionFAILPICKUP, database.OrderActionFAILDELIVERY:
		if req.Notes == "" {
			return nil, ErrFailureReasonRequired
		}
	}
	if err := req.Processing.validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	to, err := NextStatus(order.Status, req.Action, order.FailureStage)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", order.OrderNumber, err)
	}

	result := &TransitionResult{}
	update := database.UpdateOrderStatusParams{
		ID:             order.ID,
		Status:         to,
		ExpectedStatus: order.Status,
		FailureStage:   order.FailureStage,
	}

	if err := s.applyEffects(ctx, store, req, order, &update, result); err != nil {
		return nil, err
	}

	updated, err := store.UpdateOrderStatus(ctx, update)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	result.Order = updated

	result.History, err = store.CreateOrderHistory(ctx, database.CreateOrderHistoryParams{
		OrderID:    order.ID,
		FromStatus: database.NullOrderStatus{OrderStatus: order.Status, Valid: true},
		ToStatus:   to,
		Action:     req.Action,
		ActorID:    database.UUID(req.ActorID),
		ActorRole:  req.Role,
		Notes:      database.Text(req.Notes),
	})
	if err != nil {
		return nil, fmt.Errorf("create order history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.events.logger.Info("order transitioned",
		"order_id", order.ID,
		"action", req.Action,
		"from", order.Status,
		"to", to,
		"actor_role", req.Role,
	)
	s.emitStatusChanged(ctx, updated, req.Action, order.Status)
	return result, nil
}

// applyEffects writes the sub-records of a transition and fills the
// status-update columns it owns.
func (s *TrackingService) applyEffects(ctx context.Context, store OrderStore, req TransitionRequest, order database.Order, update *database.UpdateOrderStatusParams, result *TransitionResult) error {
	now := time.Now().UTC()

	switch req.Action {
	case database.OrderActionASSIGNPICKUP, database.OrderActionASSIGNDELIVERY:
		leg, _ := legOf(req.Action)
		if _, err := store.CancelOpenAssignments(ctx, database.CancelOpenAssignmentsParams{
			OrderID:        order.ID,
			AssignmentType: database.Text(string(leg)),
		}); err != nil {
			return fmt.Errorf("cancel open assignments: %w", err)
		}
		a, err := store.CreateDriverAssignment(ctx, database.CreateDriverAssignmentParams{
			OrderID:        order.ID,
			DriverID:       req.DriverID,
			AssignmentType: leg,
			ScheduledAt:    timestamptz(req.ScheduledAt),
			Notes:          database.Text(req.Notes),
		})
		if err != nil {
			return fmt.Errorf("create driver assignment: %w", err)
		}
		result.Assignment = &a

	case database.OrderActionSTARTPICKUP, database.OrderActionCOMPLETEPICKUP, database.OrderActionFAILPICKUP,
		database.OrderActionSTARTDELIVERY, database.OrderActionCOMPLETEDELIVERY, database.OrderActionFAILDELIVERY:
		if err := s.applyDriverAction(ctx, store, req, order, result); err != nil {
			return err
		}
		switch req.Action {
		case database.OrderActionCOMPLETEPICKUP:
			update.PickedUpAt = timestamptz(now)
		case database.OrderActionCOMPLETEDELIVERY:
			update.DeliveredAt = timestamptz(now)
		case database.OrderActionFAILPICKUP:
			update.FailureStage = database.NullFailureStage{FailureStage: database.FailureStagePICKUP, Valid: true}
		case database.OrderActionFAILDELIVERY:
			update.FailureStage = database.NullFailureStage{FailureStage: database.FailureStageDELIVERY, Valid: true}
		}

	case database.OrderActionRECEIVEATFACILITY:
		p, err := s.receiveAtFacility(ctx, store, req, order)
		if err != nil {
			return err
		}
		result.Processing = &p

	case database.OrderActionSTARTPROCESSING:
		p, err := s.updateProcessing(ctx, store, req, order, database.ProcessingStatusINPROGRESS)
		if err != nil {
			return err
		}
		result.Processing = &p

	case database.OrderActionCOMPLETEPROCESSING:
		p, err := s.updateProcessing(ctx, store, req, order, database.ProcessingStatusCOMPLETED)
		if err != nil {
			return err
		}
		result.Processing = &p

	case database.OrderActionRESCHEDULE:
		update.FailureStage = database.NullFailureStage{}

	case database.OrderActionCANCEL:
		if _, err := store.CancelOpenAssignments(ctx, database.CancelOpenAssignmentsParams{OrderID: order.ID}); err != nil {
			return fmt.Errorf("cancel open assignments: %w", err)
		}
	}
	return nil
}

func (s *TrackingService) applyDriverAction(ctx context.Context, store OrderStore, req TransitionRequest, order database.Order, result *TransitionResult) error {
	leg, _ := legOf(req.Action)

	a, err := store.GetOpenAssignment(ctx, database.GetOpenAssignmentParams{OrderID: order.ID, AssignmentType: leg})
	hasAssignment := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("get open assignment: %w", err)
	}
	if req.Role == database.ActorRoleDRIVER && (!hasAssignment || a.DriverID != req.ActorID) {
		return ErrNotAssignedDriver
	}

	if hasAssignment {
		params := database.UpdateAssignmentStatusParams{ID: a.ID}
		switch req.Action {
		case database.OrderActionSTARTPICKUP, database.OrderActionSTARTDELIVERY:
			params.Status = database.AssignmentStatusINPROGRESS
		case database.OrderActionCOMPLETEPICKUP, database.OrderActionCOMPLETEDELIVERY:
			params.Status = database.AssignmentStatusCOMPLETED
		default:
			params.Status = database.AssignmentStatusFAILED
			params.FailureReason = database.Text(req.Notes)
		}
		a, err = store.UpdateAssignmentStatus(ctx, params)
		if err != nil {
			return fmt.Errorf("update assignment status: %w", err)
		}
		result.Assignment = &a
	}

	if req.PhotoURL != "" {
		photo := database.CreateOrderPhotoParams{
			OrderID:    order.ID,
			PhotoUrl:   req.PhotoURL,
			UploadedBy: req.ActorID,
		}
		if hasAssignment {
			photo.AssignmentID = database.UUID(a.ID)
		}
		p, err := store.CreateOrderPhoto(ctx, photo)
		if err != nil {
			return fmt.Errorf("create order photo: %w", err)
		}
		result.Photo = &p
	}
	return nil
}

func (s *TrackingService) receiveAtFacility(ctx context.Context, store OrderStore, req TransitionRequest, order database.Order) (database.OrderProcessing, error) {
	in := req.Processing
	if in == nil {
		in = &ProcessingInput{}
	}
	params := database.CreateOrderProcessingParams{
		OrderID:      order.ID,
		TotalWeight:  database.Numeric(decimal.Zero),
		ProcessedBy:  database.UUID(req.ActorID),
		QualityNotes: database.Text(in.QualityNotes),
	}
	if in.TotalPieces != nil {
		params.TotalPieces = *in.TotalPieces
	}
	if in.TotalWeight != nil {
		params.TotalWeight = database.Numeric(*in.TotalWeight)
	}
	p, err := store.CreateOrderProcessing(ctx, params)
	if err != nil {
		return database.OrderProcessing{}, fmt.Errorf("create order processing: %w", err)
	}
	if err := s.writeItems(ctx, store, p.ID, in.Items); err != nil {
		return database.OrderProcessing{}, err
	}
	return p, nil
}

func (s *TrackingService) updateProcessing(ctx context.Context, store OrderStore, req TransitionRequest, order database.Order, status database.ProcessingStatus) (database.OrderProcessing, error) {
	p, err := store.GetOrderProcessingByOrder(ctx, order.ID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Received without a processing sheet; open one now.
		p, err = s.receiveAtFacility(ctx, store, TransitionRequest{ActorID: req.ActorID}, order)
		if err != nil {
			return database.OrderProcessing{}, fmt.Errorf("open order processing: %w", err)
		}
	case err != nil:
		return database.OrderProcessing{}, fmt.Errorf("get order processing: %w", err)
	}

	params := database.UpdateOrderProcessingParams{
		ID:          p.ID,
		Status:      status,
		ProcessedBy: database.UUID(req.ActorID),
	}
	var items []ProcessingItemInput
	if in := req.Processing; in != nil {
		if in.TotalPieces != nil {
			params.TotalPieces = pgtype.Int4{Int32: *in.TotalPieces, Valid: true}
		}
		if in.TotalWeight != nil {
			params.TotalWeight = database.Numeric(*in.TotalWeight)
		}
		params.QualityNotes = database.Text(in.QualityNotes)
		items = in.Items
	}
	p, err = store.UpdateOrderProcessing(ctx, params)
	if err != nil {
		return database.OrderProcessing{}, fmt.Errorf("update order processing: %w", err)
	}
	if err := s.writeItems(ctx, store, p.ID, items); err != nil {
		return database.OrderProcessing{}, err
	}
	return p, nil
}

func (s *TrackingService) writeItems(ctx context.Context, store OrderStore, processingID uuid.UUID, items []ProcessingItemInput) error {
	for i, it := range items {
		status := it.Status
		if status == "" {
			status = database.ItemStatusPENDING
		}
		if it.ID != uuid.Nil {
			if _, err := store.UpdateProcessingItemStatus(ctx, database.UpdateProcessingItemStatusParams{
				ID:           it.ID,
				ProcessingID: processingID,
				Status:       status,
				Notes:        database.Text(it.Notes),
			}); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("%w: items[%d]: unknown item", ErrInvalidProcessing, i)
				}
				return fmt.Errorf("update processing item: %w", err)
			}
			continue
		}
		params := database.CreateProcessingItemDetailParams{
			ProcessingID: processingID,
			ItemName:     it.ItemName,
			ServiceType:  it.ServiceType,
			Quantity:     it.Quantity,
			Status:       status,
			Notes:        database.Text(it.Notes),
		}
		if it.Weight != nil {
			params.Weight = database.Numeric(*it.Weight)
		}
		if _, err := store.CreateProcessingItemDetail(ctx, params); err != nil {
			return fmt.Errorf("create processing item: %w", err)
		}
	}
	return nil
}

// OnPaymentSettled moves a fully paid order from PROCESSING_COMPLETED to
// READY_FOR_DELIVERY as the SYSTEM actor. It is a no-op when auto-advance is
// disabled or the order is not in that state.
func (s *TrackingService) OnPaymentSettled(ctx context.Context, orderID uuid.UUID) error {
	if !s.autoAdvance {
		return nil
	}
	order, err := s.newStore(s.db).GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("get order: %w", err)
	}
	if order.Status != database.OrderStatusPROCESSINGCOMPLETED || order.PaymentStatus != database.OrderPaymentStatusPAID {
		return nil
	}

	_, err = s.Transition(ctx, TransitionRequest{
		OrderID: orderID,
		Role:    database.ActorRoleSYSTEM,
		Action:  database.OrderActionMARKREADY,
		Notes:   "payment settled",
	})
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConcurrentUpdate) {
		// Someone else moved the order first.
		return nil
	}
	return err
}

// ReportIssueRequest files an issue against an order or one of its items.
type ReportIssueRequest struct {
	OrderID          uuid.UUID
	ActorID          uuid.UUID
	Role             database.ActorRole
	ProcessingItemID uuid.UUID
	IssueType        database.IssueType
	Description      string
}

var issueStatuses = []database.OrderStatus{
	database.OrderStatusRECEIVEDATFACILITY,
	database.OrderStatusPROCESSING,
	database.OrderStatusPROCESSINGCOMPLETED,
	database.OrderStatusREADYFORDELIVERY,
	database.OrderStatusDELIVERYASSIGNED,
	database.OrderStatusDELIVERYINPROGRESS,
}

func issueAllowed(o database.Order) bool {
	if slices.Contains(issueStatuses, o.Status) {
		return true
	}
	return o.Status == database.OrderStatusFAILED &&
		o.FailureStage.Valid && o.FailureStage.FailureStage == database.FailureStageDELIVERY
}

// ReportIssue records an OPEN issue report and an audit row.
func (s *TrackingService) ReportIssue(ctx context.Context, req ReportIssueRequest) (database.IssueReport, error) {
	if req.Role != database.ActorRoleFACILITY && req.Role != database.ActorRoleADMIN {
		return database.IssueReport{}, ErrActionNotPermitted
	}
	if !req.IssueType.Valid() {
		return database.IssueReport{}, fmt.Errorf("%w: issue_type", ErrInvalidIssue)
	}
	if req.Description == "" {
		return database.IssueReport{}, fmt.Errorf("%w: description is required", ErrInvalidIssue)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.IssueReport{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.IssueReport{}, ErrOrderNotFound
		}
		return database.IssueReport{}, fmt.Errorf("lock order: %w", err)
	}
	if !issueAllowed(order) {
		return database.IssueReport{}, fmt.Errorf("%w (status %s)", ErrIssueNotAllowed, order.Status)
	}

	issue, err := store.CreateIssueReport(ctx, database.CreateIssueReportParams{
		OrderID:          order.ID,
		ProcessingItemID: database.UUID(req.ProcessingItemID),
		ReportedBy:       req.ActorID,
		IssueType:        req.IssueType,
		Description:      req.Description,
	})
	if err != nil {
		return database.IssueReport{}, fmt.Errorf("create issue report: %w", err)
	}
	if _, err := store.CreateOrderUpdate(ctx, database.CreateOrderUpdateParams{
		OrderID:   order.ID,
		Field:     enum.FieldIssueReport,
		NewValue:  database.Text(string(req.IssueType) + ":" + string(issue.Status)),
		ActorID:   database.UUID(req.ActorID),
		ActorRole: req.Role,
		Reason:    database.Text(req.Description),
	}); err != nil {
		return database.IssueReport{}, fmt.Errorf("create order update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.IssueReport{}, fmt.Errorf("commit tx: %w", err)
	}

	s.events.emit(ctx, notify.Event{
		Type:       enum.EventIssueReported,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Data: map[string]any{
			"issue_id":   issue.ID,
			"issue_type": issue.IssueType,
		},
	})
	return issue, nil
}

// ResolveIssueRequest closes an OPEN issue.
type ResolveIssueRequest struct {
	IssueID    uuid.UUID
	ActorID    uuid.UUID
	Role       database.ActorRole
	Status     database.IssueStatus
	Resolution string
}

// ResolveIssue moves an OPEN issue to RESOLVED or DISMISSED.
func (s *TrackingService) ResolveIssue(ctx context.Context, req ResolveIssueRequest) (database.IssueReport, error) {
	if req.Role != database.ActorRoleADMIN {
		return database.IssueReport{}, ErrActionNotPermitted
	}
	if req.Status != database.IssueStatusRESOLVED && req.Status != database.IssueStatusDISMISSED {
		return database.IssueReport{}, fmt.Errorf("%w: status must be RESOLVED or DISMISSED", ErrInvalidIssue)
	}
	if req.Resolution == "" {
		return database.IssueReport{}, fmt.Errorf("%w: resolution is required", ErrInvalidIssue)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.IssueReport{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	current, err := store.GetIssueReport(ctx, req.IssueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.IssueReport{}, ErrIssueNotFound
		}
		return database.IssueReport{}, fmt.Errorf("get issue report: %w", err)
	}

	issue, err := store.ResolveIssueReport(ctx, database.ResolveIssueReportParams{
		ID:         current.ID,
		Status:     req.Status,
		Resolution: database.Text(req.Resolution),
		ResolvedBy: database.UUID(req.ActorID),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.IssueReport{}, ErrIssueClosed
		}
		return database.IssueReport{}, fmt.Errorf("resolve issue report: %w", err)
	}
	if _, err := store.CreateOrderUpdate(ctx, database.CreateOrderUpdateParams{
		OrderID:   issue.OrderID,
		Field:     enum.FieldIssueReport,
		OldValue:  database.Text(string(current.IssueType) + ":" + string(current.Status)),
		NewValue:  database.Text(string(issue.IssueType) + ":" + string(issue.Status)),
		ActorID:   database.UUID(req.ActorID),
		ActorRole: req.Role,
		Reason:    database.Text(req.Resolution),
	}); err != nil {
		return database.IssueReport{}, fmt.Errorf("create order update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.IssueReport{}, fmt.Errorf("commit tx: %w", err)
	}
	return issue, nil
}
