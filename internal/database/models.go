package database

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type ActorRole string

const (
	ActorRoleADMIN    ActorRole = "ADMIN"
	ActorRoleDRIVER   ActorRole = "DRIVER"
	ActorRoleFACILITY ActorRole = "FACILITY"
	ActorRoleCUSTOMER ActorRole = "CUSTOMER"
	ActorRoleSYSTEM   ActorRole = "SYSTEM"
)

func (e *ActorRole) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = ActorRole(s)
	case string:
		*e = ActorRole(s)
	default:
		return fmt.Errorf("unsupported scan type for ActorRole: %T", src)
	}
	return nil
}

func (e ActorRole) Valid() bool {
	switch e {
	case ActorRoleADMIN,
		ActorRoleDRIVER,
		ActorRoleFACILITY,
		ActorRoleCUSTOMER,
		ActorRoleSYSTEM:
		return true
	}
	return false
}

func AllActorRoleValues() []ActorRole {
	return []ActorRole{
		ActorRoleADMIN,
		ActorRoleDRIVER,
		ActorRoleFACILITY,
		ActorRoleCUSTOMER,
		ActorRoleSYSTEM,
	}
}

type AssignmentStatus string

const (
	AssignmentStatusASSIGNED   AssignmentStatus = "ASSIGNED"
	AssignmentStatusINPROGRESS AssignmentStatus = "IN_PROGRESS"
	AssignmentStatusCOMPLETED  AssignmentStatus = "COMPLETED"
	AssignmentStatusFAILED     AssignmentStatus = "FAILED"
	AssignmentStatusCANCELLED  AssignmentStatus = "CANCELLED"
)

func (e *AssignmentStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = AssignmentStatus(s)
	case string:
		*e = AssignmentStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for AssignmentStatus: %T", src)
	}
	return nil
}

func (e AssignmentStatus) Valid() bool {
	switch e {
	case AssignmentStatusASSIGNED,
		AssignmentStatusINPROGRESS,
		AssignmentStatusCOMPLETED,
		AssignmentStatusFAILED,
		AssignmentStatusCANCELLED:
		return true
	}
	return false
}

func AllAssignmentStatusValues() []AssignmentStatus {
	return []AssignmentStatus{
		AssignmentStatusASSIGNED,
		AssignmentStatusINPROGRESS,
		AssignmentStatusCOMPLETED,
		AssignmentStatusFAILED,
		AssignmentStatusCANCELLED,
	}
}

type AssignmentType string

const (
	AssignmentTypePICKUP   AssignmentType = "PICKUP"
	AssignmentTypeDELIVERY AssignmentType = "DELIVERY"
)

func (e *AssignmentType) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = AssignmentType(s)
	case string:
		*e = AssignmentType(s)
	default:
		return fmt.Errorf("unsupported scan type for AssignmentType: %T", src)
	}
	return nil
}

func (e AssignmentType) Valid() bool {
	switch e {
	case AssignmentTypePICKUP,
		AssignmentTypeDELIVERY:
		return true
	}
	return false
}

func AllAssignmentTypeValues() []AssignmentType {
	return []AssignmentType{
		AssignmentTypePICKUP,
		AssignmentTypeDELIVERY,
	}
}

type FailureStage string

const (
	FailureStagePICKUP   FailureStage = "PICKUP"
	FailureStageDELIVERY FailureStage = "DELIVERY"
)

func (e *FailureStage) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = FailureStage(s)
	case string:
		*e = FailureStage(s)
	default:
		return fmt.Errorf("unsupported scan type for FailureStage: %T", src)
	}
	return nil
}

type NullFailureStage struct {
	FailureStage FailureStage
	Valid        bool // Valid is true if FailureStage is not NULL
}

// Scan implements the Scanner interface.
func (ns *NullFailureStage) Scan(value interface{}) error {
	if value == nil {
		ns.FailureStage, ns.Valid = "", false
		return nil
	}
	ns.Valid = true
	return ns.FailureStage.Scan(value)
}

// Value implements the driver Valuer interface.
func (ns NullFailureStage) Value() (driver.Value, error) {
	if !ns.Valid {
		return nil, nil
	}
	return string(ns.FailureStage), nil
}

func (e FailureStage) Valid() bool {
	switch e {
	case FailureStagePICKUP,
		FailureStageDELIVERY:
		return true
	}
	return false
}

func AllFailureStageValues() []FailureStage {
	return []FailureStage{
		FailureStagePICKUP,
		FailureStageDELIVERY,
	}
}

type IssueStatus string

const (
	IssueStatusOPEN      IssueStatus = "OPEN"
	IssueStatusRESOLVED  IssueStatus = "RESOLVED"
	IssueStatusDISMISSED IssueStatus = "DISMISSED"
)

func (e *IssueStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = IssueStatus(s)
	case string:
		*e = IssueStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for IssueStatus: %T", src)
	}
	return nil
}

func (e IssueStatus) Valid() bool {
	switch e {
	case IssueStatusOPEN,
		IssueStatusRESOLVED,
		IssueStatusDISMISSED:
		return true
	}
	return false
}

func AllIssueStatusValues() []IssueStatus {
	return []IssueStatus{
		IssueStatusOPEN,
		IssueStatusRESOLVED,
		IssueStatusDISMISSED,
	}
}

type IssueType string

const (
	IssueTypeDAMAGE      IssueType = "DAMAGE"
	IssueTypeMISSINGITEM IssueType = "MISSING_ITEM"
	IssueTypeSTAIN       IssueType = "STAIN"
	IssueTypeOTHER       IssueType = "OTHER"
)

func (e *IssueType) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = IssueType(s)
	case string:
		*e = IssueType(s)
	default:
		return fmt.Errorf("unsupported scan type for IssueType: %T", src)
	}
	return nil
}

func (e IssueType) Valid() bool {
	switch e {
	case IssueTypeDAMAGE,
		IssueTypeMISSINGITEM,
		IssueTypeSTAIN,
		IssueTypeOTHER:
		return true
	}
	return false
}

func AllIssueTypeValues() []IssueType {
	return []IssueType{
		IssueTypeDAMAGE,
		IssueTypeMISSINGITEM,
		IssueTypeSTAIN,
		IssueTypeOTHER,
	}
}

type ItemStatus string

const (
	ItemStatusPENDING   ItemStatus = "PENDING"
	ItemStatusPROCESSED ItemStatus = "PROCESSED"
	ItemStatusDAMAGED   ItemStatus = "DAMAGED"
)

func (e *ItemStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = ItemStatus(s)
	case string:
		*e = ItemStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for ItemStatus: %T", src)
	}
	return nil
}

func (e ItemStatus) Valid() bool {
	switch e {
	case ItemStatusPENDING,
		ItemStatusPROCESSED,
		ItemStatusDAMAGED:
		return true
	}
	return false
}

func AllItemStatusValues() []ItemStatus {
	return []ItemStatus{
		ItemStatusPENDING,
		ItemStatusPROCESSED,
		ItemStatusDAMAGED,
	}
}

type OrderAction string

const (
	OrderActionPLACE              OrderAction = "PLACE"
	OrderActionCONFIRM            OrderAction = "CONFIRM"
	OrderActionASSIGNPICKUP       OrderAction = "ASSIGN_PICKUP"
	OrderActionSTARTPICKUP        OrderAction = "START_PICKUP"
	OrderActionCOMPLETEPICKUP     OrderAction = "COMPLETE_PICKUP"
	OrderActionFAILPICKUP         OrderAction = "FAIL_PICKUP"
	OrderActionRECEIVEATFACILITY  OrderAction = "RECEIVE_AT_FACILITY"
	OrderActionSTARTPROCESSING    OrderAction = "START_PROCESSING"
	OrderActionCOMPLETEPROCESSING OrderAction = "COMPLETE_PROCESSING"
	OrderActionMARKREADY          OrderAction = "MARK_READY"
	OrderActionASSIGNDELIVERY     OrderAction = "ASSIGN_DELIVERY"
	OrderActionSTARTDELIVERY      OrderAction = "START_DELIVERY"
	OrderActionCOMPLETEDELIVERY   OrderAction = "COMPLETE_DELIVERY"
	OrderActionFAILDELIVERY       OrderAction = "FAIL_DELIVERY"
	OrderActionRESCHEDULE         OrderAction = "RESCHEDULE"
	OrderActionCANCEL             OrderAction = "CANCEL"
)

func (e *OrderAction) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = OrderAction(s)
	case string:
		*e = OrderAction(s)
	default:
		return fmt.Errorf("unsupported scan type for OrderAction: %T", src)
	}
	return nil
}

func (e OrderAction) Valid() bool {
	switch e {
	case OrderActionPLACE,
		OrderActionCONFIRM,
		OrderActionASSIGNPICKUP,
		OrderActionSTARTPICKUP,
		OrderActionCOMPLETEPICKUP,
		OrderActionFAILPICKUP,
		OrderActionRECEIVEATFACILITY,
		OrderActionSTARTPROCESSING,
		OrderActionCOMPLETEPROCESSING,
		OrderActionMARKREADY,
		OrderActionASSIGNDELIVERY,
		OrderActionSTARTDELIVERY,
		OrderActionCOMPLETEDELIVERY,
		OrderActionFAILDELIVERY,
		OrderActionRESCHEDULE,
		OrderActionCANCEL:
		return true
	}
	return false
}

func AllOrderActionValues() []OrderAction {
	return []OrderAction{
		OrderActionPLACE,
		OrderActionCONFIRM,
		OrderActionASSIGNPICKUP,
		OrderActionSTARTPICKUP,
		OrderActionCOMPLETEPICKUP,
		OrderActionFAILPICKUP,
		OrderActionRECEIVEATFACILITY,
		OrderActionSTARTPROCESSING,
		OrderActionCOMPLETEPROCESSING,
		OrderActionMARKREADY,
		OrderActionASSIGNDELIVERY,
		OrderActionSTARTDELIVERY,
		OrderActionCOMPLETEDELIVERY,
		OrderActionFAILDELIVERY,
		OrderActionRESCHEDULE,
		OrderActionCANCEL,
	}
}

type OrderPaymentStatus string

const (
	OrderPaymentStatusPENDING  OrderPaymentStatus = "PENDING"
	OrderPaymentStatusPARTIAL  OrderPaymentStatus = "PARTIAL"
	OrderPaymentStatusPAID     OrderPaymentStatus = "PAID"
	OrderPaymentStatusREFUNDED OrderPaymentStatus = "REFUNDED"
	OrderPaymentStatusFAILED   OrderPaymentStatus = "FAILED"
)

func (e *OrderPaymentStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = OrderPaymentStatus(s)
	case string:
		*e = OrderPaymentStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for OrderPaymentStatus: %T", src)
	}
	return nil
}

func (e OrderPaymentStatus) Valid() bool {
	switch e {
	case OrderPaymentStatusPENDING,
		OrderPaymentStatusPARTIAL,
		OrderPaymentStatusPAID,
		OrderPaymentStatusREFUNDED,
		OrderPaymentStatusFAILED:
		return true
	}
	return false
}

func AllOrderPaymentStatusValues() []OrderPaymentStatus {
	return []OrderPaymentStatus{
		OrderPaymentStatusPENDING,
		OrderPaymentStatusPARTIAL,
		OrderPaymentStatusPAID,
		OrderPaymentStatusREFUNDED,
		OrderPaymentStatusFAILED,
	}
}

type OrderStatus string

const (
	OrderStatusORDERPLACED         OrderStatus = "ORDER_PLACED"
	OrderStatusCONFIRMED           OrderStatus = "CONFIRMED"
	OrderStatusPICKUPASSIGNED      OrderStatus = "PICKUP_ASSIGNED"
	OrderStatusPICKUPINPROGRESS    OrderStatus = "PICKUP_IN_PROGRESS"
	OrderStatusPICKUPCOMPLETED     OrderStatus = "PICKUP_COMPLETED"
	OrderStatusRECEIVEDATFACILITY  OrderStatus = "RECEIVED_AT_FACILITY"
	OrderStatusPROCESSING          OrderStatus = "PROCESSING"
	OrderStatusPROCESSINGCOMPLETED OrderStatus = "PROCESSING_COMPLETED"
	OrderStatusREADYFORDELIVERY    OrderStatus = "READY_FOR_DELIVERY"
	OrderStatusDELIVERYASSIGNED    OrderStatus = "DELIVERY_ASSIGNED"
	OrderStatusDELIVERYINPROGRESS  OrderStatus = "DELIVERY_IN_PROGRESS"
	OrderStatusDELIVERED           OrderStatus = "DELIVERED"
	OrderStatusFAILED              OrderStatus = "FAILED"
	OrderStatusCANCELLED           OrderStatus = "CANCELLED"
)

func (e *OrderStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = OrderStatus(s)
	case string:
		*e = OrderStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for OrderStatus: %T", src)
	}
	return nil
}

type NullOrderStatus struct {
	OrderStatus OrderStatus
	Valid       bool // Valid is true if OrderStatus is not NULL
}

// Scan implements the Scanner interface.
func (ns *NullOrderStatus) Scan(value interface{}) error {
	if value == nil {
		ns.OrderStatus, ns.Valid = "", false
		return nil
	}
	ns.Valid = true
	return ns.OrderStatus.Scan(value)
}

// Value implements the driver Valuer interface.
func (ns NullOrderStatus) Value() (driver.Value, error) {
	if !ns.Valid {
		return nil, nil
	}
	return string(ns.OrderStatus), nil
}

func (e OrderStatus) Valid() bool {
	switch e {
	case OrderStatusORDERPLACED,
		OrderStatusCONFIRMED,
		OrderStatusPICKUPASSIGNED,
		OrderStatusPICKUPINPROGRESS,
		OrderStatusPICKUPCOMPLETED,
		OrderStatusRECEIVEDATFACILITY,
		OrderStatusPROCESSING,
		OrderStatusPROCESSINGCOMPLETED,
		OrderStatusREADYFORDELIVERY,
		OrderStatusDELIVERYASSIGNED,
		OrderStatusDELIVERYINPROGRESS,
		OrderStatusDELIVERED,
		OrderStatusFAILED,
		OrderStatusCANCELLED:
		return true
	}
	return false
}

func AllOrderStatusValues() []OrderStatus {
	return []OrderStatus{
		OrderStatusORDERPLACED,
		OrderStatusCONFIRMED,
		OrderStatusPICKUPASSIGNED,
		OrderStatusPICKUPINPROGRESS,
		OrderStatusPICKUPCOMPLETED,
		OrderStatusRECEIVEDATFACILITY,
		OrderStatusPROCESSING,
		OrderStatusPROCESSINGCOMPLETED,
		OrderStatusREADYFORDELIVERY,
		OrderStatusDELIVERYASSIGNED,
		OrderStatusDELIVERYINPROGRESS,
		OrderStatusDELIVERED,
		OrderStatusFAILED,
		OrderStatusCANCELLED,
	}
}

type PaymentMethod string

const (
	PaymentMethodTAPCHARGE    PaymentMethod = "TAP_CHARGE"
	PaymentMethodTAPINVOICE   PaymentMethod = "TAP_INVOICE"
	PaymentMethodWALLET       PaymentMethod = "WALLET"
	PaymentMethodCASH         PaymentMethod = "CASH"
	PaymentMethodBANKTRANSFER PaymentMethod = "BANK_TRANSFER"
)

func (e *PaymentMethod) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = PaymentMethod(s)
	case string:
		*e = PaymentMethod(s)
	default:
		return fmt.Errorf("unsupported scan type for PaymentMethod: %T", src)
	}
	return nil
}

func (e PaymentMethod) Valid() bool {
	switch e {
	case PaymentMethodTAPCHARGE,
		PaymentMethodTAPINVOICE,
		PaymentMethodWALLET,
		PaymentMethodCASH,
		PaymentMethodBANKTRANSFER:
		return true
	}
	return false
}

func AllPaymentMethodValues() []PaymentMethod {
	return []PaymentMethod{
		PaymentMethodTAPCHARGE,
		PaymentMethodTAPINVOICE,
		PaymentMethodWALLET,
		PaymentMethodCASH,
		PaymentMethodBANKTRANSFER,
	}
}

type PaymentStatus string

const (
	PaymentStatusPENDING       PaymentStatus = "PENDING"
	PaymentStatusPAID          PaymentStatus = "PAID"
	PaymentStatusFAILED        PaymentStatus = "FAILED"
	PaymentStatusREFUNDED      PaymentStatus = "REFUNDED"
	PaymentStatusPARTIALREFUND PaymentStatus = "PARTIAL_REFUND"
)

func (e *PaymentStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = PaymentStatus(s)
	case string:
		*e = PaymentStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for PaymentStatus: %T", src)
	}
	return nil
}

func (e PaymentStatus) Valid() bool {
	switch e {
	case PaymentStatusPENDING,
		PaymentStatusPAID,
		PaymentStatusFAILED,
		PaymentStatusREFUNDED,
		PaymentStatusPARTIALREFUND:
		return true
	}
	return false
}

func AllPaymentStatusValues() []PaymentStatus {
	return []PaymentStatus{
		PaymentStatusPENDING,
		PaymentStatusPAID,
		PaymentStatusFAILED,
		PaymentStatusREFUNDED,
		PaymentStatusPARTIALREFUND,
	}
}

type ProcessingStatus string

const (
	ProcessingStatusRECEIVED   ProcessingStatus = "RECEIVED"
	ProcessingStatusINPROGRESS ProcessingStatus = "IN_PROGRESS"
	ProcessingStatusCOMPLETED  ProcessingStatus = "COMPLETED"
)

func (e *ProcessingStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = ProcessingStatus(s)
	case string:
		*e = ProcessingStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for ProcessingStatus: %T", src)
	}
	return nil
}

func (e ProcessingStatus) Valid() bool {
	switch e {
	case ProcessingStatusRECEIVED,
		ProcessingStatusINPROGRESS,
		ProcessingStatusCOMPLETED:
		return true
	}
	return false
}

func AllProcessingStatusValues() []ProcessingStatus {
	return []ProcessingStatus{
		ProcessingStatusRECEIVED,
		ProcessingStatusINPROGRESS,
		ProcessingStatusCOMPLETED,
	}
}

type WalletTransactionStatus string

const (
	WalletTransactionStatusPENDING   WalletTransactionStatus = "PENDING"
	WalletTransactionStatusCOMPLETED WalletTransactionStatus = "COMPLETED"
	WalletTransactionStatusFAILED    WalletTransactionStatus = "FAILED"
)

func (e *WalletTransactionStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = WalletTransactionStatus(s)
	case string:
		*e = WalletTransactionStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for WalletTransactionStatus: %T", src)
	}
	return nil
}

func (e WalletTransactionStatus) Valid() bool {
	switch e {
	case WalletTransactionStatusPENDING,
		WalletTransactionStatusCOMPLETED,
		WalletTransactionStatusFAILED:
		return true
	}
	return false
}

func AllWalletTransactionStatusValues() []WalletTransactionStatus {
	return []WalletTransactionStatus{
		WalletTransactionStatusPENDING,
		WalletTransactionStatusCOMPLETED,
		WalletTransactionStatusFAILED,
	}
}

type WalletTransactionType string

const (
	WalletTransactionTypeDEPOSIT    WalletTransactionType = "DEPOSIT"
	WalletTransactionTypeWITHDRAWAL WalletTransactionType = "WITHDRAWAL"
	WalletTransactionTypeADJUSTMENT WalletTransactionType = "ADJUSTMENT"
	WalletTransactionTypePAYMENT    WalletTransactionType = "PAYMENT"
	WalletTransactionTypeREFUND     WalletTransactionType = "REFUND"
	WalletTransactionTypeTRANSFER   WalletTransactionType = "TRANSFER"
)

func (e *WalletTransactionType) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = WalletTransactionType(s)
	case string:
		*e = WalletTransactionType(s)
	default:
		return fmt.Errorf("unsupported scan type for WalletTransactionType: %T", src)
	}
	return nil
}

func (e WalletTransactionType) Valid() bool {
	switch e {
	case WalletTransactionTypeDEPOSIT,
		WalletTransactionTypeWITHDRAWAL,
		WalletTransactionTypeADJUSTMENT,
		WalletTransactionTypePAYMENT,
		WalletTransactionTypeREFUND,
		WalletTransactionTypeTRANSFER:
		return true
	}
	return false
}

func AllWalletTransactionTypeValues() []WalletTransactionType {
	return []WalletTransactionType{
		WalletTransactionTypeDEPOSIT,
		WalletTransactionTypeWITHDRAWAL,
		WalletTransactionTypeADJUSTMENT,
		WalletTransactionTypePAYMENT,
		WalletTransactionTypeREFUND,
		WalletTransactionTypeTRANSFER,
	}
}

type Customer struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Email     pgtype.Text `json:"email"`
	Phone     pgtype.Text `json:"phone"`
	CreatedAt time.Time   `json:"created_at"`
}

type DriverAssignment struct {
	ID             uuid.UUID          `json:"id"`
	OrderID        uuid.UUID          `json:"order_id"`
	DriverID       uuid.UUID          `json:"driver_id"`
	AssignmentType AssignmentType     `json:"assignment_type"`
	Status         AssignmentStatus   `json:"status"`
	ScheduledAt    pgtype.Timestamptz `json:"scheduled_at"`
	StartedAt      pgtype.Timestamptz `json:"started_at"`
	CompletedAt    pgtype.Timestamptz `json:"completed_at"`
	FailureReason  pgtype.Text        `json:"failure_reason"`
	Notes          pgtype.Text        `json:"notes"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type IssueReport struct {
	ID               uuid.UUID          `json:"id"`
	OrderID          uuid.UUID          `json:"order_id"`
	ProcessingItemID pgtype.UUID        `json:"processing_item_id"`
	ReportedBy       uuid.UUID          `json:"reported_by"`
	IssueType        IssueType          `json:"issue_type"`
	Description      string             `json:"description"`
	Status           IssueStatus        `json:"status"`
	Resolution       pgtype.Text        `json:"resolution"`
	ResolvedBy       pgtype.UUID        `json:"resolved_by"`
	ResolvedAt       pgtype.Timestamptz `json:"resolved_at"`
	CreatedAt        time.Time          `json:"created_at"`
}

type Order struct {
	ID                  uuid.UUID          `json:"id"`
	OrderNumber         string             `json:"order_number"`
	CustomerID          uuid.UUID          `json:"customer_id"`
	Status              OrderStatus        `json:"status"`
	PaymentStatus       OrderPaymentStatus `json:"payment_status"`
	InvoiceTotal        pgtype.Numeric     `json:"invoice_total"`
	FailureStage        NullFailureStage   `json:"failure_stage"`
	PickupAddress       string             `json:"pickup_address"`
	PickupWindowStart   pgtype.Timestamptz `json:"pickup_window_start"`
	PickupWindowEnd     pgtype.Timestamptz `json:"pickup_window_end"`
	DeliveryWindowStart pgtype.Timestamptz `json:"delivery_window_start"`
	DeliveryWindowEnd   pgtype.Timestamptz `json:"delivery_window_end"`
	Notes               pgtype.Text        `json:"notes"`
	PickedUpAt          pgtype.Timestamptz `json:"picked_up_at"`
	DeliveredAt         pgtype.Timestamptz `json:"delivered_at"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

type OrderHistory struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    uuid.UUID       `json:"order_id"`
	FromStatus NullOrderStatus `json:"from_status"`
	ToStatus   OrderStatus     `json:"to_status"`
	Action     OrderAction     `json:"action"`
	ActorID    pgtype.UUID     `json:"actor_id"`
	ActorRole  ActorRole       `json:"actor_role"`
	Notes      pgtype.Text     `json:"notes"`
	CreatedAt  time.Time       `json:"created_at"`
}

type OrderPhoto struct {
	ID           uuid.UUID   `json:"id"`
	OrderID      uuid.UUID   `json:"order_id"`
	AssignmentID pgtype.UUID `json:"assignment_id"`
	PhotoUrl     string      `json:"photo_url"`
	UploadedBy   uuid.UUID   `json:"uploaded_by"`
	CreatedAt    time.Time   `json:"created_at"`
}

type OrderProcessing struct {
	ID           uuid.UUID          `json:"id"`
	OrderID      uuid.UUID          `json:"order_id"`
	Status       ProcessingStatus   `json:"status"`
	TotalPieces  int32              `json:"total_pieces"`
	TotalWeight  pgtype.Numeric     `json:"total_weight"`
	ProcessedBy  pgtype.UUID        `json:"processed_by"`
	QualityNotes pgtype.Text        `json:"quality_notes"`
	StartedAt    pgtype.Timestamptz `json:"started_at"`
	CompletedAt  pgtype.Timestamptz `json:"completed_at"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type OrderUpdate struct {
	ID        uuid.UUID   `json:"id"`
	OrderID   uuid.UUID   `json:"order_id"`
	Field     string      `json:"field"`
	OldValue  pgtype.Text `json:"old_value"`
	NewValue  pgtype.Text `json:"new_value"`
	ActorID   pgtype.UUID `json:"actor_id"`
	ActorRole ActorRole   `json:"actor_role"`
	Reason    pgtype.Text `json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}

type PaymentRecord struct {
	ID                  uuid.UUID          `json:"id"`
	OrderID             pgtype.UUID        `json:"order_id"`
	CustomerID          uuid.UUID          `json:"customer_id"`
	WalletTransactionID pgtype.UUID        `json:"wallet_transaction_id"`
	Amount              pgtype.Numeric     `json:"amount"`
	PaymentMethod       PaymentMethod      `json:"payment_method"`
	PaymentStatus       PaymentStatus      `json:"payment_status"`
	TapReference        pgtype.Text        `json:"tap_reference"`
	TapTransactionID    pgtype.Text        `json:"tap_transaction_id"`
	RefundAmount        pgtype.Numeric     `json:"refund_amount"`
	Metadata            []byte             `json:"metadata"`
	PaidAt              pgtype.Timestamptz `json:"paid_at"`
	CreatedBy           pgtype.UUID        `json:"created_by"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

type ProcessingItemDetail struct {
	ID           uuid.UUID      `json:"id"`
	ProcessingID uuid.UUID      `json:"processing_id"`
	ItemName     string         `json:"item_name"`
	ServiceType  string         `json:"service_type"`
	Quantity     int32          `json:"quantity"`
	Weight       pgtype.Numeric `json:"weight"`
	Status       ItemStatus     `json:"status"`
	Notes        pgtype.Text    `json:"notes"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Wallet struct {
	ID         uuid.UUID      `json:"id"`
	CustomerID uuid.UUID      `json:"customer_id"`
	Balance    pgtype.Numeric `json:"balance"`
	Currency   string         `json:"currency"`
	Version    int32          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type WalletTransaction struct {
	ID              uuid.UUID               `json:"id"`
	WalletID        uuid.UUID               `json:"wallet_id"`
	TransactionType WalletTransactionType   `json:"transaction_type"`
	Amount          pgtype.Numeric          `json:"amount"`
	BalanceBefore   pgtype.Numeric          `json:"balance_before"`
	BalanceAfter    pgtype.Numeric          `json:"balance_after"`
	Status          WalletTransactionStatus `json:"status"`
	Description     pgtype.Text             `json:"description"`
	OrderID         pgtype.UUID             `json:"order_id"`
	Metadata        []byte                  `json:"metadata"`
	CreatedAt       time.Time               `json:"created_at"`
	CompletedAt     pgtype.Timestamptz      `json:"completed_at"`
}
