package enum

// Closed status vocabularies live in the database package as typed enums
// backed by CHECK constraints. This package holds the open label sets.

// ── Service types (free text in processing_item_details.service_type) ──

const (
	ServiceTypeWashFold  = "WASH_FOLD"
	ServiceTypeDryClean  = "DRY_CLEAN"
	ServiceTypeIronOnly  = "IRON_ONLY"
	ServiceTypeWashIron  = "WASH_IRON"
	ServiceTypeSpecialty = "SPECIALTY"
)

// ── Order update fields (order_updates.field) ──

const (
	FieldPaymentStatus = "payment_status"
	FieldInvoiceTotal  = "invoice_total"
	FieldInvoice       = "invoice"
	FieldIssueReport   = "issue_report"
	FieldPayment       = "payment"
)

// ── Notification event types ──

const (
	EventOrderStatusChanged   = "order.status_changed"
	EventPaymentStatusChanged = "payment.status_changed"
	EventInvoiceGenerated     = "invoice.generated"
	EventWalletUpdated        = "wallet.updated"
	EventIssueReported        = "issue.reported"
)

// ── Balance adjustment modes ──

const (
	AdjustModeSet   = "set"
	AdjustModeDelta = "delta"
)
