package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/laundrix/api/internal/audit"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/enum"
	"github.com/laundrix/api/internal/gateway"
	"github.com/laundrix/api/internal/notify"
	"github.com/shopspring/decimal"
)

// Errors returned by the payment service.
var (
	ErrInvoiceNotAllowed        = errors.New("order is not ready to be invoiced")
	ErrInvoicePending           = errors.New("order already has a pending invoice")
	ErrNotInvoice               = errors.New("payment is not a gateway invoice")
	ErrPaymentNotPending        = errors.New("payment is not pending")
	ErrInvalidPaymentMethod     = errors.New("invalid payment_method")
	ErrAmountExceedsOutstanding = errors.New("amount exceeds the outstanding balance")
	ErrRefundNotAllowed         = errors.New("only paid payments can be refunded")
	ErrRefundExceedsPayment     = errors.New("refund exceeds the paid amount")
	ErrInvalidOverride          = errors.New("status override not allowed")
	ErrOrderCancelled           = errors.New("order is cancelled")
)

const invoiceValidity = 72 * time.Hour

var invoiceStatuses = []database.OrderStatus{
	database.OrderStatusRECEIVEDATFACILITY,
	database.OrderStatusPROCESSING,
	database.OrderStatusPROCESSINGCOMPLETED,
	database.OrderStatusREADYFORDELIVERY,
}

// PaymentService runs invoicing, manual and wallet payments, refunds and
// admin overrides.
type PaymentService struct {
	paymentCore
}

// NewPaymentService creates a PaymentService. hook may be nil.
func NewPaymentService(db DB, newStore NewPaymentStore, gw Gateway, hook PaymentSettledHook, notifier notify.Notifier, logger *slog.Logger) *PaymentService {
	return &PaymentService{paymentCore: newPaymentCore(db, newStore, gw, hook, notifier, logger)}
}

// OrderPayments is an order's payment records and their summary.
type OrderPayments struct {
	Order    database.Order           `json:"order"`
	Payments []database.PaymentRecord `json:"payments"`
	Summary  PaymentSummary           `json:"summary"`
}

// GetOrderPayments returns the order's records and the derived summary.
func (s *PaymentService) GetOrderPayments(ctx context.Context, orderID uuid.UUID) (*OrderPayments, error) {
	store := s.newStore(s.db)
	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	records, err := store.ListPaymentRecordsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	return &OrderPayments{
		Order:    order,
		Payments: records,
		Summary:  SummarizePayments(database.Decimal(order.InvoiceTotal), records),
	}, nil
}

// GetPayment returns one payment record.
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (database.PaymentRecord, error) {
	return s.getPayment(ctx, s.newStore(s.db), id)
}

// RecalculateOrderPaymentStatus re-derives and stores the order's payment status.
func (s *PaymentService) RecalculateOrderPaymentStatus(ctx context.Context, orderID, actorID uuid.UUID) (*OrderPayments, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	res, err := recomputeOrderPaymentStatus(ctx, store, orderID, actor{ID: actorID, Role: database.ActorRoleADMIN}, "recalculated")
	if err != nil {
		return nil, err
	}
	records, err := store.ListPaymentRecordsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if res.changed() {
		s.events.logger.Info("order payment status recalculated",
			"order_id", orderID,
			"from", res.Previous,
			"to", res.Order.PaymentStatus,
		)
	}
	s.settled(ctx, res)
	return &OrderPayments{Order: res.Order, Payments: records, Summary: res.Summary}, nil
}

// GenerateInvoiceRequest sets the order's invoice total and bills the
// outstanding amount through a gateway invoice.
type GenerateInvoiceRequest struct {
	OrderID        uuid.UUID
	AdminID        uuid.UUID
	InvoiceTotal   decimal.Decimal
	SendToCustomer bool
}

// InvoiceResult is the outcome of GenerateInvoice. Payment is nil when
// nothing was outstanding.
type InvoiceResult struct {
	Order      database.Order          `json:"order"`
	Summary    PaymentSummary          `json:"summary"`
	Payment    *database.PaymentRecord `json:"payment,omitempty"`
	InvoiceURL string                  `json:"invoice_url,omitempty"`
}

// GenerateInvoice records the invoice total, then creates a gateway invoice
// for what is still outstanding. The total is committed before the gateway
// call so a gateway failure can be retried with the same request.
func (s *PaymentService) GenerateInvoice(ctx context.Context, req GenerateInvoiceRequest) (*InvoiceResult, error) {
	if !ValidAmount(req.InvoiceTotal) {
		return nil, ErrInvalidAmount
	}
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}

	res, err := s.setInvoiceTotal(ctx, req)
	if err != nil {
		return nil, err
	}
	s.settled(ctx, res)

	out := &InvoiceResult{Order: res.Order, Summary: res.Summary}
	outstanding := res.Summary.OutstandingAmount
	if !outstanding.IsPositive() {
		return out, nil
	}

	customer, err := s.newStore(s.db).GetCustomer(ctx, res.Order.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	now := time.Now().UTC()
	inv, err := s.gateway.CreateInvoice(ctx, gateway.CreateInvoiceRequest{
		Amount:         outstanding,
		Description:    "Laundry order " + res.Order.OrderNumber,
		Customer:       gatewayCustomer(customer),
		Reference:      gateway.Reference{Order: res.Order.OrderNumber, Transaction: res.Order.ID.String()},
		DueAt:          now.Add(invoiceValidity),
		ExpiresAt:      now.Add(invoiceValidity),
		SendToCustomer: req.SendToCustomer,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create invoice: %w", ErrGateway, err)
	}

	metadata, err := audit.New(audit.Entry{
		Kind:          audit.KindCreated,
		ActorID:       req.AdminID.String(),
		To:            string(database.PaymentStatusPENDING),
		GatewayStatus: inv.Status,
		Amount:        outstanding.StringFixed(database.MoneyScale),
		Reference:     inv.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if _, err := store.GetOrderForUpdate(ctx, req.OrderID); err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	payment, err := store.CreatePaymentRecord(ctx, database.CreatePaymentRecordParams{
		OrderID:       database.UUID(req.OrderID),
		CustomerID:    res.Order.CustomerID,
		Amount:        database.Numeric(outstanding),
		PaymentMethod: database.PaymentMethodTAPINVOICE,
		PaymentStatus: database.PaymentStatusPENDING,
		TapReference:  database.Text(inv.ID),
		Metadata:      metadata,
		CreatedBy:     database.UUID(req.AdminID),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment record: %w", err)
	}
	if _, err := store.CreateOrderUpdate(ctx, database.CreateOrderUpdateParams{
		OrderID:   req.OrderID,
		Field:     enum.FieldInvoice,
		NewValue:  database.Text(inv.ID),
		ActorID:   database.UUID(req.AdminID),
		ActorRole: database.ActorRoleADMIN,
		Reason:    database.Text("invoice for " + outstanding.StringFixed(database.MoneyScale)),
	}); err != nil {
		return nil, fmt.Errorf("create order update: %w", err)
	}
	rc, err := recomputeOrderPaymentStatus(ctx, store, req.OrderID, actor{ID: req.AdminID, Role: database.ActorRoleADMIN}, "invoice generated")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.events.emit(ctx, notify.Event{
		Type:       enum.EventInvoiceGenerated,
		OrderID:    req.OrderID,
		CustomerID: res.Order.CustomerID,
		PaymentID:  payment.ID,
		Data: map[string]any{
			"invoice_id": inv.ID,
			"url":        inv.URL,
			"amount":     outstanding.StringFixed(database.MoneyScale),
		},
	})

	out.Order = rc.Order
	out.Summary = rc.Summary
	out.Payment = &payment
	out.InvoiceURL = inv.URL
	return out, nil
}

func (s *PaymentService) setInvoiceTotal(ctx context.Context, req GenerateInvoiceRequest) (*orderRecompute, error) {
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
	if !slices.Contains(invoiceStatuses, order.Status) {
		return nil, fmt.Errorf("%w (status %s)", ErrInvoiceNotAllowed, order.Status)
	}

	records, err := store.ListPaymentRecordsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	for _, r := range records {
		if r.PaymentMethod == database.PaymentMethodTAPINVOICE && r.PaymentStatus == database.PaymentStatusPENDING {
			return nil, ErrInvoicePending
		}
	}

	current := database.Decimal(order.InvoiceTotal)
	total := req.InvoiceTotal.Round(database.MoneyScale)
	if !current.Equal(total) {
		if _, err := store.UpdateOrderInvoiceTotal(ctx, database.UpdateOrderInvoiceTotalParams{
			ID:           order.ID,
			InvoiceTotal: database.Numeric(total),
		}); err != nil {
			return nil, fmt.Errorf("update invoice total: %w", err)
		}
		if _, err := store.CreateOrderUpdate(ctx, database.CreateOrderUpdateParams{
			OrderID:   order.ID,
			Field:     enum.FieldInvoiceTotal,
			OldValue:  database.Text(current.StringFixed(database.MoneyScale)),
			NewValue:  database.Text(total.StringFixed(database.MoneyScale)),
			ActorID:   database.UUID(req.AdminID),
			ActorRole: database.ActorRoleADMIN,
		}); err != nil {
			return nil, fmt.Errorf("create order update: %w", err)
		}
	}

	res, err := recomputeOrderPaymentStatus(ctx, store, order.ID, actor{ID: req.AdminID, Role: database.ActorRoleADMIN}, "invoice total set")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

// CancelInvoice cancels a pending gateway invoice and marks its record FAILED.
func (s *PaymentService) CancelInvoice(ctx context.Context, paymentID, adminID uuid.UUID) (database.PaymentRecord, error) {
	rec, err := s.pendingInvoice(ctx, paymentID)
	if err != nil {
		return database.PaymentRecord{}, err
	}
	if err := s.gateway.CancelInvoice(ctx, rec.TapReference.String); err != nil {
		return database.PaymentRecord{}, fmt.Errorf("%w: cancel invoice: %w", ErrGateway, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.PaymentRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	rec, err = lockPayment(ctx, store, paymentID)
	if err != nil {
		return database.PaymentRecord{}, err
	}
	if rec.PaymentStatus != database.PaymentStatusPENDING {
		return database.PaymentRecord{}, ErrPaymentNotPending
	}
	by := actor{ID: adminID, Role: database.ActorRoleADMIN}
	ch, err := applyStatusChange(ctx, store, rec, statusChange{
		Status: database.PaymentStatusFAILED,
		Entry: audit.Entry{
			Kind:      audit.KindInvoiceCancelled,
			ActorID:   adminID.String(),
			Reference: rec.TapReference.String,
		},
		By:     by,
		Reason: "invoice cancelled",
	})
	if err != nil {
		return database.PaymentRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.PaymentRecord{}, fmt.Errorf("commit tx: %w", err)
	}

	s.afterCommit(ctx, ch)
	return ch.Payment, nil
}

// ResendInvoice asks the gateway to notify the customer again.
func (s *PaymentService) ResendInvoice(ctx context.Context, paymentID, adminID uuid.UUID) (database.PaymentRecord, error) {
	rec, err := s.pendingInvoice(ctx, paymentID)
	if err != nil {
		return database.PaymentRecord{}, err
	}
	if err := s.gateway.ResendInvoice(ctx, rec.TapReference.String); err != nil {
		return database.PaymentRecord{}, fmt.Errorf("%w: resend invoice: %w", ErrGateway, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.PaymentRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	rec, err = lockPayment(ctx, store, paymentID)
	if err != nil {
		return database.PaymentRecord{}, err
	}
	metadata, err := audit.Append(rec.Metadata, audit.Entry{
		Kind:      audit.KindInvoiceResent,
		ActorID:   adminID.String(),
		Reference: rec.TapReference.String,
	})
	if err != nil {
		return database.PaymentRecord{}, fmt.Errorf("append audit entry: %w", err)
	}
	rec, err = store.UpdatePaymentRecordMetadata(ctx, database.UpdatePaymentRecordMetadataParams{ID: rec.ID, Metadata: metadata})
	if err != nil {
		return database.PaymentRecord{}, fmt.Errorf("update payment metadata: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return database.PaymentRecord{}, fmt.Errorf("commit tx: %w", err)
	}
	return rec, nil
}

func (s *PaymentService) pendingInvoice(ctx context.Context, paymentID uuid.UUID) (database.PaymentRecord, error) {
	if s.gateway == nil {
		return database.PaymentRecord{}, ErrGatewayUnavailable
	}
	rec, err := s.getPayment(ctx, s.newStore(s.db), paymentID)
	if err != nil {
		return database.PaymentRecord{}, err
	}
	if rec.PaymentMethod != database.PaymentMethodTAPINVOICE {
		return database.PaymentRecord{}, ErrNotInvoice
	}
	if rec.PaymentStatus != database.PaymentStatusPENDING {
		return database.PaymentRecord{}, ErrPaymentNotPending
	}
	if !rec.TapReference.Valid || rec.TapReference.String == "" {
		return database.PaymentRecord{}, ErrNoGatewayReference
	}
	return rec, nil
}

// ManualPaymentRequest records money received outside the gateway.
type ManualPaymentRequest struct {
	OrderID   uuid.UUID
	AdminID   uuid.UUID
	Method    database.PaymentMethod
	Amount    decimal.Decimal
	Reference string
	Notes     string
}

// PaymentResult is a payment write and the order it affected.
type PaymentResult struct {
	Payment database.PaymentRecord `json:"payment"`
	Order   *database.Order        `json:"order,omitempty"`
	Summary *PaymentSummary        `json:"summary,omitempty"`
	Wallet  *database.Wallet       `json:"wallet,omitempty"`
}

func newPaymentResult(ch *paymentChange) *PaymentResult {
	out := &PaymentResult{Payment: ch.Payment, Wallet: ch.Wallet}
	if ch.Order != nil {
		out.Order = &ch.Order.Order
		out.Summary = &ch.Order.Summary
	}
	return out
}

// RecordManualPayment stores a PAID CASH or BANK_TRANSFER payment.
func (s *PaymentService) RecordManualPayment(ctx context.Context, req ManualPaymentRequest) (*PaymentResult, error) {
	if req.Method != database.PaymentMethodCASH && req.Method != database.PaymentMethodBANKTRANSFER {
		return nil, ErrInvalidPaymentMethod
	}
	if !ValidAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}
	metadata, err := audit.New(audit.Entry{
		Kind:      audit.KindManualPayment,
		ActorID:   req.AdminID.String(),
		To:        string(database.PaymentStatusPAID),
		Amount:    req.Amount.StringFixed(database.MoneyScale),
		Reference: req.Reference,
		Reason:    req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
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
	if order.Status == database.OrderStatusCANCELLED {
		return nil, ErrOrderCancelled
	}

	payment, err := store.CreatePaymentRecord(ctx, database.CreatePaymentRecordParams{
		OrderID:       database.UUID(order.ID),
		CustomerID:    order.CustomerID,
		Amount:        database.Numeric(req.Amount),
		PaymentMethod: req.Method,
		PaymentStatus: database.PaymentStatusPAID,
		Metadata:      metadata,
		PaidAt:        timestamptz(time.Now().UTC()),
		CreatedBy:     database.UUID(req.AdminID),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment record: %w", err)
	}
	rc, err := recomputeOrderPaymentStatus(ctx, store, order.ID, actor{ID: req.AdminID, Role: database.ActorRoleADMIN}, "manual "+string(req.Method)+" payment")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	ch := &paymentChange{Payment: payment, Order: rc}
	s.afterCommit(ctx, ch)
	return newPaymentResult(ch), nil
}

// PayWithWalletRequest pays part or all of an order from the customer's wallet.
type PayWithWalletRequest struct {
	OrderID    uuid.UUID
	CustomerID uuid.UUID
	Amount     decimal.Decimal
}

// PayWithWallet debits the wallet and records a PAID WALLET payment in one
// transaction. The amount may not exceed what is outstanding.
func (s *PaymentService) PayWithWallet(ctx context.Context, req PayWithWalletRequest) (*PaymentResult, error) {
	if !ValidAmount(req.Amount) {
		return nil, ErrInvalidAmount
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
	if order.CustomerID != req.CustomerID {
		return nil, ErrOrderNotFound
	}
	if order.Status == database.OrderStatusCANCELLED {
		return nil, ErrOrderCancelled
	}

	records, err := store.ListPaymentRecordsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	summary := SummarizePayments(database.Decimal(order.InvoiceTotal), records)
	if req.Amount.GreaterThan(summary.OutstandingAmount) {
		return nil, fmt.Errorf("%w: outstanding %s", ErrAmountExceedsOutstanding, summary.OutstandingAmount.StringFixed(database.MoneyScale))
	}

	wallet, err := store.GetWalletByCustomer(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	w, txn, err := postLedgerEntry(ctx, store, ledgerEntry{
		WalletID:    wallet.ID,
		Type:        database.WalletTransactionTypePAYMENT,
		Delta:       req.Amount.Neg(),
		Description: "Payment for order " + order.OrderNumber,
		OrderID:     order.ID,
	})
	if err != nil {
		return nil, err
	}

	metadata, err := audit.New(audit.Entry{
		Kind:          audit.KindWalletPayment,
		ActorID:       req.CustomerID.String(),
		To:            string(database.PaymentStatusPAID),
		Amount:        req.Amount.StringFixed(database.MoneyScale),
		TransactionID: txn.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	payment, err := store.CreatePaymentRecord(ctx, database.CreatePaymentRecordParams{
		OrderID:             database.UUID(order.ID),
		CustomerID:          req.CustomerID,
		WalletTransactionID: database.UUID(txn.ID),
		Amount:              database.Numeric(req.Amount),
		PaymentMethod:       database.PaymentMethodWALLET,
		PaymentStatus:       database.PaymentStatusPAID,
		Metadata:            metadata,
		PaidAt:              timestamptz(time.Now().UTC()),
		CreatedBy:           database.UUID(req.CustomerID),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment record: %w", err)
	}
	rc, err := recomputeOrderPaymentStatus(ctx, store, order.ID, actor{ID: req.CustomerID, Role: database.ActorRoleCUSTOMER}, "wallet payment")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	ch := &paymentChange{Payment: payment, Order: rc, Wallet: &w}
	s.afterCommit(ctx, ch)
	return newPaymentResult(ch), nil
}

// RefundRequest refunds part or all of a paid payment.
type RefundRequest struct {
	PaymentID uuid.UUID
	AdminID   uuid.UUID
	Amount    decimal.Decimal
	Reason    string
}

// RefundPayment records a refund. WALLET payments are credited back to the
// wallet; other methods are refunded outside the system and only recorded.
func (s *PaymentService) RefundPayment(ctx context.Context, req RefundRequest) (*PaymentResult, error) {
	if !ValidAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}
	if req.Reason == "" {
		return nil, ErrReasonRequired
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	rec, err := lockPayment(ctx, store, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if rec.PaymentStatus != database.PaymentStatusPAID && rec.PaymentStatus != database.PaymentStatusPARTIALREFUND {
		return nil, fmt.Errorf("%w (status %s)", ErrRefundNotAllowed, rec.PaymentStatus)
	}
	paid := database.Decimal(rec.Amount)
	refunded := database.Decimal(rec.RefundAmount).Add(req.Amount)
	if refunded.GreaterThan(paid) {
		return nil, fmt.Errorf("%w: paid %s, refunded %s", ErrRefundExceedsPayment,
			paid.StringFixed(database.MoneyScale), database.Decimal(rec.RefundAmount).StringFixed(database.MoneyScale))
	}

	orderID, hasOrder := uuid.UUID(rec.OrderID.Bytes), rec.OrderID.Valid
	if hasOrder {
		if _, err := store.GetOrderForUpdate(ctx, orderID); err != nil {
			return nil, fmt.Errorf("lock order: %w", err)
		}
	}

	status := database.PaymentStatusPARTIALREFUND
	if refunded.Equal(paid) {
		status = database.PaymentStatusREFUNDED
	}
	metadata, err := audit.Append(rec.Metadata, audit.Entry{
		Kind:    audit.KindRefund,
		ActorID: req.AdminID.String(),
		From:    string(rec.PaymentStatus),
		To:      string(status),
		Amount:  req.Amount.StringFixed(database.MoneyScale),
		Reason:  req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}

	ch := &paymentChange{PreviousStatus: rec.PaymentStatus}
	ch.Payment, err = store.UpdatePaymentRecordRefund(ctx, database.UpdatePaymentRecordRefundParams{
		ID:            rec.ID,
		PaymentStatus: status,
		RefundAmount:  database.Numeric(refunded),
		Metadata:      metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("update payment refund: %w", err)
	}

	if rec.PaymentMethod == database.PaymentMethodWALLET {
		walletID, err := s.refundWallet(ctx, store, rec)
		if err != nil {
			return nil, err
		}
		w, _, err := postLedgerEntry(ctx, store, ledgerEntry{
			WalletID:    walletID,
			Type:        database.WalletTransactionTypeREFUND,
			Delta:       req.Amount,
			Description: "Refund: " + req.Reason,
			OrderID:     orderID,
		})
		if err != nil {
			return nil, err
		}
		ch.Wallet = &w
	}

	if hasOrder {
		ch.Order, err = recomputeOrderPaymentStatus(ctx, store, orderID, actor{ID: req.AdminID, Role: database.ActorRoleADMIN}, "refund: "+req.Reason)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.afterCommit(ctx, ch)
	return newPaymentResult(ch), nil
}

func (s *PaymentService) refundWallet(ctx context.Context, store PaymentStore, rec database.PaymentRecord) (uuid.UUID, error) {
	if rec.WalletTransactionID.Valid {
		txn, err := store.GetWalletTransaction(ctx, rec.WalletTransactionID.Bytes)
		if err == nil {
			return txn.WalletID, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("get wallet transaction: %w", err)
		}
	}
	w, err := store.GetWalletByCustomer(ctx, rec.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrWalletNotFound
		}
		return uuid.Nil, fmt.Errorf("get wallet: %w", err)
	}
	return w.ID, nil
}

// OverrideRequest forces a payment's status.
type OverrideRequest struct {
	PaymentID uuid.UUID
	AdminID   uuid.UUID
	Status    database.PaymentStatus
	Reason    string
}

// OverridePaymentStatus moves a PENDING or FAILED payment to PAID or FAILED
// with the same cascade as a gateway sync.
func (s *PaymentService) OverridePaymentStatus(ctx context.Context, req OverrideRequest) (*PaymentResult, error) {
	if req.Status != database.PaymentStatusPAID && req.Status != database.PaymentStatusFAILED {
		return nil, fmt.Errorf("%w: target must be PAID or FAILED", ErrInvalidOverride)
	}
	if req.Reason == "" {
		return nil, ErrReasonRequired
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	rec, err := lockPayment(ctx, store, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if rec.PaymentStatus != database.PaymentStatusPENDING && rec.PaymentStatus != database.PaymentStatusFAILED {
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidOverride, rec.PaymentStatus)
	}
	if rec.PaymentStatus == req.Status {
		return nil, fmt.Errorf("%w: payment is already %s", ErrInvalidOverride, rec.PaymentStatus)
	}

	ch, err := applyStatusChange(ctx, store, rec, statusChange{
		Status: req.Status,
		Entry: audit.Entry{
			Kind:    audit.KindStatusOverride,
			ActorID: req.AdminID.String(),
			Reason:  req.Reason,
		},
		By:     actor{ID: req.AdminID, Role: database.ActorRoleADMIN},
		Reason: "override: " + req.Reason,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.events.logger.Warn("payment status overridden",
		"payment_id", rec.ID,
		"admin_id", req.AdminID,
		"from", rec.PaymentStatus,
		"to", req.Status,
		"reason", req.Reason,
	)
	s.afterCommit(ctx, ch)
	return newPaymentResult(ch), nil
}
