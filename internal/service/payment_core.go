package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/laundrix/api/internal/audit"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/enum"
	"github.com/laundrix/api/internal/notify"
)

// Payment errors shared by the payment and reconciliation services.
var (
	ErrPaymentNotFound    = errors.New("payment record not found")
	ErrNotGatewayPayment  = errors.New("payment method is not reconciled with the gateway")
	ErrNoGatewayReference = errors.New("payment has no gateway reference")
)

// PaymentStore defines the DB methods the payment and reconciliation
// services need. Satisfied by *database.Queries.
type PaymentStore interface {
	ledgerStore
	GetWalletByCustomer(ctx context.Context, customerID uuid.UUID) (database.Wallet, error)

	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderPaymentStatus(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error)
	UpdateOrderInvoiceTotal(ctx context.Context, arg database.UpdateOrderInvoiceTotalParams) (database.Order, error)
	CreateOrderUpdate(ctx context.Context, arg database.CreateOrderUpdateParams) (database.OrderUpdate, error)

	CreatePaymentRecord(ctx context.Context, arg database.CreatePaymentRecordParams) (database.PaymentRecord, error)
	GetPaymentRecord(ctx context.Context, id uuid.UUID) (database.PaymentRecord, error)
	GetPaymentRecordForUpdate(ctx context.Context, id uuid.UUID) (database.PaymentRecord, error)
	GetPaymentRecordByTapReference(ctx context.Context, tapReference string) (database.PaymentRecord, error)
	ListPaymentRecordsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.PaymentRecord, error)
	ListPaymentRecordsForSync(ctx context.Context, arg database.ListPaymentRecordsForSyncParams) ([]database.PaymentRecord, error)
	UpdatePaymentRecordStatus(ctx context.Context, arg database.UpdatePaymentRecordStatusParams) (database.PaymentRecord, error)
	UpdatePaymentRecordRefund(ctx context.Context, arg database.UpdatePaymentRecordRefundParams) (database.PaymentRecord, error)
	UpdatePaymentRecordMetadata(ctx context.Context, arg database.UpdatePaymentRecordMetadataParams) (database.PaymentRecord, error)
	ListPaymentRecordsMissingGatewayIDs(ctx context.Context, arg database.ListPaymentRecordsMissingGatewayIDsParams) ([]database.PaymentRecord, error)
	FillPaymentGatewayIDs(ctx context.Context, arg database.FillPaymentGatewayIDsParams) (int64, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentSettledHook is told when an order's payment status became PAID.
// Satisfied by *TrackingService.
type PaymentSettledHook interface {
	OnPaymentSettled(ctx context.Context, orderID uuid.UUID) error
}

// paymentCore is shared by PaymentService and ReconcileService.
type paymentCore struct {
	db       DB
	newStore NewPaymentStore
	gateway  Gateway
	hook     PaymentSettledHook
	events   events
}

func newPaymentCore(db DB, newStore NewPaymentStore, gw Gateway, hook PaymentSettledHook, notifier notify.Notifier, logger *slog.Logger) paymentCore {
	return paymentCore{
		db:       db,
		newStore: newStore,
		gateway:  gw,
		hook:     hook,
		events:   newEvents(notifier, logger),
	}
}

// actor identifies who caused a change.
type actor struct {
	ID   uuid.UUID
	Role database.ActorRole
}

var systemActor = actor{Role: database.ActorRoleSYSTEM}

// orderRecompute is the outcome of re-deriving an order's payment status.
type orderRecompute struct {
	Order    database.Order
	Previous database.OrderPaymentStatus
	Summary  PaymentSummary
}

func (r *orderRecompute) changed() bool {
	return r != nil && r.Previous != r.Order.PaymentStatus
}

func (r *orderRecompute) becamePaid() bool {
	return r.changed() && r.Order.PaymentStatus == database.OrderPaymentStatusPAID
}

// recomputeOrderPaymentStatus locks the order, summarizes its payment
// records and stores the derived status with an audit row when it moved.
func recomputeOrderPaymentStatus(ctx context.Context, store PaymentStore, orderID uuid.UUID, by actor, reason string) (*orderRecompute, error) {
	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	records, err := store.ListPaymentRecordsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}

	res := &orderRecompute{
		Order:    order,
		Previous: order.PaymentStatus,
		Summary:  SummarizePayments(database.Decimal(order.InvoiceTotal), records),
	}
	if res.Summary.Status == order.PaymentStatus {
		return res, nil
	}

	res.Order, err = store.UpdateOrderPaymentStatus(ctx, database.UpdateOrderPaymentStatusParams{
		ID:            orderID,
		PaymentStatus: res.Summary.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("update order payment status: %w", err)
	}
	if _, err := store.CreateOrderUpdate(ctx, database.CreateOrderUpdateParams{
		OrderID:   orderID,
		Field:     enum.FieldPaymentStatus,
		OldValue:  database.Text(string(res.Previous)),
		NewValue:  database.Text(string(res.Summary.Status)),
		ActorID:   database.UUID(by.ID),
		ActorRole: by.Role,
		Reason:    database.Text(reason),
	}); err != nil {
		return nil, fmt.Errorf("create order update: %w", err)
	}
	return res, nil
}

// statusChange moves a locked payment record to a new status.
type statusChange struct {
	Status        database.PaymentStatus
	TransactionID string
	Entry         audit.Entry
	By            actor
	Reason        string
}

// paymentChange is the outcome of a payment write.
type paymentChange struct {
	Payment        database.PaymentRecord
	PreviousStatus database.PaymentStatus
	Wallet         *database.Wallet
	Order          *orderRecompute
}

// applyStatusChange writes the new status and cascades it to the linked
// wallet transaction and the order. rec must be locked by the caller.
// Locks are taken in record, order, wallet order.
func applyStatusChange(ctx context.Context, store PaymentStore, rec database.PaymentRecord, ch statusChange) (*paymentChange, error) {
	out := &paymentChange{PreviousStatus: rec.PaymentStatus}

	orderID, hasOrder := uuid.UUID(rec.OrderID.Bytes), rec.OrderID.Valid
	if hasOrder {
		if _, err := store.GetOrderForUpdate(ctx, orderID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrOrderNotFound
			}
			return nil, fmt.Errorf("lock order: %w", err)
		}
	}

	ch.Entry.From = string(rec.PaymentStatus)
	ch.Entry.To = string(ch.Status)
	metadata, err := audit.Append(rec.Metadata, ch.Entry)
	if err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}

	params := database.UpdatePaymentRecordStatusParams{
		ID:               rec.ID,
		PaymentStatus:    ch.Status,
		TapTransactionID: database.Text(ch.TransactionID),
		Metadata:         metadata,
	}
	if ch.Status == database.PaymentStatusPAID {
		params.PaidAt = timestamptz(time.Now().UTC())
	}
	out.Payment, err = store.UpdatePaymentRecordStatus(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}

	if rec.WalletTransactionID.Valid {
		txnID := uuid.UUID(rec.WalletTransactionID.Bytes)
		switch ch.Status {
		case database.PaymentStatusPAID:
			w, txn, applied, err := completePendingTransaction(ctx, store, txnID, true)
			if err != nil {
				return nil, fmt.Errorf("complete wallet transaction: %w", err)
			}
			if applied {
				out.Wallet = &w
			} else if txn.Status != database.WalletTransactionStatusCOMPLETED {
				return nil, fmt.Errorf("%w: transaction %s is %s", ErrLedgerNotSettled, txnID, txn.Status)
			}
		case database.PaymentStatusFAILED:
			if _, _, err := failPendingTransaction(ctx, store, txnID); err != nil {
				return nil, err
			}
		}
	}

	if hasOrder {
		out.Order, err = recomputeOrderPaymentStatus(ctx, store, orderID, ch.By, ch.Reason)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// afterCommit runs the post-commit side effects of a payment write:
// notifications and the settled hook. Failures are logged only.
func (c *paymentCore) afterCommit(ctx context.Context, ch *paymentChange) {
	p := ch.Payment
	ev := notify.Event{
		Type:       enum.EventPaymentStatusChanged,
		CustomerID: p.CustomerID,
		PaymentID:  p.ID,
		Data: map[string]any{
			"from":   ch.PreviousStatus,
			"to":     p.PaymentStatus,
			"method": p.PaymentMethod,
			"amount": database.Decimal(p.Amount).StringFixed(database.MoneyScale),
		},
	}
	if p.OrderID.Valid {
		ev.OrderID = p.OrderID.Bytes
	}
	if ch.Order != nil {
		ev.Data["order_payment_status"] = ch.Order.Order.PaymentStatus
	}
	c.events.emit(ctx, ev)

	if ch.Wallet != nil {
		c.events.emit(ctx, notify.Event{
			Type:       enum.EventWalletUpdated,
			CustomerID: ch.Wallet.CustomerID,
			PaymentID:  p.ID,
			Data: map[string]any{
				"wallet_id": ch.Wallet.ID,
				"balance":   database.Decimal(ch.Wallet.Balance).StringFixed(database.MoneyScale),
			},
		})
	}

	c.settled(ctx, ch.Order)
}

func (c *paymentCore) settled(ctx context.Context, r *orderRecompute) {
	if c.hook == nil || !r.becamePaid() {
		return
	}
	if err := c.hook.OnPaymentSettled(ctx, r.Order.ID); err != nil {
		c.events.logger.Error("auto-advance after payment failed",
			"order_id", r.Order.ID,
			"error", err,
		)
	}
}

func (c *paymentCore) getPayment(ctx context.Context, store PaymentStore, id uuid.UUID) (database.PaymentRecord, error) {
	rec, err := store.GetPaymentRecord(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.PaymentRecord{}, ErrPaymentNotFound
		}
		return database.PaymentRecord{}, fmt.Errorf("get payment record: %w", err)
	}
	return rec, nil
}

func lockPayment(ctx context.Context, store PaymentStore, id uuid.UUID) (database.PaymentRecord, error) {
	rec, err := store.GetPaymentRecordForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.PaymentRecord{}, ErrPaymentNotFound
		}
		return database.PaymentRecord{}, fmt.Errorf("lock payment record: %w", err)
	}
	return rec, nil
}

func isGatewayMethod(m database.PaymentMethod) bool {
	return m == database.PaymentMethodTAPCHARGE || m == database.PaymentMethodTAPINVOICE
}
