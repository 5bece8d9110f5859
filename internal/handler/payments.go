package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/gateway"
	"github.com/laundrix/api/internal/service"
	"github.com/shopspring/decimal"
)

// PaymentServicer defines the payment operations used by the handlers.
// Satisfied by *service.PaymentService.
type PaymentServicer interface {
	GetOrderPayments(ctx context.Context, orderID uuid.UUID) (*service.OrderPayments, error)
	GetPayment(ctx context.Context, id uuid.UUID) (database.PaymentRecord, error)
	RecalculateOrderPaymentStatus(ctx context.Context, orderID, actorID uuid.UUID) (*service.OrderPayments, error)
	GenerateInvoice(ctx context.Context, req service.GenerateInvoiceRequest) (*service.InvoiceResult, error)
	CancelInvoice(ctx context.Context, paymentID, adminID uuid.UUID) (database.PaymentRecord, error)
	ResendInvoice(ctx context.Context, paymentID, adminID uuid.UUID) (database.PaymentRecord, error)
	RecordManualPayment(ctx context.Context, req service.ManualPaymentRequest) (*service.PaymentResult, error)
	PayWithWallet(ctx context.Context, req service.PayWithWalletRequest) (*service.PaymentResult, error)
	RefundPayment(ctx context.Context, req service.RefundRequest) (*service.PaymentResult, error)
	OverridePaymentStatus(ctx context.Context, req service.OverrideRequest) (*service.PaymentResult, error)
}

// Reconciler defines the gateway reconciliation operations.
// Satisfied by *service.ReconcileService.
type Reconciler interface {
	SyncSinglePaymentStatus(ctx context.Context, paymentID uuid.UUID) (*service.SyncResult, error)
	SyncPaymentStatuses(ctx context.Context, f service.SyncFilter) (*service.SyncReport, error)
	CleanupPaymentData(ctx context.Context, opts service.CleanupOptions) (*service.CleanupReport, error)
	HandleGatewayWebhook(ctx context.Context, ev *gateway.WebhookEvent) (*service.SyncResult, error)
}

// PaymentHandler handles payment, invoice and reconciliation endpoints.
type PaymentHandler struct {
	svc           PaymentServicer
	reconciler    Reconciler
	webhookSecret string
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer, reconciler Reconciler, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{svc: svc, reconciler: reconciler, webhookSecret: webhookSecret}
}

// RegisterOrderRoutes registers the order-scoped payment endpoints on the
// router that serves /orders.
func (h *PaymentHandler) RegisterOrderRoutes(r chi.Router) {
	r.Get("/{id}/payments", h.ListForOrder)
	r.Post("/{id}/payments/wallet", h.PayWithWallet)
}

// RegisterOrderAdminRoutes registers the order-scoped admin endpoints on the
// router that serves /orders. Expected behind an ADMIN role check.
func (h *PaymentHandler) RegisterOrderAdminRoutes(r chi.Router) {
	r.Post("/{id}/invoice", h.GenerateInvoice)
	r.Post("/{id}/payments/manual", h.RecordManual)
	r.Post("/{id}/payments/recalculate", h.Recalculate)
}

// RegisterAdminRoutes registers payment administration endpoints.
// Expected to be mounted at /payments behind an ADMIN role check.
func (h *PaymentHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/sync", h.SyncBatch)
	r.Post("/cleanup", h.Cleanup)
	r.Get("/{pid}", h.Get)
	r.Post("/{pid}/cancel", h.CancelInvoice)
	r.Post("/{pid}/resend", h.ResendInvoice)
	r.Post("/{pid}/refund", h.Refund)
	r.Post("/{pid}/override", h.Override)
	r.Post("/{pid}/sync", h.SyncOne)
}

// RegisterWebhookRoutes registers the unauthenticated gateway callback.
func (h *PaymentHandler) RegisterWebhookRoutes(r chi.Router) {
	r.Post("/webhooks/tap", h.TapWebhook)
}

// --- Request / Response types ---

type generateInvoiceRequest struct {
	InvoiceTotal   string `json:"invoice_total"`
	SendToCustomer bool   `json:"send_to_customer"`
}

type manualPaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
	Amount        string `json:"amount"`
	Reference     string `json:"reference"`
	Notes         string `json:"notes"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type refundRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type overrideRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type syncRequest struct {
	Methods []string `json:"methods"`
	Status  string   `json:"status"`
	Limit   int32    `json:"limit"`
	Offset  int32    `json:"offset"`
}

type cleanupRequest struct {
	BatchSize  int32 `json:"batch_size"`
	DryRun     *bool `json:"dry_run"`
	MaxRecords int   `json:"max_records"`
}

// --- Order-scoped handlers ---

// ListForOrder handles GET /orders/{id}/payments.
func (h *PaymentHandler) ListForOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	res, err := h.svc.GetOrderPayments(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err, "get order payments")
		return
	}
	if isCustomer(claims) && res.Order.CustomerID != claims.UserID {
		writeMessage(w, http.StatusNotFound, service.ErrOrderNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PayWithWallet handles POST /orders/{id}/payments/wallet. Only the owning
// customer may pay from their wallet.
func (h *PaymentHandler) PayWithWallet(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	if !isCustomer(claims) {
		writeMessage(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	orderID, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := amountField(w, req.Amount)
	if !ok {
		return
	}

	res, err := h.svc.PayWithWallet(r.Context(), service.PayWithWalletRequest{
		OrderID:    orderID,
		CustomerID: claims.UserID,
		Amount:     amount,
	})
	if err != nil {
		writeServiceError(w, err, "pay with wallet")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GenerateInvoice handles POST /orders/{id}/invoice.
func (h *PaymentHandler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	var req generateInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	total, ok := amountField(w, req.InvoiceTotal)
	if !ok {
		return
	}

	res, err := h.svc.GenerateInvoice(r.Context(), service.GenerateInvoiceRequest{
		OrderID:        orderID,
		AdminID:        claims.UserID,
		InvoiceTotal:   total,
		SendToCustomer: req.SendToCustomer,
	})
	if err != nil {
		writeServiceError(w, err, "generate invoice")
		return
	}
	status := http.StatusOK
	if res.Payment != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// RecordManual handles POST /orders/{id}/payments/manual.
func (h *PaymentHandler) RecordManual(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	var req manualPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaymentMethod == "" {
		writeMessage(w, http.StatusBadRequest, "payment_method is required")
		return
	}
	amount, ok := amountField(w, req.Amount)
	if !ok {
		return
	}

	res, err := h.svc.RecordManualPayment(r.Context(), service.ManualPaymentRequest{
		OrderID:   orderID,
		AdminID:   claims.UserID,
		Method:    database.PaymentMethod(req.PaymentMethod),
		Amount:    amount,
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		writeServiceError(w, err, "record manual payment")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Recalculate handles POST /orders/{id}/payments/recalculate.
func (h *PaymentHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	res, err := h.svc.RecalculateOrderPaymentStatus(r.Context(), orderID, claims.UserID)
	if err != nil {
		writeServiceError(w, err, "recalculate payment status")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Payment-scoped admin handlers ---

// Get handles GET /payments/{pid}.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := uuidParam(w, r, "pid", "payment ID")
	if !ok {
		return
	}
	rec, err := h.svc.GetPayment(r.Context(), paymentID)
	if err != nil {
		writeServiceError(w, err, "get payment")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CancelInvoice handles POST /payments/{pid}/cancel.
func (h *PaymentHandler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, "cancel invoice", h.svc.CancelInvoice)
}

// ResendInvoice handles POST /payments/{pid}/resend.
func (h *PaymentHandler) ResendInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, "resend invoice", h.svc.ResendInvoice)
}

func (h *PaymentHandler) invoiceAction(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, uuid.UUID, uuid.UUID) (database.PaymentRecord, error)) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	paymentID, ok := uuidParam(w, r, "pid", "payment ID")
	if !ok {
		return
	}
	rec, err := fn(r.Context(), paymentID, claims.UserID)
	if err != nil {
		writeServiceError(w, err, op)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Refund handles POST /payments/{pid}/refund.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	paymentID, ok := uuidParam(w, r, "pid", "payment ID")
	if !ok {
		return
	}

	var req refundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := amountField(w, req.Amount)
	if !ok {
		return
	}

	res, err := h.svc.RefundPayment(r.Context(), service.RefundRequest{
		PaymentID: paymentID,
		AdminID:   claims.UserID,
		Amount:    amount,
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(w, err, "refund payment")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Override handles POST /payments/{pid}/override.
func (h *PaymentHandler) Override(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	paymentID, ok := uuidParam(w, r, "pid", "payment ID")
	if !ok {
		return
	}

	var req overrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.OverridePaymentStatus(r.Context(), service.OverrideRequest{
		PaymentID: paymentID,
		AdminID:   claims.UserID,
		Status:    database.PaymentStatus(req.Status),
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(w, err, "override payment status")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SyncOne handles POST /payments/{pid}/sync.
func (h *PaymentHandler) SyncOne(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := uuidParam(w, r, "pid", "payment ID")
	if !ok {
		return
	}
	res, err := h.reconciler.SyncSinglePaymentStatus(r.Context(), paymentID)
	if err != nil {
		writeServiceError(w, err, "sync payment")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SyncBatch handles POST /payments/sync. An empty body syncs the default
// page of pending gateway payments.
func (h *PaymentHandler) SyncBatch(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	f := service.SyncFilter{
		Status: database.PaymentStatus(req.Status),
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	for _, m := range req.Methods {
		f.Methods = append(f.Methods, database.PaymentMethod(m))
	}

	report, err := h.reconciler.SyncPaymentStatuses(r.Context(), f)
	if err != nil {
		writeServiceError(w, err, "sync payments")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Cleanup handles POST /payments/cleanup. Runs as a dry run unless dry_run
// is explicitly false.
func (h *PaymentHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	opts := service.CleanupOptions{
		BatchSize:  req.BatchSize,
		DryRun:     req.DryRun == nil || *req.DryRun,
		MaxRecords: req.MaxRecords,
	}
	report, err := h.reconciler.CleanupPaymentData(r.Context(), opts)
	if err != nil {
		writeServiceError(w, err, "cleanup payment data")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Webhook ---

const maxWebhookBody = 1 << 20

// TapWebhook handles POST /webhooks/tap. The body is authenticated with the
// hashstring header; the status itself is re-read from the gateway.
func (h *PaymentHandler) TapWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		writeMessage(w, http.StatusServiceUnavailable, "webhooks not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := gateway.ParseWebhook(body, r.Header.Get("hashstring"), h.webhookSecret)
	if err != nil {
		if errors.Is(err, gateway.ErrBadSignature) {
			slog.Warn("webhook signature rejected", "remote", r.RemoteAddr)
			writeMessage(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		writeMessage(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	res, err := h.reconciler.HandleGatewayWebhook(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err, "handle webhook")
		return
	}
	if res == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Helpers ---

func amountField(w http.ResponseWriter, s string) (decimal.Decimal, bool) {
	if s == "" {
		writeMessage(w, http.StatusBadRequest, "amount is required")
		return decimal.Zero, false
	}
	d, err := parseAmount(s)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "amount must be positive with at most 3 decimal places")
		return decimal.Zero, false
	}
	return d, true
}
