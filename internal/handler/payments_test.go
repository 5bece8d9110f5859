package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/laundrix/api/internal/auth"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/gateway"
	"github.com/laundrix/api/internal/handler"
	"github.com/laundrix/api/internal/middleware"
	"github.com/laundrix/api/internal/service"
	"github.com/shopspring/decimal"
)

// --- Mock PaymentServicer ---

type mockPaymentService struct {
	orderPaymentsFn func(ctx context.Context, orderID uuid.UUID) (*service.OrderPayments, error)
	getFn           func(ctx context.Context, id uuid.UUID) (database.PaymentRecord, error)
	recalcFn        func(ctx context.Context, orderID, actorID uuid.UUID) (*service.OrderPayments, error)
	invoiceFn       func(ctx context.Context, req service.GenerateInvoiceRequest) (*service.InvoiceResult, error)
	cancelFn        func(ctx context.Context, paymentID, adminID uuid.UUID) (database.PaymentRecord, error)
	resendFn        func(ctx context.Context, paymentID, adminID uuid.UUID) (database.PaymentRecord, error)
	manualFn        func(ctx context.Context, req service.ManualPaymentRequest) (*service.PaymentResult, error)
	walletFn        func(ctx context.Context, req service.PayWithWalletRequest) (*service.PaymentResult, error)
	refundFn        func(ctx context.Context, req service.RefundRequest) (*service.PaymentResult, error)
	overrideFn      func(ctx context.Context, req service.OverrideRequest) (*service.PaymentResult, error)
}

var errUnexpectedCall = errors.New("unexpected call")

func (m *mockPaymentService) GetOrderPayments(ctx context.Context, orderID uuid.UUID) (*service.OrderPayments, error) {
	if m.orderPaymentsFn != nil {
		return m.orderPaymentsFn(ctx, orderID)
	}
	return nil, service.ErrOrderNotFound
}

func (m *mockPaymentService) GetPayment(ctx context.Context, id uuid.UUID) (database.PaymentRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return database.PaymentRecord{}, service.ErrPaymentNotFound
}

func (m *mockPaymentService) RecalculateOrderPaymentStatus(ctx context.Context, orderID, actorID uuid.UUID) (*service.OrderPayments, error) {
	if m.recalcFn != nil {
		return m.recalcFn(ctx, orderID, actorID)
	}
	return nil, errUnexpectedCall
}

func (m *mockPaymentService) GenerateInvoice(ctx context.Context, req service.GenerateInvoiceRequest) (*service.InvoiceResult, error) {
	if m.invoiceFn != nil {
		return m.invoiceFn(ctx, req)
	}
	return nil, errUnexpectedCall
}

func (m *mockPaymentService) CancelInvoice(ctx context.Context, paymentID, adminID uuid.UUID) (database.PaymentRecord, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, paymentID, adminID)
	}
	return database.PaymentRecord{}, errUnexpectedCall
}

func (m *mockPaymentService) ResendInvoice(ctx context.Context, paymentID, adminID uuid.UUID) (database.PaymentRecord, error) {
	if m.resendFn != nil {
		return m.resendFn(ctx, paymentID, adminID)
	}
	return database.PaymentRecord{}, errUnexpectedCall
}

func (m *mockPaymentService) RecordManualPayment(ctx context.Context, req service.ManualPaymentRequest) (*service.PaymentResult, error) {
	if m.manualFn != nil {
		return m.manualFn(ctx, req)
	}
	return nil, errUnexpectedCall
}

func (m *mockPaymentService) PayWithWallet(ctx context.Context, req service.PayWithWalletRequest) (*service.PaymentResult, error) {
	if m.walletFn != nil {
		return m.walletFn(ctx, req)
	}
	return nil, errUnexpectedCall
}

func (m *mockPaymentService) RefundPayment(ctx context.Context, req service.RefundRequest) (*service.PaymentResult, error) {
	if m.refundFn != nil {
		return m.refundFn(ctx, req)
	}
	return nil, errUnexpectedCall
}

func (m *mockPaymentService) OverridePaymentStatus(ctx context.Context, req service.OverrideRequest) (*service.PaymentResult, error) {
	if m.overrideFn != nil {
		return m.overrideFn(ctx, req)
	}
	return nil, errUnexpectedCall
}

// --- Mock Reconciler ---

type mockReconciler struct {
	syncOneFn func(ctx context.Context, paymentID uuid.UUID) (*service.SyncResult, error)
	syncFn    func(ctx context.Context, f service.SyncFilter) (*service.SyncReport, error)
	cleanupFn func(ctx context.Context, opts service.CleanupOptions) (*service.CleanupReport, error)
	webhookFn func(ctx context.Context, ev *gateway.WebhookEvent) (*service.SyncResult, error)
}

func (m *mockReconciler) SyncSinglePaymentStatus(ctx context.Context, paymentID uuid.UUID) (*service.SyncResult, error) {
	if m.syncOneFn != nil {
		return m.syncOneFn(ctx, paymentID)
	}
	return nil, errUnexpectedCall
}

func (m *mockReconciler) SyncPaymentStatuses(ctx context.Context, f service.SyncFilter) (*service.SyncReport, error) {
	if m.syncFn != nil {
		return m.syncFn(ctx, f)
	}
	return &service.SyncReport{Errors: []service.SyncError{}}, nil
}

func (m *mockReconciler) CleanupPaymentData(ctx context.Context, opts service.CleanupOptions) (*service.CleanupReport, error) {
	if m.cleanupFn != nil {
		return m.cleanupFn(ctx, opts)
	}
	return &service.CleanupReport{DryRun: opts.DryRun}, nil
}

func (m *mockReconciler) HandleGatewayWebhook(ctx context.Context, ev *gateway.WebhookEvent) (*service.SyncResult, error) {
	if m.webhookFn != nil {
		return m.webhookFn(ctx, ev)
	}
	return nil, nil
}

const testWebhookSecret = "whsec"

func paymentRouter(svc *mockPaymentService, rec *mockReconciler) http.Handler {
	h := handler.NewPaymentHandler(svc, rec, testWebhookSecret)
	r := chi.NewRouter()
	h.RegisterWebhookRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testJWTSecret))
		r.Route("/orders", func(r chi.Router) {
			h.RegisterOrderRoutes(r)
			h.RegisterOrderAdminRoutes(r)
		})
		r.Route("/payments", h.RegisterAdminRoutes)
	})
	return r
}

func paidResult(orderID uuid.UUID, method database.PaymentMethod, amount string, status database.OrderPaymentStatus) *service.PaymentResult {
	return &service.PaymentResult{
		Payment: database.PaymentRecord{
			ID:            uuid.New(),
			OrderID:       database.UUID(orderID),
			PaymentMethod: method,
			PaymentStatus: database.PaymentStatusPAID,
			Amount:        database.Numeric(decimal.RequireFromString(amount)),
		},
		Order: &database.Order{ID: orderID, PaymentStatus: status},
	}
}

// --- Order payments ---

func TestListOrderPayments_Ownership(t *testing.T) {
	owner := uuid.New()
	orderID := uuid.New()
	svc := &mockPaymentService{
		orderPaymentsFn: func(_ context.Context, id uuid.UUID) (*service.OrderPayments, error) {
			return &service.OrderPayments{
				Order:    database.Order{ID: id, CustomerID: owner, PaymentStatus: database.OrderPaymentStatusPARTIAL},
				Payments: []database.PaymentRecord{},
				Summary: service.PaymentSummary{
					Status:            database.OrderPaymentStatusPARTIAL,
					InvoiceTotal:      decimal.RequireFromString("10"),
					NetAmountPaid:     decimal.RequireFromString("4"),
					OutstandingAmount: decimal.RequireFromString("6"),
				},
			}, nil
		},
	}
	router := paymentRouter(svc, &mockReconciler{})
	path := "/orders/" + orderID.String() + "/payments"

	rr := doRequest(t, router, "GET", path, nil, tokenFor(t, owner, auth.RoleCustomer))
	expectStatus(t, rr, http.StatusOK)
	resp := decodeMap(t, rr)
	summary, _ := resp["summary"].(map[string]interface{})
	if summary["status"] != "PARTIAL" {
		t.Errorf("summary status: got %v", summary["status"])
	}

	expectStatus(t, doRequest(t, router, "GET", path, nil, tokenFor(t, uuid.New(), auth.RoleCustomer)), http.StatusNotFound)
	expectStatus(t, doRequest(t, router, "GET", path, nil, tokenFor(t, uuid.New(), auth.RoleAdmin)), http.StatusOK)
}

func TestPayWithWallet(t *testing.T) {
	customerID := uuid.New()
	orderID := uuid.New()
	var got service.PayWithWalletRequest
	svc := &mockPaymentService{
		walletFn: func(_ context.Context, req service.PayWithWalletRequest) (*service.PaymentResult, error) {
			got = req
			return paidResult(req.OrderID, database.PaymentMethodWALLET, "4", database.OrderPaymentStatusPARTIAL), nil
		},
	}
	router := paymentRouter(svc, &mockReconciler{})
	path := "/orders/" + orderID.String() + "/payments/wallet"

	rr := doRequest(t, router, "POST", path, map[string]string{"amount": "4.000"}, tokenFor(t, customerID, auth.RoleCustomer))
	expectStatus(t, rr, http.StatusCreated)
	if got.CustomerID != customerID || got.OrderID != orderID || !got.Amount.Equal(decimal.NewFromInt(4)) {
		t.Errorf("request: got %+v", got)
	}

	// Only customers pay from their own wallet.
	expectStatus(t, doRequest(t, router, "POST", path, map[string]string{"amount": "4"}, tokenFor(t, uuid.New(), auth.RoleAdmin)), http.StatusForbidden)

	for _, amount := range []string{"", "0", "-1", "abc"} {
		rr := doRequest(t, router, "POST", path, map[string]string{"amount": amount}, tokenFor(t, customerID, auth.RoleCustomer))
		expectStatus(t, rr, http.StatusBadRequest)
	}

	tests := []struct {
		err  error
		want int
	}{
		{service.ErrInsufficientBalance, http.StatusConflict},
		{service.ErrAmountExceedsOutstanding, http.StatusConflict},
		{service.ErrWalletNotFound, http.StatusNotFound},
		{service.ErrOrderCancelled, http.StatusConflict},
	}
	for _, tt := range tests {
		svc.walletFn = func(context.Context, service.PayWithWalletRequest) (*service.PaymentResult, error) {
			return nil, tt.err
		}
		rr := doRequest(t, router, "POST", path, map[string]string{"amount": "4"}, tokenFor(t, customerID, auth.RoleCustomer))
		if rr.Code != tt.want {
			t.Errorf("%v: got %d, want %d", tt.err, rr.Code, tt.want)
		}
	}
}

func TestGenerateInvoice(t *testing.T) {
	adminID := uuid.New()
	orderID := uuid.New()
	var got service.GenerateInvoiceRequest
	svc := &mockPaymentService{
		invoiceFn: func(_ context.Context, req service.GenerateInvoiceRequest) (*service.InvoiceResult, error) {
			got = req
			p := database.PaymentRecord{ID: uuid.New(), PaymentMethod: database.PaymentMethodTAPINVOICE, PaymentStatus: database.PaymentStatusPENDING}
			return &service.InvoiceResult{
				Order:      database.Order{ID: req.OrderID},
				Payment:    &p,
				InvoiceURL: "https://tap.company/i/inv_1",
			}, nil
		},
	}
	router := paymentRouter(svc, &mockReconciler{})
	path := "/orders/" + orderID.String() + "/invoice"
	token := tokenFor(t, adminID, auth.RoleAdmin)

	rr := doRequest(t, router, "POST", path, map[string]interface{}{"invoice_total": "10.000", "send_to_customer": true}, token)
	expectStatus(t, rr, http.StatusCreated)
	if got.AdminID != adminID || !got.SendToCustomer || !got.InvoiceTotal.Equal(decimal.NewFromInt(10)) {
		t.Errorf("request: got %+v", got)
	}
	if resp := decodeMap(t, rr); resp["invoice_url"] != "https://tap.company/i/inv_1" {
		t.Errorf("invoice_url: got %v", resp["invoice_url"])
	}

	// Nothing outstanding: total stored, no invoice created.
	svc.invoiceFn = func(_ context.Context, req service.GenerateInvoiceRequest) (*service.InvoiceResult, error) {
		return &service.InvoiceResult{Order: database.Order{ID: req.OrderID}}, nil
	}
	expectStatus(t, doRequest(t, router, "POST", path, map[string]interface{}{"invoice_total": "4"}, token), http.StatusOK)

	svc.invoiceFn = func(context.Context, service.GenerateInvoiceRequest) (*service.InvoiceResult, error) {
		return nil, fmt.Errorf("%w: create invoice: %w", service.ErrGateway, &gateway.APIError{StatusCode: 500, Message: "boom"})
	}
	rr = doRequest(t, router, "POST", path, map[string]interface{}{"invoice_total": "10"}, token)
	expectStatus(t, rr, http.StatusBadGateway)
	if msg := errorMessage(t, rr); strings.Contains(msg, "boom") {
		t.Errorf("gateway detail leaked: %q", msg)
	}

	svc.invoiceFn = func(context.Context, service.GenerateInvoiceRequest) (*service.InvoiceResult, error) {
		return nil, service.ErrInvoicePending
	}
	expectStatus(t, doRequest(t, router, "POST", path, map[string]interface{}{"invoice_total": "10"}, token), http.StatusConflict)

	svc.invoiceFn = func(context.Context, service.GenerateInvoiceRequest) (*service.InvoiceResult, error) {
		return nil, service.ErrGatewayUnavailable
	}
	expectStatus(t, doRequest(t, router, "POST", path, map[string]interface{}{"invoice_total": "10"}, token), http.StatusServiceUnavailable)

	expectStatus(t, doRequest(t, router, "POST", path, map[string]interface{}{}, token), http.StatusBadRequest)
}

func TestRecordManualPayment(t *testing.T) {
	adminID := uuid.New()
	orderID := uuid.New()
	var got service.ManualPaymentRequest
	svc := &mockPaymentService{
		manualFn: func(_ context.Context, req service.ManualPaymentRequest) (*service.PaymentResult, error) {
			got = req
			return paidResult(req.OrderID, req.Method, "4", database.OrderPaymentStatusPARTIAL), nil
		},
	}
	router := paymentRouter(svc, &mockReconciler{})
	path := "/orders/" + orderID.String() + "/payments/manual"
	token := tokenFor(t, adminID, auth.RoleAdmin)

	rr := doRequest(t, router, "POST", path, map[string]string{
		"payment_method": "CASH",
		"amount":         "4",
		"reference":      "R-1",
		"notes":          "paid at door",
	}, token)
	expectStatus(t, rr, http.StatusCreated)
	if got.Method != database.PaymentMethodCASH || got.Reference != "R-1" || got.AdminID != adminID {
		t.Errorf("request: got %+v", got)
	}
	order, _ := decodeMap(t, rr)["order"].(map[string]interface{})
	if order["payment_status"] != "PARTIAL" {
		t.Errorf("order payment_status: got %v", order["payment_status"])
	}

	expectStatus(t, doRequest(t, router, "POST", path, map[string]string{"amount": "4"}, token), http.StatusBadRequest)

	svc.manualFn = func(context.Context, service.ManualPaymentRequest) (*service.PaymentResult, error) {
		return nil, service.ErrInvalidPaymentMethod
	}
	expectStatus(t, doRequest(t, router, "POST", path, map[string]string{"payment_method": "WALLET", "amount": "4"}, token), http.StatusBadRequest)
}

func TestRecalculate(t *testing.T) {
	adminID := uuid.New()
	var gotActor uuid.UUID
	svc := &mockPaymentService{
		recalcFn: func(_ context.Context, orderID, actorID uuid.UUID) (*service.OrderPayments, error) {
			gotActor = actorID
			return &service.OrderPayments{Order: database.Order{ID: orderID, PaymentStatus: database.OrderPaymentStatusPAID}}, nil
		},
	}
	rr := doRequest(t, paymentRouter(svc, &mockReconciler{}), "POST",
		"/orders/"+uuid.New().String()+"/payments/recalculate", nil, tokenFor(t, adminID, auth.RoleAdmin))
	expectStatus(t, rr, http.StatusOK)
	if gotActor != adminID {
		t.Errorf("actor: got %s, want %s", gotActor, adminID)
	}
}

// --- Payment admin ---

func TestInvoiceActions(t *testing.T) {
	adminID := uuid.New()
	paymentID := uuid.New()
	var cancelled, resent uuid.UUID
	svc := &mockPaymentService{
		cancelFn: func(_ context.Context, id, admin uuid.UUID) (database.PaymentRecord, error) {
			cancelled = id
			return database.PaymentRecord{ID: id, PaymentStatus: database.PaymentStatusFAILED}, nil
		},
		resendFn: func(_ context.Context, id, admin uuid.UUID) (database.PaymentRecord, error) {
			resent = id
			return database.PaymentRecord{}, service.ErrPaymentNotPending
		},
	}
	router := paymentRouter(svc, &mockReconciler{})
	token := tokenFor(t, adminID, auth.RoleAdmin)

	expectStatus(t, doRequest(t, router, "POST", "/payments/"+paymentID.String()+"/cancel", nil, token), http.StatusOK)
	expectStatus(t, doRequest(t, router, "POST", "/payments/"+paymentID.String()+"/resend", nil, token), http.StatusConflict)
	if cancelled != paymentID || resent != paymentID {
		t.Errorf("ids: cancelled %s resent %s", cancelled, resent)
	}
	expectStatus(t, doRequest(t, router, "POST", "/payments/nope/cancel", nil, token), http.StatusBadRequest)
	expectStatus(t, doRequest(t, router, "GET", "/payments/"+paymentID.String(), nil, token), http.StatusNotFound)
}

func TestRefundAndOverride(t *testing.T) {
	adminID := uuid.New()
	paymentID := uuid.New()
	var refund service.RefundRequest
	var override service.OverrideRequest
	svc := &mockPaymentService{
		refundFn: func(_ context.Context, req service.RefundRequest) (*service.PaymentResult, error) {
			refund = req
			return &service.PaymentResult{Payment: database.PaymentRecord{ID: req.PaymentID, PaymentStatus: database.PaymentStatusPARTIALREFUND}}, nil
		},
		overrideFn: func(_ context.Context, req service.OverrideRequest) (*service.PaymentResult, error) {
			override = req
			return nil, service.ErrInvalidOverride
		},
	}
	router := paymentRouter(svc, &mockReconciler{})
	token := tokenFor(t, adminID, auth.RoleAdmin)

	rr := doRequest(t, router, "POST", "/payments/"+paymentID.String()+"/refund",
		map[string]string{"amount": "2.5", "reason": "missing sock"}, token)
	expectStatus(t, rr, http.StatusOK)
	if refund.PaymentID != paymentID || refund.Reason != "missing sock" || refund.Amount.String() != "2.5" {
		t.Errorf("refund request: got %+v", refund)
	}

	rr = doRequest(t, router, "POST", "/payments/"+paymentID.String()+"/override",
		map[string]string{"status": "PAID", "reason": "confirmed by bank"}, token)
	expectStatus(t, rr, http.StatusConflict)
	if override.Status != database.PaymentStatusPAID || override.AdminID != adminID {
		t.Errorf("override request: got %+v", override)
	}

	svc.refundFn = func(context.Context, service.RefundRequest) (*service.PaymentResult, error) {
		return nil, service.ErrRefundExceedsPayment
	}
	expectStatus(t, doRequest(t, router, "POST", "/payments/"+paymentID.String()+"/refund",
		map[string]string{"amount": "99", "reason": "x"}, token), http.StatusConflict)
}

func TestSyncEndpoints(t *testing.T) {
	paymentID := uuid.New()
	var gotFilter service.SyncFilter
	rec := &mockReconciler{
		syncOneFn: func(_ context.Context, id uuid.UUID) (*service.SyncResult, error) {
			return &service.SyncResult{PaymentID: id, GatewayStatus: "CAPTURED", MappedStatus: database.PaymentStatusPAID, Updated: true}, nil
		},
		syncFn: func(_ context.Context, f service.SyncFilter) (*service.SyncReport, error) {
			gotFilter = f
			return &service.SyncReport{TotalChecked: 3, Updated: 2, StatusMismatches: 2, Errors: []service.SyncError{{PaymentID: uuid.New(), Error: "timeout"}}}, nil
		},
	}
	router := paymentRouter(&mockPaymentService{}, rec)
	token := tokenFor(t, uuid.New(), auth.RoleAdmin)

	rr := doRequest(t, router, "POST", "/payments/"+paymentID.String()+"/sync", nil, token)
	expectStatus(t, rr, http.StatusOK)
	if resp := decodeMap(t, rr); resp["mapped_status"] != "PAID" || resp["updated"] != true {
		t.Errorf("sync result: got %v", resp)
	}

	rr = doRequest(t, router, "POST", "/payments/sync", map[string]interface{}{
		"methods": []string{"TAP_INVOICE"},
		"status":  "FAILED",
		"limit":   25,
	}, token)
	expectStatus(t, rr, http.StatusOK)
	if len(gotFilter.Methods) != 1 || gotFilter.Methods[0] != database.PaymentMethodTAPINVOICE || gotFilter.Status != database.PaymentStatusFAILED || gotFilter.Limit != 25 {
		t.Errorf("filter: got %+v", gotFilter)
	}
	resp := decodeMap(t, rr)
	if resp["total_checked"] != float64(3) || resp["updated"] != float64(2) {
		t.Errorf("report: got %v", resp)
	}

	// Empty body uses the service defaults.
	req := httptest.NewRequest("POST", "/payments/sync", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusOK)
	if gotFilter.Status != "" || len(gotFilter.Methods) != 0 {
		t.Errorf("default filter: got %+v", gotFilter)
	}

	rec.syncFn = func(context.Context, service.SyncFilter) (*service.SyncReport, error) {
		return nil, fmt.Errorf("%w: CASH", service.ErrNotGatewayPayment)
	}
	expectStatus(t, doRequest(t, router, "POST", "/payments/sync", map[string]interface{}{"methods": []string{"CASH"}}, token), http.StatusConflict)
}

func TestCleanup_DefaultsToDryRun(t *testing.T) {
	var got service.CleanupOptions
	rec := &mockReconciler{
		cleanupFn: func(_ context.Context, opts service.CleanupOptions) (*service.CleanupReport, error) {
			got = opts
			return &service.CleanupReport{DryRun: opts.DryRun, Scanned: 10, Fixable: 2}, nil
		},
	}
	router := paymentRouter(&mockPaymentService{}, rec)
	token := tokenFor(t, uuid.New(), auth.RoleAdmin)

	expectStatus(t, doRequest(t, router, "POST", "/payments/cleanup", map[string]interface{}{"batch_size": 50}, token), http.StatusOK)
	if !got.DryRun || got.BatchSize != 50 {
		t.Errorf("options: got %+v", got)
	}

	expectStatus(t, doRequest(t, router, "POST", "/payments/cleanup", map[string]interface{}{"dry_run": false, "max_records": 5}, token), http.StatusOK)
	if got.DryRun || got.MaxRecords != 5 {
		t.Errorf("options: got %+v", got)
	}
}

// --- Webhook ---

func signedWebhook(t *testing.T, id, status string) (string, string) {
	t.Helper()
	body := fmt.Sprintf(`{"id":%q,"object":"charge","status":%q,"amount":5,"currency":"KWD",`+
		`"reference":{"gateway":"gw_1","payment":"pay_1"},"transaction":{"created":"1700000000000"}}`, id, status)
	var ev gateway.WebhookEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		t.Fatalf("unmarshal webhook: %v", err)
	}
	return body, gateway.Sign(&ev, testWebhookSecret)
}

func postWebhook(router http.Handler, body, hash string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/tap", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if hash != "" {
		req.Header.Set("hashstring", hash)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestTapWebhook(t *testing.T) {
	paymentID := uuid.New()
	var gotID string
	rec := &mockReconciler{
		webhookFn: func(_ context.Context, ev *gateway.WebhookEvent) (*service.SyncResult, error) {
			gotID = ev.ID
			if ev.ID == "chg_unknown" {
				return nil, nil
			}
			return &service.SyncResult{PaymentID: paymentID, MappedStatus: database.PaymentStatusPAID, Updated: true}, nil
		},
	}
	router := paymentRouter(&mockPaymentService{}, rec)

	body, hash := signedWebhook(t, "chg_123", "CAPTURED")
	rr := postWebhook(router, body, hash)
	expectStatus(t, rr, http.StatusOK)
	if gotID != "chg_123" {
		t.Errorf("webhook id: got %q", gotID)
	}
	if resp := decodeMap(t, rr); resp["payment_id"] != paymentID.String() {
		t.Errorf("payment_id: got %v", resp["payment_id"])
	}

	body, hash = signedWebhook(t, "chg_unknown", "CAPTURED")
	rr = postWebhook(router, body, hash)
	expectStatus(t, rr, http.StatusOK)
	if resp := decodeMap(t, rr); resp["status"] != "ignored" {
		t.Errorf("unknown reference: got %v", resp)
	}
}

func TestTapWebhook_Rejections(t *testing.T) {
	called := false
	rec := &mockReconciler{
		webhookFn: func(context.Context, *gateway.WebhookEvent) (*service.SyncResult, error) {
			called = true
			return nil, nil
		},
	}
	router := paymentRouter(&mockPaymentService{}, rec)
	body, hash := signedWebhook(t, "chg_123", "CAPTURED")

	expectStatus(t, postWebhook(router, body, ""), http.StatusUnauthorized)
	expectStatus(t, postWebhook(router, body, "deadbeef"), http.StatusUnauthorized)
	// Tampered status no longer matches the signature.
	expectStatus(t, postWebhook(router, strings.Replace(body, "CAPTURED", "DECLINED", 1), hash), http.StatusUnauthorized)
	expectStatus(t, postWebhook(router, "{not json", hash), http.StatusBadRequest)
	if called {
		t.Error("reconciler must not run for rejected webhooks")
	}

	rec.webhookFn = func(context.Context, *gateway.WebhookEvent) (*service.SyncResult, error) {
		return nil, fmt.Errorf("%w: fetch chg_123: timeout", service.ErrGateway)
	}
	expectStatus(t, postWebhook(router, body, hash), http.StatusBadGateway)

	unconfigured := handler.NewPaymentHandler(&mockPaymentService{}, rec, "")
	r := chi.NewRouter()
	unconfigured.RegisterWebhookRoutes(r)
	expectStatus(t, postWebhook(r, body, hash), http.StatusServiceUnavailable)
}
