package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/service"
	"github.com/shopspring/decimal"
)

// WalletServicer defines the wallet operations used by the handlers.
// Satisfied by *service.WalletService.
type WalletServicer interface {
	CreateWalletForCustomer(ctx context.Context, customerID uuid.UUID) (database.Wallet, bool, error)
	GetWallet(ctx context.Context, id uuid.UUID) (database.Wallet, error)
	GetWalletByCustomer(ctx context.Context, customerID uuid.UUID) (database.Wallet, error)
	ListWalletTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int32) ([]database.WalletTransaction, error)
	ProcessWalletTransaction(ctx context.Context, req service.WalletTransactionRequest) (*service.LedgerResult, error)
	AdjustBalance(ctx context.Context, req service.AdjustBalanceRequest) (*service.LedgerResult, error)
	CreatePendingDeposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, description string) (database.WalletTransaction, error)
	CompletePendingTransaction(ctx context.Context, txnID uuid.UUID) (*service.LedgerResult, error)
	FailPendingTransaction(ctx context.Context, txnID uuid.UUID) (database.WalletTransaction, error)
	TopUp(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (*service.TopUpResult, error)
}

// WalletHandler handles wallet endpoints.
type WalletHandler struct {
	svc WalletServicer
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(svc WalletServicer) *WalletHandler {
	return &WalletHandler{svc: svc}
}

// RegisterCustomerRoutes registers the caller's own wallet endpoints.
// Expected to be mounted at /wallet behind a CUSTOMER role check.
func (h *WalletHandler) RegisterCustomerRoutes(r chi.Router) {
	r.Get("/", h.Mine)
	r.Post("/", h.OpenMine)
	r.Get("/transactions", h.MyTransactions)
	r.Post("/top-up", h.TopUp)
}

// RegisterAdminRoutes registers wallet administration endpoints.
// Expected to be mounted at /wallets behind an ADMIN role check.
func (h *WalletHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/", h.Open)
	r.Get("/{wid}", h.Get)
	r.Get("/{wid}/transactions", h.Transactions)
	r.Post("/{wid}/transactions", h.Post)
	r.Post("/{wid}/adjust", h.Adjust)
	r.Post("/{wid}/pending-deposits", h.PendingDeposit)
	r.Post("/transactions/{tid}/complete", h.CompletePending)
	r.Post("/transactions/{tid}/fail", h.FailPending)
}

// --- Request / Response types ---

type openWalletRequest struct {
	CustomerID string `json:"customer_id"`
}

type walletTransactionRequest struct {
	TransactionType string          `json:"transaction_type"`
	Amount          string          `json:"amount"`
	Description     string          `json:"description"`
	OrderID         string          `json:"order_id"`
	Metadata        json.RawMessage `json:"metadata"`
}

type adjustBalanceRequest struct {
	NewBalance *string `json:"new_balance"`
	Delta      *string `json:"delta"`
	Reason     string  `json:"reason"`
}

type pendingDepositRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// --- Customer handlers ---

// Mine handles GET /wallet.
func (h *WalletHandler) Mine(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	wallet, err := h.svc.GetWalletByCustomer(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err, "get wallet")
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// OpenMine handles POST /wallet. Returns 201 when the wallet was created and
// 200 when it already existed.
func (h *WalletHandler) OpenMine(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	h.open(w, r, claims.UserID)
}

// MyTransactions handles GET /wallet/transactions.
func (h *WalletHandler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	wallet, err := h.svc.GetWalletByCustomer(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err, "get wallet")
		return
	}
	h.listTransactions(w, r, wallet.ID)
}

// TopUp handles POST /wallet/top-up.
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
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

	res, err := h.svc.TopUp(r.Context(), claims.UserID, amount)
	if err != nil {
		writeServiceError(w, err, "top up wallet")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// --- Admin handlers ---

// Open handles POST /wallets.
func (h *WalletHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openWalletRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid customer_id")
		return
	}
	h.open(w, r, customerID)
}

// Get handles GET /wallets/{wid}.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	walletID, ok := uuidParam(w, r, "wid", "wallet ID")
	if !ok {
		return
	}
	wallet, err := h.svc.GetWallet(r.Context(), walletID)
	if err != nil {
		writeServiceError(w, err, "get wallet")
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// Transactions handles GET /wallets/{wid}/transactions.
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	walletID, ok := uuidParam(w, r, "wid", "wallet ID")
	if !ok {
		return
	}
	h.listTransactions(w, r, walletID)
}

// Post handles POST /wallets/{wid}/transactions.
func (h *WalletHandler) Post(w http.ResponseWriter, r *http.Request) {
	walletID, ok := uuidParam(w, r, "wid", "wallet ID")
	if !ok {
		return
	}
	var req walletTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TransactionType == "" {
		writeMessage(w, http.StatusBadRequest, "transaction_type is required")
		return
	}
	amount, ok := amountField(w, req.Amount)
	if !ok {
		return
	}
	orderID, err := optionalUUID(req.OrderID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid order_id")
		return
	}

	res, err := h.svc.ProcessWalletTransaction(r.Context(), service.WalletTransactionRequest{
		WalletID:    walletID,
		Type:        database.WalletTransactionType(req.TransactionType),
		Amount:      amount,
		Description: req.Description,
		OrderID:     orderID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeServiceError(w, err, "process wallet transaction")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Adjust handles POST /wallets/{wid}/adjust.
func (h *WalletHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	walletID, ok := uuidParam(w, r, "wid", "wallet ID")
	if !ok {
		return
	}
	var req adjustBalanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := service.AdjustBalanceRequest{
		WalletID: walletID,
		AdminID:  claims.UserID,
		Reason:   req.Reason,
	}
	if req.NewBalance != nil {
		d, err := decimal.NewFromString(*req.NewBalance)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid new_balance")
			return
		}
		in.NewBalance = &d
	}
	if req.Delta != nil {
		d, err := decimal.NewFromString(*req.Delta)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid delta")
			return
		}
		in.Delta = &d
	}

	res, err := h.svc.AdjustBalance(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "adjust balance")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// PendingDeposit handles POST /wallets/{wid}/pending-deposits.
func (h *WalletHandler) PendingDeposit(w http.ResponseWriter, r *http.Request) {
	walletID, ok := uuidParam(w, r, "wid", "wallet ID")
	if !ok {
		return
	}
	var req pendingDepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := amountField(w, req.Amount)
	if !ok {
		return
	}

	txn, err := h.svc.CreatePendingDeposit(r.Context(), walletID, amount, req.Description)
	if err != nil {
		writeServiceError(w, err, "create pending deposit")
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// CompletePending handles POST /wallets/transactions/{tid}/complete.
func (h *WalletHandler) CompletePending(w http.ResponseWriter, r *http.Request) {
	txnID, ok := uuidParam(w, r, "tid", "transaction ID")
	if !ok {
		return
	}
	res, err := h.svc.CompletePendingTransaction(r.Context(), txnID)
	if err != nil {
		writeServiceError(w, err, "complete pending transaction")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// FailPending handles POST /wallets/transactions/{tid}/fail.
func (h *WalletHandler) FailPending(w http.ResponseWriter, r *http.Request) {
	txnID, ok := uuidParam(w, r, "tid", "transaction ID")
	if !ok {
		return
	}
	txn, err := h.svc.FailPendingTransaction(r.Context(), txnID)
	if err != nil {
		writeServiceError(w, err, "fail pending transaction")
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// --- Helpers ---

func (h *WalletHandler) open(w http.ResponseWriter, r *http.Request, customerID uuid.UUID) {
	wallet, created, err := h.svc.CreateWalletForCustomer(r.Context(), customerID)
	if err != nil {
		writeServiceError(w, err, "create wallet")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, wallet)
}

func (h *WalletHandler) listTransactions(w http.ResponseWriter, r *http.Request, walletID uuid.UUID) {
	limit, offset := pageParams(r)
	txns, err := h.svc.ListWalletTransactions(r.Context(), walletID, limit, offset)
	if err != nil {
		writeServiceError(w, err, "list wallet transactions")
		return
	}
	if txns == nil {
		txns = []database.WalletTransaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}
