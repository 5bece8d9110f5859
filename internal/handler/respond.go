// Package handler holds the HTTP handlers. Each handler depends on a narrow
// interface over the services so tests can substitute function-field mocks.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/laundrix/api/internal/auth"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/middleware"
	"github.com/laundrix/api/internal/service"
	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var (
	notFoundErrors = []error{
		service.ErrOrderNotFound,
		service.ErrCustomerNotFound,
		service.ErrWalletNotFound,
		service.ErrTransactionNotFound,
		service.ErrPaymentNotFound,
		service.ErrIssueNotFound,
	}
	forbiddenErrors = []error{
		service.ErrActionNotPermitted,
		service.ErrNotAssignedDriver,
	}
	conflictErrors = []error{
		service.ErrInvalidTransition,
		service.ErrConcurrentUpdate,
		service.ErrLedgerNotSettled,
		service.ErrInsufficientBalance,
		service.ErrNegativeBalance,
		service.ErrNoBalanceChange,
		service.ErrInvoiceNotAllowed,
		service.ErrInvoicePending,
		service.ErrNotInvoice,
		service.ErrPaymentNotPending,
		service.ErrAmountExceedsOutstanding,
		service.ErrRefundNotAllowed,
		service.ErrRefundExceedsPayment,
		service.ErrInvalidOverride,
		service.ErrOrderCancelled,
		service.ErrIssueNotAllowed,
		service.ErrIssueClosed,
		service.ErrNotGatewayPayment,
		service.ErrNoGatewayReference,
	}
	badRequestErrors = []error{
		service.ErrInvalidAmount,
		service.ErrReasonRequired,
		service.ErrInvalidAction,
		service.ErrInvalidStatus,
		service.ErrDriverRequired,
		service.ErrFailureReasonRequired,
		service.ErrInvalidProcessing,
		service.ErrInvalidIssue,
		service.ErrPickupAddressRequired,
		service.ErrInvalidPickupWindow,
		service.ErrInvalidDeliveryWindow,
		service.ErrInvalidTransactionType,
		service.ErrAdjustmentMode,
		service.ErrInvalidMetadata,
		service.ErrInvalidPaymentMethod,
	}
)

func matchAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeServiceError maps a service error to a status code. Anything
// unrecognised is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case matchAny(err, notFoundErrors):
		writeMessage(w, http.StatusNotFound, err.Error())
	case matchAny(err, forbiddenErrors):
		writeMessage(w, http.StatusForbidden, err.Error())
	case matchAny(err, conflictErrors):
		writeMessage(w, http.StatusConflict, err.Error())
	case matchAny(err, badRequestErrors):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrGatewayUnavailable):
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrGateway):
		slog.Warn("gateway call failed", "op", op, "error", err)
		writeMessage(w, http.StatusBadGateway, "payment gateway error")
	default:
		slog.Error("request failed", "op", op, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// uuidParam parses a chi URL parameter, writing a 400 on failure.
func uuidParam(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID parses s; "" is uuid.Nil.
func optionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

// requireClaims returns the authenticated actor, writing a 401 when absent.
func requireClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	return claims, true
}

func actorRole(c *auth.Claims) database.ActorRole {
	return database.ActorRole(c.Role)
}

func isCustomer(c *auth.Claims) bool {
	return c.Role == auth.RoleCustomer
}

// parseAmount parses a positive money amount given as a JSON string. More
// than database.MoneyScale decimal places is rejected.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !service.ValidAmount(d) {
		return decimal.Zero, service.ErrInvalidAmount
	}
	return d, nil
}

// pageParams reads limit and offset query parameters. Missing or malformed
// values are zero, which the services replace with their defaults.
func pageParams(r *http.Request) (limit, offset int32) {
	q := r.URL.Query()
	if n, err := strconv.ParseInt(q.Get("limit"), 10, 32); err == nil {
		limit = int32(n)
	}
	if n, err := strconv.ParseInt(q.Get("offset"), 10, 32); err == nil {
		offset = int32(n)
	}
	return limit, offset
}
