// Package gateway is a client for the Tap Payments REST API (charges and invoices).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Errors returned by the gateway client.
var (
	ErrNotFound        = errors.New("gateway: object not found")
	ErrInvalidResponse = errors.New("gateway: invalid response")
)

// APIError is a non-2xx response from Tap.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: http %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("gateway: http %d: %s", e.StatusCode, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	SecretKey   string
	Currency    string
	RedirectURL string
	Timeout     time.Duration
	RatePerSec  float64
	Burst       int
}

// Client calls the Tap API. Safe for concurrent use.
type Client struct {
	baseURL     string
	secretKey   string
	currency    string
	redirectURL string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a Client. A zero RatePerSec disables outbound throttling.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "KWD"
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:   cfg.SecretKey,
		currency:    cfg.Currency,
		redirectURL: cfg.RedirectURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(limit, cfg.Burst),
	}
}

// Currency returns the ISO currency charges and invoices are created in.
func (c *Client) Currency() string { return c.currency }

// --- Wire types ---

// Customer identifies the payer on a charge or invoice.
type Customer struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email,omitempty"`
	Phone     *Phone `json:"phone,omitempty"`
}

// Phone is Tap's split phone number.
type Phone struct {
	CountryCode string `json:"country_code"`
	Number      string `json:"number"`
}

// Reference carries merchant-side correlation ids.
type Reference struct {
	Transaction string `json:"transaction,omitempty"`
	Order       string `json:"order,omitempty"`
	Payment     string `json:"payment,omitempty"`
}

// Charge is a Tap charge object.
type Charge struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	Reference   Reference       `json:"reference"`
	Transaction struct {
		URL     string `json:"url"`
		Created string `json:"created"`
	} `json:"transaction"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TransactionID is the gateway-side payment id of a settled charge.
func (ch Charge) TransactionID() string {
	if ch.Reference.Payment != "" {
		return ch.Reference.Payment
	}
	return ch.Reference.Transaction
}

// Invoice is a Tap invoice object.
type Invoice struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	URL      string          `json:"url"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	ChargeID string          `json:"charge_id,omitempty"`
	Charge   *Charge         `json:"charge,omitempty"`
}

// TransactionID is the id of the charge that settled the invoice, if any.
func (inv Invoice) TransactionID() string {
	if inv.ChargeID != "" {
		return inv.ChargeID
	}
	if inv.Charge != nil {
		return inv.Charge.ID
	}
	return ""
}

// CreateChargeRequest is the input for CreateCharge.
type CreateChargeRequest struct {
	Amount      decimal.Decimal
	Description string
	Customer    Customer
	Reference   Reference
	Metadata    map[string]string
}

// CreateInvoiceRequest is the input for CreateInvoice.
type CreateInvoiceRequest struct {
	Amount         decimal.Decimal
	Description    string
	Customer       Customer
	Reference      Reference
	DueAt          time.Time
	ExpiresAt      time.Time
	SendToCustomer bool
}

type chargeBody struct {
	Amount      json.Number       `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Customer    Customer          `json:"customer"`
	Source      map[string]string `json:"source"`
	Redirect    map[string]string `json:"redirect,omitempty"`
	Reference   Reference         `json:"reference"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type invoiceItem struct {
	Name     string      `json:"name"`
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
	Quantity int         `json:"quantity"`
}

type invoiceBody struct {
	Draft         bool              `json:"draft"`
	Due           int64             `json:"due"`
	Expiry        int64             `json:"expiry"`
	Description   string            `json:"description,omitempty"`
	Mode          string            `json:"mode"`
	Customer      Customer          `json:"customer"`
	Currencies    []string          `json:"currencies"`
	Notifications map[string]any    `json:"notifications"`
	Order         map[string]any    `json:"order"`
	Reference     Reference         `json:"reference"`
	Redirect      map[string]string `json:"redirect,omitempty"`
}

// --- Operations ---

// CreateCharge starts a hosted-checkout charge. The returned charge's
// Transaction.URL is where the customer completes payment.
func (c *Client) CreateCharge(ctx context.Context, req CreateChargeRequest) (*Charge, error) {
	body := chargeBody{
		Amount:      amountNumber(req.Amount),
		Currency:    c.currency,
		Description: req.Description,
		Customer:    req.Customer,
		Source:      map[string]string{"id": "src_all"},
		Reference:   req.Reference,
		Metadata:    req.Metadata,
	}
	if c.redirectURL != "" {
		body.Redirect = map[string]string{"url": c.redirectURL}
	}
	var out Charge
	if err := c.do(ctx, http.MethodPost, "/v2/charges", body, &out); err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}
	return &out, nil
}

// GetCharge retrieves a charge by id.
func (c *Client) GetCharge(ctx context.Context, id string) (*Charge, error) {
	var out Charge
	if err := c.do(ctx, http.MethodGet, "/v2/charges/"+id, nil, &out); err != nil {
		return nil, fmt.Errorf("get charge %s: %w", id, err)
	}
	return &out, nil
}

// CreateInvoice issues a payable invoice link.
func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	now := time.Now()
	if req.DueAt.IsZero() {
		req.DueAt = now.Add(72 * time.Hour)
	}
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = req.DueAt.Add(7 * 24 * time.Hour)
	}
	channels := []string{}
	if req.SendToCustomer {
		channels = []string{"SMS", "EMAIL"}
	}
	amount := amountNumber(req.Amount)
	body := invoiceBody{
		Due:         req.DueAt.UnixMilli(),
		Expiry:      req.ExpiresAt.UnixMilli(),
		Description: req.Description,
		Mode:        "INVOICE",
		Customer:    req.Customer,
		Currencies:  []string{c.currency},
		Notifications: map[string]any{
			"channels": channels,
			"dispatch": req.SendToCustomer,
		},
		Order: map[string]any{
			"amount":   amount,
			"currency": c.currency,
			"items": []invoiceItem{{
				Name:     req.Description,
				Amount:   amount,
				Currency: c.currency,
				Quantity: 1,
			}},
		},
		Reference: req.Reference,
	}
	if c.redirectURL != "" {
		body.Redirect = map[string]string{"url": c.redirectURL}
	}
	var out Invoice
	if err := c.do(ctx, http.MethodPost, "/v2/invoices", body, &out); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return &out, nil
}

// GetInvoice retrieves an invoice by id.
func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	var out Invoice
	if err := c.do(ctx, http.MethodGet, "/v2/invoices/"+id, nil, &out); err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", id, err)
	}
	return &out, nil
}

// CancelInvoice voids an unpaid invoice.
func (c *Client) CancelInvoice(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/v2/invoices/"+id, nil, nil); err != nil {
		return fmt.Errorf("cancel invoice %s: %w", id, err)
	}
	return nil
}

// ResendInvoice asks Tap to notify the customer about an invoice again.
func (c *Client) ResendInvoice(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/v2/invoices/"+id+"/remind", map[string]any{}, nil); err != nil {
		return fmt.Errorf("resend invoice %s: %w", id, err)
	}
	return nil
}

// --- Transport ---

type errorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			if len(eb.Errors) > 0 {
				apiErr.Code = eb.Errors[0].Code
				apiErr.Message = eb.Errors[0].Description
			} else if eb.Message != "" {
				apiErr.Message = eb.Message
			}
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// amountNumber renders an amount with three decimals, the minor unit for KWD.
func amountNumber(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(3))
}
