package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrBadSignature is returned when a webhook hashstring does not verify.
var ErrBadSignature = errors.New("gateway: webhook signature mismatch")

// WebhookEvent is the subset of a Tap webhook body needed to locate the
// affected object. Status is informational only; callers re-read the object.
type WebhookEvent struct {
	ID        string          `json:"id"`
	Object    string          `json:"object"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference struct {
		Gateway string `json:"gateway"`
		Payment string `json:"payment"`
	} `json:"reference"`
	Transaction struct {
		Created json.Number `json:"created"`
	} `json:"transaction"`
}

// ParseWebhook decodes a webhook body and verifies its hashstring header
// with the merchant webhook secret.
func ParseWebhook(body []byte, hashstring, secret string) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if ev.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidResponse)
	}
	if !hmac.Equal([]byte(Sign(&ev, secret)), []byte(hashstring)) {
		return nil, ErrBadSignature
	}
	return &ev, nil
}

// Sign computes the hashstring Tap sends with a webhook for ev.
func Sign(ev *WebhookEvent, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(hashMessage(ev)))
	return hex.EncodeToString(mac.Sum(nil))
}

// hashMessage is the string Tap signs. The amount carries the currency's
// own number of decimal places.
func hashMessage(ev *WebhookEvent) string {
	return "x_id" + ev.ID +
		"x_amount" + ev.Amount.StringFixed(CurrencyScale(ev.Currency)) +
		"x_currency" + ev.Currency +
		"x_gateway_reference" + ev.Reference.Gateway +
		"x_payment_reference" + ev.Reference.Payment +
		"x_status" + ev.Status +
		"x_created" + ev.Transaction.Created.String()
}

// CurrencyScale returns the number of minor-unit digits for an ISO 4217
// currency code. Unknown codes get 2.
func CurrencyScale(code string) int32 {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "KWD", "BHD", "OMR", "JOD", "IQD", "LYD", "TND":
		return 3
	case "JPY", "KRW", "VND", "CLP", "ISK", "UGX", "XAF", "XOF":
		return 0
	default:
		return 2
	}
}
