// Package notify fans out domain events to message brokers and the
// websocket tracking feed. Delivery is best-effort: callers log failures and
// never roll back on them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is a domain notification.
type Event struct {
	Type       string         `json:"type"`
	OrderID    uuid.UUID      `json:"order_id"`
	CustomerID uuid.UUID      `json:"customer_id"`
	PaymentID  uuid.UUID      `json:"payment_id"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
}

// Key is the partitioning key for brokers: the order when there is one,
// otherwise the customer.
func (e Event) Key() string {
	if e.OrderID != uuid.Nil {
		return e.OrderID.String()
	}
	return e.CustomerID.String()
}

func (e Event) encode() ([]byte, error) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return json.Marshal(e)
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
