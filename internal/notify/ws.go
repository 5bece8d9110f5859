package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/laundrix/api/internal/ws"
)

// ErrFeedFull is returned when the websocket hub queue is saturated.
var ErrFeedFull = errors.New("tracking feed queue full")

// Feed pushes events to the websocket hub: the customer's room and the
// operations room.
type Feed struct {
	hub *ws.Hub
}

func NewFeed(hub *ws.Hub) *Feed {
	return &Feed{hub: hub}
}

func (f *Feed) Notify(_ context.Context, ev Event) error {
	data, err := ev.encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := ws.Event{Type: ev.Type, Payload: data}

	ok := f.hub.Publish(ws.OpsRoom, msg)
	if ev.CustomerID != uuid.Nil {
		ok = f.hub.Publish(ev.CustomerID, msg) && ok
	}
	if !ok {
		return ErrFeedFull
	}
	return nil
}
