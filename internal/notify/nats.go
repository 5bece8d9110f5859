package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// publisher is the part of *nats.Conn used here.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each event on "<prefix>.<event type>".
type NATS struct {
	conn   publisher
	prefix string
}

// NewNATS wraps an established connection.
func NewNATS(conn publisher, prefix string) *NATS {
	return &NATS{conn: conn, prefix: prefix}
}

// DialNATS connects to url and returns the notifier plus a close func.
func DialNATS(url, prefix string) (*NATS, func(), error) {
	conn, err := nats.Connect(url, nats.Name("laundrix-api"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	closeFn := func() {
		_ = conn.Drain()
	}
	return NewNATS(conn, prefix), closeFn, nil
}

func (n *NATS) Notify(_ context.Context, ev Event) error {
	data, err := ev.encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := ev.Type
	if n.prefix != "" {
		subject = n.prefix + "." + ev.Type
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}
