package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/laundrix/api/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATS_Notify(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATS(pub, "laundrix")
	orderID := uuid.New()

	err := n.Notify(context.Background(), Event{Type: "order.status_changed", OrderID: orderID, Data: map[string]any{"to": "CONFIRMED"}})
	require.NoError(t, err)
	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "laundrix.order.status_changed", pub.subjects[0])

	var got Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, orderID, got.OrderID)
	assert.Equal(t, "CONFIRMED", got.Data["to"])
	assert.False(t, got.At.IsZero())
}

func TestNATS_PublishError(t *testing.T) {
	n := NewNATS(&fakePublisher{err: errors.New("closed")}, "")
	err := n.Notify(context.Background(), Event{Type: "wallet.updated"})
	assert.ErrorContains(t, err, "nats publish wallet.updated")
}

func TestKafka_Notify(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	defer producer.Close()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != "payment.status_changed" {
			return errors.New("unexpected type " + ev.Type)
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	k := NewKafka(producer, "laundrix.events")
	require.NoError(t, k.Notify(context.Background(), Event{Type: "payment.status_changed", OrderID: uuid.New()}))

	err := k.Notify(context.Background(), Event{Type: "payment.status_changed"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestEventKey(t *testing.T) {
	orderID, customerID := uuid.New(), uuid.New()
	assert.Equal(t, orderID.String(), Event{OrderID: orderID, CustomerID: customerID}.Key())
	assert.Equal(t, customerID.String(), Event{CustomerID: customerID}.Key())
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, Event) error {
	c.calls++
	return c.err
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	a := &countingNotifier{err: errA}
	b := &countingNotifier{}

	err := Multi{a, nil, b, Nop{}}.Notify(context.Background(), Event{Type: "x"})
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestFeed_QueueFull(t *testing.T) {
	hub := ws.NewHub() // not running: the queue only fills
	f := NewFeed(hub)

	var err error
	for i := 0; i < 300 && err == nil; i++ {
		err = f.Notify(context.Background(), Event{Type: "order.status_changed", CustomerID: uuid.New()})
	}
	assert.ErrorIs(t, err, ErrFeedFull)
}
