package notify

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// Kafka publishes events to a single topic keyed by order (or customer) id,
// so all events for one order land on the same partition in order.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka wraps an existing producer.
func NewKafka(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

// DialKafka creates a synchronous producer that waits for all in-sync replicas.
func DialKafka(brokers []string, topic string) (*Kafka, func(), error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.ClientID = "laundrix-api"

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	closeFn := func() {
		_ = producer.Close()
	}
	return NewKafka(producer, topic), closeFn, nil
}

func (k *Kafka) Notify(_ context.Context, ev Event) error {
	data, err := ev.encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.Key()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(ev.Type)},
		},
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka send %s: %w", ev.Type, err)
	}
	return nil
}
