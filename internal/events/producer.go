package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/observability"
)

// Publisher emits order lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev models.OrderEvent) error
}

// writer is the subset of *kafka.Writer the producer uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer  writer
	timeout time.Duration
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.Hash{}}
	return &KafkaProducer{writer: w, timeout: 2 * time.Second}
}

// Publish keys messages by order id so one order's events stay ordered
// within a partition.
func (k *KafkaProducer) Publish(ctx context.Context, ev models.OrderEvent) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(strconv.FormatUint(ev.Order.ID, 10)), Value: b})
	observability.EventsPublished.WithLabelValues(string(ev.Type), observability.Result(err)).Inc()
	return err
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Discard drops events when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, models.OrderEvent) error { return nil }

// Decode parses a message value produced by KafkaProducer.
func Decode(b []byte) (models.OrderEvent, error) {
	var ev models.OrderEvent
	err := json.Unmarshal(b, &ev)
	return ev, err
}
