package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaHandler relays outbox entries to Kafka. The topic is the event type and
// the key is the aggregate, so every change to one appointment lands on the
// same partition in commit order.
type KafkaHandler struct {
	writer messageWriter
}

// NewKafkaHandler dials nothing until the first write.
func NewKafkaHandler(brokers []string) *KafkaHandler {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.Hash{},
	})
	return &KafkaHandler{writer: writer}
}

func newKafkaHandlerWithWriter(w messageWriter) *KafkaHandler {
	return &KafkaHandler{writer: w}
}

func (h *KafkaHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	msg := kafka.Message{
		Topic: entry.Type,
		Key:   []byte(entry.Aggregate),
		Value: entry.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(entry.ID.String())},
			{Key: "event_type", Value: []byte(entry.Type)},
		},
	}
	if err := h.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: kafka write %s: %w", entry.Type, err)
	}
	return nil
}

func (h *KafkaHandler) Close() error {
	return h.writer.Close()
}

// SplitBrokers parses a comma-separated broker list.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
