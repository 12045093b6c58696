package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaHandlerKeysByAggregate(t *testing.T) {
	w := &fakeWriter{}
	h := newKafkaHandlerWithWriter(w)
	id := uuid.New()

	err := h.Handle(context.Background(), OutboxEntry{
		ID:        id,
		Aggregate: "appointment:a-1",
		Type:      AppointmentChangedType,
		Payload:   []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != AppointmentChangedType || string(msg.Key) != "appointment:a-1" {
		t.Fatalf("unexpected message routing: topic=%s key=%s", msg.Topic, msg.Key)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != id.String() {
		t.Fatalf("unexpected headers: %#v", msg.Headers)
	}
}

func TestKafkaHandlerWrapsWriteError(t *testing.T) {
	h := newKafkaHandlerWithWriter(&fakeWriter{err: errors.New("broker down")})
	if err := h.Handle(context.Background(), OutboxEntry{Type: "t"}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
}
