package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExec struct {
	sql  string
	args []any
}

type badEvent struct{}

func (badEvent) EventType() string { return "" }

func (s *stubExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.sql = sql
	s.args = args
	return pgconn.CommandTag{}, nil
}

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := NewEnvelope(AppointmentAggregate("appt-1"), "req-1", AppointmentChangedV1{
		AppointmentID: "appt-1",
		Action:        "accept",
		Status:        "confirmed",
		PaymentStatus: "pending",
		OccurredAt:    fixedNow,
	}, WithEventID(id))
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.EventID != id {
		t.Fatalf("expected event id override, got %s", env.EventID)
	}
	if env.TimestampMicros != fixedNow.UnixMicro() || !env.OccurredAt().Equal(fixedNow) {
		t.Fatalf("unexpected timestamp: %d", env.TimestampMicros)
	}
	if env.EventType != AppointmentChangedType {
		t.Fatalf("unexpected type: %s", env.EventType)
	}
	if env.Aggregate != "appointment:appt-1" {
		t.Fatalf("unexpected aggregate: %s", env.Aggregate)
	}

	var payload AppointmentChangedV1
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Status != "confirmed" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestNewEnvelopeValidation(t *testing.T) {
	if _, err := NewEnvelope(" ", "", AppointmentChangedV1{}); err == nil {
		t.Fatal("expected missing aggregate error")
	}
	if _, err := NewEnvelope("appointment:1", "", nil); err == nil {
		t.Fatal("expected nil event error")
	}
	if _, err := NewEnvelope("appointment:1", "", badEvent{}); !errors.Is(err, errMissingType) {
		t.Fatalf("expected missing event type error, got %v", err)
	}
}

func TestAppendCanonicalEvent(t *testing.T) {
	exec := &stubExec{}
	env, err := AppendCanonicalEvent(context.Background(), exec, AppointmentAggregate("appt-9"), "", AppointmentChangedV1{
		AppointmentID: "appt-9",
		Action:        "cancel",
		Closed:        true,
	})
	if err != nil {
		t.Fatalf("append canonical failed: %v", err)
	}
	if len(exec.args) != 4 {
		t.Fatalf("expected 4 exec args, got %#v", exec.args)
	}
	if exec.args[0] != env.EventID || exec.args[2] != AppointmentChangedType {
		t.Fatalf("unexpected args: %#v", exec.args)
	}

	decoded, err := DecodeEnvelope(exec.args[3].([]byte))
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if decoded.EventID != env.EventID || decoded.Aggregate != "appointment:appt-9" {
		t.Fatalf("unexpected decoded envelope: %#v", decoded)
	}
}

func TestAppendCanonicalEventRequiresExec(t *testing.T) {
	if _, err := AppendCanonicalEvent(context.Background(), nil, "appointment:1", "", AppointmentChangedV1{}); err == nil {
		t.Fatal("expected error for nil exec")
	}
}

func TestAppointmentAggregateRoundTrip(t *testing.T) {
	id, ok := AppointmentIDFromAggregate(AppointmentAggregate("abc"))
	if !ok || id != "abc" {
		t.Fatalf("expected abc, got %q %v", id, ok)
	}
	if _, ok := AppointmentIDFromAggregate("stylist:abc"); ok {
		t.Fatal("expected foreign aggregate to be rejected")
	}
}
