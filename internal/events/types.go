package events

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// AppointmentChangedType is emitted for every committed appointment transition.
	AppointmentChangedType = "appointments.appointment.changed.v1"

	appointmentAggregatePrefix = "appointment:"
)

// AppointmentChangedV1 records one committed transition. Snapshot carries the
// full record after the change so downstream consumers never read back.
type AppointmentChangedV1 struct {
	AppointmentID string          `json:"appointment_id"`
	Action        string          `json:"action"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	ClientID      string          `json:"client_id"`
	StylistID     string          `json:"stylist_id"`
	DateTime      time.Time       `json:"date_time"`
	Version       int64           `json:"version"`
	Closed        bool            `json:"closed"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Snapshot      json.RawMessage `json:"snapshot,omitempty"`
}

func (AppointmentChangedV1) EventType() string { return AppointmentChangedType }

// AppointmentAggregate is the outbox aggregate key for an appointment.
func AppointmentAggregate(id string) string {
	return appointmentAggregatePrefix + strings.TrimSpace(id)
}

// AppointmentIDFromAggregate reverses AppointmentAggregate.
func AppointmentIDFromAggregate(aggregate string) (string, bool) {
	if !strings.HasPrefix(aggregate, appointmentAggregatePrefix) {
		return "", false
	}
	id := strings.TrimPrefix(aggregate, appointmentAggregatePrefix)
	return id, id != ""
}
