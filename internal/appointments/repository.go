package appointments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/salon-booking/internal/events"
)

// SweepKind selects the records an expiry sweep considers.
type SweepKind string

const (
	// SweepStalePending finds pending bookings created before the cutoff.
	SweepStalePending SweepKind = "stale_pending"
	// SweepAuthorization finds payments still pending since before the cutoff.
	SweepAuthorization SweepKind = "authorization"
	// SweepCompletion finds confirmed bookings whose service ended before the cutoff.
	SweepCompletion SweepKind = "completion"
)

// Repository is the authoritative record store. Create and ApplyTransition
// enforce slot uniqueness and optimistic concurrency at write time; every
// other method is a plain read.
type Repository interface {
	// Create inserts a new record, returning ErrSlotTaken when a slot-holding
	// appointment already occupies the stylist's start time.
	Create(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	// ListForStylistDate returns slot-holding appointments on a stylist-local date.
	ListForStylistDate(ctx context.Context, stylistID, date, excludeID string) ([]Appointment, error)
	ListByParty(ctx context.Context, role Role, partyID string) ([]Appointment, error)
	// ApplyTransition writes next only if the stored record still matches
	// current's status, payment status and version. It returns
	// ErrVersionMismatch when it does not and ErrSlotTaken when a moved slot
	// collides.
	ApplyTransition(ctx context.Context, current, next *Appointment, action Action) (*Appointment, error)
	ListSweepCandidates(ctx context.Context, kind SweepKind, cutoff time.Time, limit int) ([]Appointment, error)
}

// closedStatuses end an appointment's lifecycle.
var closedStatuses = []Status{StatusRejected, StatusCancelled, StatusCompleted, StatusFailed}

// changeEvent describes a committed write for the outbox.
func changeEvent(action Action, appt *Appointment) (events.AppointmentChangedV1, error) {
	snapshot, err := json.Marshal(appt)
	if err != nil {
		return events.AppointmentChangedV1{}, err
	}
	return events.AppointmentChangedV1{
		AppointmentID: appt.ID,
		Action:        string(action),
		Status:        string(appt.Status),
		PaymentStatus: string(appt.PaymentStatus),
		ClientID:      appt.ClientID,
		StylistID:     appt.StylistID,
		DateTime:      appt.DateTime,
		Version:       appt.Version,
		Closed:        containsStatus(closedStatuses, appt.Status),
		OccurredAt:    appt.UpdatedAt,
		Snapshot:      snapshot,
	}, nil
}
