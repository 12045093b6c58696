package notify

import (
	"context"
	"time"
)

// Kind selects the template for a notification.
type Kind string

const (
	KindBookingRequested    Kind = "booking_requested"
	KindBookingReceived     Kind = "booking_received"
	KindBookingAccepted     Kind = "booking_accepted"
	KindBookingRejected     Kind = "booking_rejected"
	KindBookingCancelled    Kind = "booking_cancelled"
	KindBookingExpired      Kind = "booking_expired"
	KindBookingCompleted    Kind = "booking_completed"
	KindBookingFailed       Kind = "booking_failed"
	KindPaymentRequested    Kind = "payment_requested"
	KindPaymentReceived     Kind = "payment_received"
	KindPaymentFailed       Kind = "payment_failed"
	KindPaymentRefunded     Kind = "payment_refunded"
	KindRescheduleProposed  Kind = "reschedule_proposed"
	KindRescheduleAccepted  Kind = "reschedule_accepted"
	KindRescheduleRejected  Kind = "reschedule_rejected"
	KindRescheduleWithdrawn Kind = "reschedule_withdrawn"
)

// Recipient is a contact snapshot. Email and SMS are each sent only when the
// matching field is present.
type Recipient struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Data fills a template.
type Data struct {
	AppointmentID    string     `json:"appointmentId"`
	ServiceName      string     `json:"serviceName"`
	CounterpartyName string     `json:"counterpartyName"`
	StartsAt         time.Time  `json:"startsAt"`
	ProposedAt       *time.Time `json:"proposedAt,omitempty"`
	Status           string     `json:"status"`
	Reason           string     `json:"reason,omitempty"`
	AmountCents      int64      `json:"amountCents,omitempty"`
}

// Notifier delivers one notification to one recipient.
type Notifier interface {
	Notify(ctx context.Context, to Recipient, kind Kind, data Data) error
}
