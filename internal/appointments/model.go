package appointments

import (
	"strings"
	"time"

	"github.com/wolfman30/salon-booking/internal/clock"
)

// Role is the side of an appointment a viewer is on.
type Role string

const (
	RoleClient  Role = "client"
	RoleStylist Role = "stylist"
)

// Status is the lifecycle axis of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusToBePaid  Status = "to-be-paid"
	StatusCompleted Status = "completed"
)

// PaymentStatus is the payment axis of an appointment, independent of Status.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentExpired    PaymentStatus = "expired"
)

// PaymentType is how much the client pays up front.
type PaymentType string

const (
	PaymentTypeDeposit PaymentType = "deposit"
	PaymentTypeFull    PaymentType = "full"
)

// SlotHolding lists the statuses that occupy a stylist's time. Rejected,
// cancelled and failed appointments release their slot.
var SlotHolding = []Status{StatusPending, StatusConfirmed, StatusToBePaid, StatusCompleted}

// HoldsSlot reports whether s occupies the stylist's time.
func (s Status) HoldsSlot() bool {
	return containsStatus(SlotHolding, s)
}

// Party is the contact snapshot for one side of an appointment.
type Party struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Offering is the service being booked, as defined by the stylist.
type Offering struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes"`
	PriceCents      int64  `json:"priceCents"`
	DepositCents    int64  `json:"depositCents"`
}

// RescheduleProposal is an outstanding offer to move the appointment. A nil
// proposal means none is outstanding.
type RescheduleProposal struct {
	ProposedBy       Role      `json:"proposedBy"`
	ProposedAt       time.Time `json:"proposedAt"`
	ProposedDateTime time.Time `json:"proposedDateTime"`
	Reason           string    `json:"reason,omitempty"`
}

// Appointment is the record shared by a client and a stylist.
type Appointment struct {
	ID        string `json:"id"`
	ClientID  string `json:"clientId"`
	StylistID string `json:"stylistId"`
	Client    Party  `json:"client"`
	Stylist   Party  `json:"stylist"`

	DateTime time.Time `json:"dateTime"`
	SlotDate string    `json:"slotDate"`
	SlotTime string    `json:"slotTime"`
	Service  Offering  `json:"service"`

	PaymentType   PaymentType `json:"paymentType"`
	PaymentAmount int64       `json:"paymentAmount"`
	TotalAmount   int64       `json:"totalAmount"`
	DepositAmount int64       `json:"depositAmount"`

	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`

	RescheduleProposal *RescheduleProposal `json:"rescheduleProposal,omitempty"`

	PaymentFailedAt      *time.Time `json:"paymentFailedAt,omitempty"`
	PaymentFailureReason string     `json:"paymentFailureReason,omitempty"`
	PaymentRequestedAt   *time.Time `json:"paymentRequestedAt,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EndsAt is the instant the service finishes.
func (a *Appointment) EndsAt() time.Time {
	return a.DateTime.Add(time.Duration(a.Service.DurationMinutes) * time.Minute)
}

// RoleOf returns the viewer's side of the appointment.
func (a *Appointment) RoleOf(viewerID string) (Role, bool) {
	switch viewerID {
	case "":
		return "", false
	case a.StylistID:
		return RoleStylist, true
	case a.ClientID:
		return RoleClient, true
	default:
		return "", false
	}
}

// PartyFor returns the contact snapshot for a role.
func (a *Appointment) PartyFor(role Role) Party {
	if role == RoleStylist {
		return a.Stylist
	}
	return a.Client
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleStylist {
		return RoleClient
	}
	return RoleStylist
}

// Clone returns a deep copy so transitions never mutate a caller's record.
func (a *Appointment) Clone() *Appointment {
	cp := *a
	if a.RescheduleProposal != nil {
		p := *a.RescheduleProposal
		cp.RescheduleProposal = &p
	}
	if a.PaymentFailedAt != nil {
		t := *a.PaymentFailedAt
		cp.PaymentFailedAt = &t
	}
	if a.PaymentRequestedAt != nil {
		t := *a.PaymentRequestedAt
		cp.PaymentRequestedAt = &t
	}
	return &cp
}

// BalanceDue is what remains after the deposit for deposit-only bookings.
func (a *Appointment) BalanceDue() int64 {
	if a.PaymentType != PaymentTypeDeposit {
		return 0
	}
	due := a.TotalAmount - a.DepositAmount
	if due < 0 {
		return 0
	}
	return due
}

// slot returns the stylist-local start for the resolver.
func (a *Appointment) slot() (clock.TimeOfDay, error) {
	return clock.Parse(a.SlotTime)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
