package appointments

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var planTime = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func apptIn(status Status, payment PaymentStatus) *Appointment {
	return &Appointment{
		ID:            "a-1",
		ClientID:      "cli-1",
		StylistID:     "sty-1",
		DateTime:      time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC),
		SlotDate:      "2024-06-10",
		SlotTime:      "10:00",
		Service:       Offering{Name: "Cut", DurationMinutes: 60, PriceCents: 6000, DepositCents: 1500},
		PaymentType:   PaymentTypeFull,
		Status:        status,
		PaymentStatus: payment,
		Version:       3,
	}
}

func TestPlanStatusTransitions(t *testing.T) {
	tests := []struct {
		name        string
		action      Action
		status      Status
		payment     PaymentStatus
		wantStatus  Status
		wantPayment PaymentStatus
	}{
		{"accept pending", ActionAccept, StatusPending, PaymentPending, StatusConfirmed, PaymentPending},
		{"reject releases authorization", ActionReject, StatusPending, PaymentAuthorized, StatusRejected, PaymentCancelled},
		{"reject releases capture", ActionReject, StatusPending, PaymentCaptured, StatusRejected, PaymentCancelled},
		{"reject keeps pending payment", ActionReject, StatusPending, PaymentPending, StatusRejected, PaymentPending},
		{"expire pending", ActionExpirePending, StatusPending, PaymentAuthorized, StatusCancelled, PaymentCancelled},
		{"cancel confirmed", ActionCancel, StatusConfirmed, PaymentPaid, StatusCancelled, PaymentPaid},
		{"cancel to-be-paid", ActionCancel, StatusToBePaid, PaymentPending, StatusCancelled, PaymentPending},
		{"cancel releases authorization", ActionCancel, StatusConfirmed, PaymentAuthorized, StatusCancelled, PaymentCancelled},
		{"cancel keeps capture for refund", ActionCancel, StatusConfirmed, PaymentCaptured, StatusCancelled, PaymentCaptured},
		{"complete confirmed", ActionComplete, StatusConfirmed, PaymentPaid, StatusCompleted, PaymentPaid},
		{"fail booking", ActionFailBooking, StatusPending, PaymentPending, StatusFailed, PaymentFailed},
		{"authorized", ActionPaymentAuthorized, StatusPending, PaymentPending, StatusPending, PaymentAuthorized},
		{"captured", ActionPaymentCaptured, StatusConfirmed, PaymentAuthorized, StatusConfirmed, PaymentCaptured},
		{"paid from captured", ActionPaymentPaid, StatusConfirmed, PaymentCaptured, StatusConfirmed, PaymentPaid},
		{"paid settles balance", ActionPaymentPaid, StatusToBePaid, PaymentPending, StatusConfirmed, PaymentPaid},
		{"payment failed", ActionPaymentFailed, StatusConfirmed, PaymentAuthorized, StatusConfirmed, PaymentFailed},
		{"refunded", ActionPaymentRefunded, StatusCancelled, PaymentPaid, StatusCancelled, PaymentRefunded},
		{"authorization expired", ActionExpireAuthorization, StatusPending, PaymentPending, StatusPending, PaymentExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := apptIn(tt.status, tt.payment)
			next, err := Plan(current, tt.action, planTime)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, next.Status)
			assert.Equal(t, tt.wantPayment, next.PaymentStatus)
			assert.Equal(t, planTime, next.UpdatedAt)
			assert.Equal(t, tt.status, current.Status, "current must not be modified")
			assert.Equal(t, tt.payment, current.PaymentStatus, "current must not be modified")
		})
	}
}

func TestPlanRejectsIllegalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		status  Status
		payment PaymentStatus
	}{
		{"accept confirmed", ActionAccept, StatusConfirmed, PaymentPaid},
		{"reject confirmed", ActionReject, StatusConfirmed, PaymentPaid},
		{"cancel pending", ActionCancel, StatusPending, PaymentPending},
		{"cancel completed", ActionCancel, StatusCompleted, PaymentPaid},
		{"complete pending", ActionComplete, StatusPending, PaymentPending},
		{"fail twice", ActionFailBooking, StatusFailed, PaymentFailed},
		{"captured without authorization", ActionPaymentCaptured, StatusConfirmed, PaymentPending},
		{"paid without capture", ActionPaymentPaid, StatusConfirmed, PaymentAuthorized},
		{"failed twice", ActionPaymentFailed, StatusConfirmed, PaymentFailed},
		{"refund unpaid", ActionPaymentRefunded, StatusConfirmed, PaymentCaptured},
		{"expire authorized", ActionExpireAuthorization, StatusPending, PaymentAuthorized},
		{"propose on rejected", ActionProposeReschedule, StatusRejected, PaymentPending},
		{"propose on cancelled", ActionProposeReschedule, StatusCancelled, PaymentCancelled},
		{"accept reschedule without proposal", ActionAcceptReschedule, StatusConfirmed, PaymentPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(apptIn(tt.status, tt.payment), tt.action, planTime)
			var stale *StaleStateError
			require.True(t, errors.As(err, &stale), "expected StaleStateError, got %v", err)
			assert.Equal(t, string(tt.action), stale.Action)
			assert.Equal(t, string(tt.status), stale.Status)
			assert.False(t, Allowed(apptIn(tt.status, tt.payment), tt.action))
		})
	}
}

func TestRequestPaymentNeedsDepositBooking(t *testing.T) {
	full := apptIn(StatusConfirmed, PaymentPaid)
	if Allowed(full, ActionRequestPayment) {
		t.Fatal("full-payment bookings have no balance to request")
	}

	deposit := apptIn(StatusConfirmed, PaymentCaptured)
	deposit.PaymentType = PaymentTypeDeposit
	next, err := Plan(deposit, ActionRequestPayment, planTime)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if next.Status != StatusToBePaid || next.PaymentStatus != PaymentPending {
		t.Fatalf("unexpected state %s/%s", next.Status, next.PaymentStatus)
	}
	if next.PaymentRequestedAt == nil || !next.PaymentRequestedAt.Equal(planTime) {
		t.Fatalf("expected paymentRequestedAt to be stamped, got %v", next.PaymentRequestedAt)
	}
}

func TestFailureStampsTime(t *testing.T) {
	next, err := Plan(apptIn(StatusConfirmed, PaymentAuthorized), ActionPaymentFailed, planTime)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if next.PaymentFailedAt == nil || !next.PaymentFailedAt.Equal(planTime) {
		t.Fatalf("expected paymentFailedAt, got %v", next.PaymentFailedAt)
	}
}

func TestRescheduleTransitions(t *testing.T) {
	proposed := time.Date(2024, 6, 11, 14, 0, 0, 0, time.UTC)
	a := apptIn(StatusConfirmed, PaymentPaid)
	a.RescheduleProposal = &RescheduleProposal{ProposedBy: RoleClient, ProposedDateTime: proposed}

	if Allowed(a, ActionProposeReschedule) {
		t.Fatal("a second proposal must wait for the first to resolve")
	}

	accepted, err := Plan(a, ActionAcceptReschedule, planTime)
	require.NoError(t, err)
	assert.Equal(t, proposed, accepted.DateTime)
	assert.Nil(t, accepted.RescheduleProposal)
	assert.NotNil(t, a.RescheduleProposal, "current must keep its proposal")

	for _, action := range []Action{ActionRejectReschedule, ActionWithdrawReschedule} {
		next, err := Plan(a, action, planTime)
		require.NoError(t, err)
		assert.Nil(t, next.RescheduleProposal)
		assert.Equal(t, a.DateTime, next.DateTime)
	}
}

func TestSettled(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		status  Status
		payment PaymentStatus
		want    bool
	}{
		{"authorized replay", ActionPaymentAuthorized, StatusPending, PaymentAuthorized, true},
		{"captured replay", ActionPaymentCaptured, StatusConfirmed, PaymentCaptured, true},
		{"paid replay", ActionPaymentPaid, StatusConfirmed, PaymentPaid, true},
		{"refund replay", ActionPaymentRefunded, StatusCancelled, PaymentRefunded, true},
		{"failed replay", ActionPaymentFailed, StatusConfirmed, PaymentFailed, true},
		{"authorized fresh", ActionPaymentAuthorized, StatusPending, PaymentPending, false},
		{"paid balance pending", ActionPaymentPaid, StatusToBePaid, PaymentPending, false},
		{"non-callback", ActionAccept, StatusConfirmed, PaymentPending, false},
	}
	for _, tt := range tests {
		if got := Settled(apptIn(tt.status, tt.payment), tt.action); got != tt.want {
			t.Fatalf("%s: Settled = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHoldsSlot(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusToBePaid, StatusCompleted} {
		if !s.HoldsSlot() {
			t.Fatalf("%s should hold the slot", s)
		}
	}
	for _, s := range []Status{StatusRejected, StatusCancelled, StatusFailed} {
		if s.HoldsSlot() {
			t.Fatalf("%s should release the slot", s)
		}
	}
}
