package appointments

import (
	"time"
)

// Action names a transition of the state machine.
type Action string

const (
	ActionBook                Action = "book"
	ActionAccept              Action = "accept"
	ActionReject              Action = "reject"
	ActionCancel              Action = "cancel"
	ActionComplete            Action = "complete"
	ActionExpirePending       Action = "expire_pending"
	ActionFailBooking         Action = "fail_booking"
	ActionRequestPayment      Action = "request_payment"
	ActionPaymentAuthorized   Action = "payment_authorized"
	ActionPaymentCaptured     Action = "payment_captured"
	ActionPaymentPaid         Action = "payment_paid"
	ActionPaymentFailed       Action = "payment_failed"
	ActionPaymentRefunded     Action = "payment_refunded"
	ActionExpireAuthorization Action = "expire_authorization"
	ActionProposeReschedule   Action = "propose_reschedule"
	ActionAcceptReschedule    Action = "accept_reschedule"
	ActionRejectReschedule    Action = "reject_reschedule"
	ActionWithdrawReschedule  Action = "withdraw_reschedule"
)

// rule is one row of the transition table. Empty source sets match any value;
// empty targets leave the axis unchanged.
type rule struct {
	fromStatus    []Status
	fromPayment   []PaymentStatus
	exceptStatus  []Status
	exceptPayment []PaymentStatus
	guard         func(a *Appointment) bool

	toStatus  Status
	toPayment PaymentStatus
	apply     func(next *Appointment, now time.Time)

	// callback rules acknowledge a record already in the target payment state
	// without writing.
	callback bool
}

var reschedulable = []Status{StatusPending, StatusConfirmed}

var transitions = map[Action]rule{
	ActionAccept: {
		fromStatus: []Status{StatusPending},
		toStatus:   StatusConfirmed,
	},
	ActionReject: {
		fromStatus: []Status{StatusPending},
		toStatus:   StatusRejected,
		apply:      releaseHold,
	},
	ActionExpirePending: {
		fromStatus: []Status{StatusPending},
		toStatus:   StatusCancelled,
		apply:      releaseHold,
	},
	ActionCancel: {
		fromStatus: []Status{StatusConfirmed, StatusToBePaid},
		toStatus:   StatusCancelled,
		apply:      releaseAuthorization,
	},
	ActionComplete: {
		fromStatus: []Status{StatusConfirmed},
		toStatus:   StatusCompleted,
	},
	ActionFailBooking: {
		exceptStatus: []Status{StatusFailed},
		toStatus:     StatusFailed,
		toPayment:    PaymentFailed,
		apply:        stampFailure,
	},
	ActionRequestPayment: {
		fromStatus:  []Status{StatusConfirmed},
		fromPayment: []PaymentStatus{PaymentPaid, PaymentCaptured},
		guard:       func(a *Appointment) bool { return a.PaymentType == PaymentTypeDeposit },
		toStatus:    StatusToBePaid,
		toPayment:   PaymentPending,
		apply: func(next *Appointment, now time.Time) {
			t := now
			next.PaymentRequestedAt = &t
		},
	},
	ActionPaymentAuthorized: {
		fromPayment: []PaymentStatus{PaymentPending},
		toPayment:   PaymentAuthorized,
		callback:    true,
	},
	ActionPaymentCaptured: {
		fromPayment: []PaymentStatus{PaymentAuthorized},
		toPayment:   PaymentCaptured,
		callback:    true,
	},
	ActionPaymentPaid: {
		fromPayment: []PaymentStatus{PaymentPending, PaymentAuthorized, PaymentCaptured},
		// A balance request resets payment to pending, and the balance charge
		// settles straight to paid.
		guard: func(a *Appointment) bool {
			return a.PaymentStatus == PaymentCaptured || a.Status == StatusToBePaid
		},
		toPayment: PaymentPaid,
		apply: func(next *Appointment, _ time.Time) {
			if next.Status == StatusToBePaid {
				next.Status = StatusConfirmed
			}
		},
		callback: true,
	},
	ActionPaymentFailed: {
		exceptPayment: []PaymentStatus{PaymentFailed},
		toPayment:     PaymentFailed,
		apply:         stampFailure,
		callback:      true,
	},
	ActionPaymentRefunded: {
		fromPayment: []PaymentStatus{PaymentPaid},
		toPayment:   PaymentRefunded,
		callback:    true,
	},
	ActionExpireAuthorization: {
		fromPayment: []PaymentStatus{PaymentPending},
		toPayment:   PaymentExpired,
	},
	ActionProposeReschedule: {
		fromStatus: reschedulable,
		guard:      func(a *Appointment) bool { return a.RescheduleProposal == nil },
	},
	ActionAcceptReschedule: {
		fromStatus: reschedulable,
		guard:      hasProposal,
		apply: func(next *Appointment, _ time.Time) {
			next.DateTime = next.RescheduleProposal.ProposedDateTime
			next.RescheduleProposal = nil
		},
	},
	ActionRejectReschedule: {
		fromStatus: reschedulable,
		guard:      hasProposal,
		apply:      clearProposal,
	},
	ActionWithdrawReschedule: {
		fromStatus: reschedulable,
		guard:      hasProposal,
		apply:      clearProposal,
	},
}

func hasProposal(a *Appointment) bool { return a.RescheduleProposal != nil }

func clearProposal(next *Appointment, _ time.Time) { next.RescheduleProposal = nil }

// releaseHold cancels an uncaptured authorization when the booking ends.
func releaseHold(next *Appointment, _ time.Time) {
	if next.PaymentStatus == PaymentAuthorized || next.PaymentStatus == PaymentCaptured {
		next.PaymentStatus = PaymentCancelled
	}
}

// releaseAuthorization voids an open authorization. Captured and paid funds
// stay as they are and leave through the refund path.
func releaseAuthorization(next *Appointment, _ time.Time) {
	if next.PaymentStatus == PaymentAuthorized {
		next.PaymentStatus = PaymentCancelled
	}
}

func stampFailure(next *Appointment, now time.Time) {
	t := now
	next.PaymentFailedAt = &t
}

// Allowed reports whether action may run against a's current state.
func Allowed(a *Appointment, action Action) bool {
	r, ok := transitions[action]
	if !ok {
		return false
	}
	return r.matches(a)
}

// Settled reports whether a payment callback finds the record already in its
// target state, in which case it is acknowledged without a write.
func Settled(a *Appointment, action Action) bool {
	r, ok := transitions[action]
	if !ok || !r.callback {
		return false
	}
	if action == ActionPaymentPaid {
		return a.PaymentStatus == PaymentPaid && a.Status != StatusToBePaid
	}
	return a.PaymentStatus == r.toPayment
}

// Plan returns the next state of a after action, or a StaleStateError when the
// transition is not legal from the current state. a is never modified.
func Plan(a *Appointment, action Action, now time.Time) (*Appointment, error) {
	r, ok := transitions[action]
	if !ok || !r.matches(a) {
		return nil, staleFor(a, action)
	}
	next := a.Clone()
	if r.toStatus != "" {
		next.Status = r.toStatus
	}
	if r.toPayment != "" {
		next.PaymentStatus = r.toPayment
	}
	if r.apply != nil {
		r.apply(next, now)
	}
	next.UpdatedAt = now
	return next, nil
}

func (r rule) matches(a *Appointment) bool {
	if len(r.fromStatus) > 0 && !containsStatus(r.fromStatus, a.Status) {
		return false
	}
	if containsStatus(r.exceptStatus, a.Status) {
		return false
	}
	if len(r.fromPayment) > 0 && !containsPayment(r.fromPayment, a.PaymentStatus) {
		return false
	}
	if containsPayment(r.exceptPayment, a.PaymentStatus) {
		return false
	}
	if r.guard != nil && !r.guard(a) {
		return false
	}
	return true
}

func staleFor(a *Appointment, action Action) *StaleStateError {
	return &StaleStateError{
		ID:            a.ID,
		Action:        string(action),
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
	}
}

func containsStatus(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsPayment(set []PaymentStatus, p PaymentStatus) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}
