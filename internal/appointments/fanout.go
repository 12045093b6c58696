package appointments

import (
	"context"

	"github.com/wolfman30/salon-booking/internal/notify"
)

// notice is one message owed to one side of an appointment.
type notice struct {
	to   Role
	kind notify.Kind
}

// fanOut lists who hears about each committed action. actor is the role that
// triggered it, or empty for system and gateway actions.
func fanOut(a *Appointment, action Action, actor Role) []notice {
	switch action {
	case ActionBook:
		return []notice{{RoleStylist, notify.KindBookingRequested}, {RoleClient, notify.KindBookingReceived}}
	case ActionAccept:
		return []notice{{RoleClient, notify.KindBookingAccepted}}
	case ActionReject:
		return []notice{{RoleClient, notify.KindBookingRejected}}
	case ActionCancel:
		if actor == "" {
			return []notice{{RoleClient, notify.KindBookingCancelled}, {RoleStylist, notify.KindBookingCancelled}}
		}
		return []notice{{actor.Other(), notify.KindBookingCancelled}}
	case ActionExpirePending:
		return []notice{{RoleClient, notify.KindBookingExpired}, {RoleStylist, notify.KindBookingExpired}}
	case ActionComplete:
		return []notice{{RoleClient, notify.KindBookingCompleted}}
	case ActionFailBooking:
		return []notice{{RoleClient, notify.KindBookingFailed}}
	case ActionRequestPayment:
		return []notice{{RoleClient, notify.KindPaymentRequested}}
	case ActionPaymentPaid:
		return []notice{{RoleClient, notify.KindPaymentReceived}, {RoleStylist, notify.KindPaymentReceived}}
	case ActionPaymentFailed, ActionExpireAuthorization:
		return []notice{{RoleClient, notify.KindPaymentFailed}}
	case ActionPaymentRefunded:
		return []notice{{RoleClient, notify.KindPaymentRefunded}}
	case ActionProposeReschedule:
		return []notice{{actor.Other(), notify.KindRescheduleProposed}}
	case ActionAcceptReschedule:
		return []notice{{RoleClient, notify.KindRescheduleAccepted}, {RoleStylist, notify.KindRescheduleAccepted}}
	case ActionRejectReschedule:
		return []notice{{actor.Other(), notify.KindRescheduleRejected}}
	case ActionWithdrawReschedule:
		return []notice{{actor.Other(), notify.KindRescheduleWithdrawn}}
	}
	return nil
}

// afterCommit publishes the change and sends notifications without blocking
// the caller. Failures are logged and never undo the write.
func (s *Service) afterCommit(ctx context.Context, appt *Appointment, action Action, actor Role) {
	if s.publisher == nil && s.notifier == nil {
		return
	}
	snapshot := appt.Clone()
	notices := fanOut(snapshot, action, actor)
	base := context.WithoutCancel(ctx)
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(base, s.notifyTimeout)
		defer cancel()
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, snapshot); err != nil {
				s.logger.Warn("appointments: publish change failed", "error", err, "appointment_id", snapshot.ID, "action", action)
			}
		}
		if s.notifier == nil {
			return
		}
		for _, n := range notices {
			party := snapshot.PartyFor(n.to)
			err := s.notifier.Notify(ctx, recipient(party), n.kind, noticeData(snapshot, n.to, action))
			s.metrics.ObserveNotification(string(n.kind), err != nil)
			if err != nil {
				s.logger.Warn("appointments: notification failed", "error", err, "appointment_id", snapshot.ID, "kind", n.kind, "recipient", party.ID)
			}
		}
	})
}

func recipient(p Party) notify.Recipient {
	return notify.Recipient{
		UserID:   p.ID,
		Name:     p.Name,
		Email:    p.Email,
		Phone:    p.Phone,
		Timezone: p.Timezone,
	}
}

func noticeData(a *Appointment, to Role, action Action) notify.Data {
	data := notify.Data{
		AppointmentID:    a.ID,
		ServiceName:      a.Service.Name,
		CounterpartyName: a.PartyFor(to.Other()).Name,
		StartsAt:         a.DateTime,
		Status:           a.Display(),
	}
	switch action {
	case ActionProposeReschedule:
		if a.RescheduleProposal != nil {
			proposed := a.RescheduleProposal.ProposedDateTime
			data.ProposedAt = &proposed
			data.Reason = a.RescheduleProposal.Reason
		}
	case ActionPaymentFailed, ActionFailBooking:
		data.Reason = a.PaymentFailureReason
	case ActionExpireAuthorization:
		data.Reason = "the payment authorization expired"
	case ActionRequestPayment:
		data.AmountCents = a.BalanceDue()
	case ActionPaymentPaid, ActionPaymentRefunded:
		data.AmountCents = a.PaymentAmount
		if a.PaymentRequestedAt != nil {
			data.AmountCents = a.TotalAmount
		}
	}
	return data
}
