package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/salon-booking/internal/apperr"
	"github.com/wolfman30/salon-booking/internal/availability"
)

// Accept confirms a pending booking. Stylist only.
func (s *Service) Accept(ctx context.Context, id, viewerID string) (*Appointment, error) {
	return s.transition(ctx, id, ActionAccept, requireRole(viewerID, RoleStylist), nil)
}

// Reject declines a pending booking and releases any payment hold. Stylist only.
func (s *Service) Reject(ctx context.Context, id, viewerID string) (*Appointment, error) {
	return s.transition(ctx, id, ActionReject, requireRole(viewerID, RoleStylist), nil)
}

// Cancel ends a confirmed booking. Either party may cancel.
func (s *Service) Cancel(ctx context.Context, id, viewerID string) (*Appointment, error) {
	return s.transition(ctx, id, ActionCancel, requireParty(viewerID), nil)
}

// Complete marks a confirmed booking as done. Stylist only.
func (s *Service) Complete(ctx context.Context, id, viewerID string) (*Appointment, error) {
	return s.transition(ctx, id, ActionComplete, requireRole(viewerID, RoleStylist), nil)
}

// FailBooking marks a booking failed after an unrecoverable payment error.
func (s *Service) FailBooking(ctx context.Context, id, reason string) (*Appointment, error) {
	return s.transition(ctx, id, ActionFailBooking, nil, func(_, next *Appointment) error {
		next.PaymentFailureReason = strings.TrimSpace(reason)
		return nil
	})
}

// RequestRemainingPayment asks the client for the balance of a deposit
// booking. The balance charge is initiated after the state change commits.
func (s *Service) RequestRemainingPayment(ctx context.Context, id, viewerID string) (*Appointment, error) {
	saved, err := s.transition(ctx, id, ActionRequestPayment, requireRole(viewerID, RoleStylist), nil)
	if err != nil {
		return nil, err
	}
	if s.payments == nil {
		return saved, nil
	}
	if err := s.payments.InitiatePayment(ctx, saved, saved.BalanceDue(), PurposeBalance); err != nil {
		s.logger.Warn("appointments: balance payment failed", "error", err, "appointment_id", saved.ID)
		if _, ferr := s.PaymentFailed(ctx, saved.ID, err.Error()); ferr != nil {
			s.logger.Error("appointments: recording balance failure", "error", ferr, "appointment_id", saved.ID)
		}
		return nil, apperr.Upstream("appointments: initiate balance payment", err)
	}
	return saved, nil
}

// PaymentAuthorized records a gateway authorization.
func (s *Service) PaymentAuthorized(ctx context.Context, id string) (*Appointment, error) {
	return s.callback(ctx, id, ActionPaymentAuthorized, nil)
}

// PaymentCaptured records a captured authorization.
func (s *Service) PaymentCaptured(ctx context.Context, id string) (*Appointment, error) {
	return s.callback(ctx, id, ActionPaymentCaptured, nil)
}

// PaymentPaid records a settled payment. A paid balance returns the booking
// to confirmed.
func (s *Service) PaymentPaid(ctx context.Context, id string) (*Appointment, error) {
	return s.callback(ctx, id, ActionPaymentPaid, nil)
}

// PaymentFailed records a failed charge and its reason.
func (s *Service) PaymentFailed(ctx context.Context, id, reason string) (*Appointment, error) {
	return s.callback(ctx, id, ActionPaymentFailed, func(_, next *Appointment) error {
		next.PaymentFailureReason = strings.TrimSpace(reason)
		return nil
	})
}

// PaymentRefunded records a refund of a paid booking.
func (s *Service) PaymentRefunded(ctx context.Context, id string) (*Appointment, error) {
	return s.callback(ctx, id, ActionPaymentRefunded, nil)
}

// callback applies a gateway outcome. Replays that find the record already
// settled are acknowledged without writing.
func (s *Service) callback(ctx context.Context, id string, action Action, mutate func(current, next *Appointment) error) (*Appointment, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		s.metrics.ObserveTransition(string(action), "error")
		return nil, err
	}
	if Settled(current, action) {
		s.metrics.ObserveTransition(string(action), "settled")
		s.logger.Debug("appointments: callback already settled", "appointment_id", id, "action", action)
		return current, nil
	}
	return s.commit(ctx, current, action, "", mutate)
}

// ProposeRequest offers a new start time for an appointment.
type ProposeRequest struct {
	AppointmentID string    `json:"-"`
	ViewerID      string    `json:"-"`
	DateTime      time.Time `json:"dateTime"`
	Reason        string    `json:"reason"`
}

// ProposeReschedule records an offer to move the appointment. The proposed
// slot is checked against the stylist's calendar, ignoring the appointment
// itself.
func (s *Service) ProposeReschedule(ctx context.Context, req ProposeRequest) (*Appointment, error) {
	if req.DateTime.IsZero() {
		return nil, apperr.Invalid("dateTime", "is required")
	}
	if !req.DateTime.After(s.now()) {
		return nil, apperr.Invalid("dateTime", "must be in the future")
	}
	var role Role
	return s.transition(ctx, req.AppointmentID, ActionProposeReschedule,
		func(a *Appointment) (Role, error) {
			r, err := requireParty(req.ViewerID)(a)
			role = r
			return r, err
		},
		func(current, next *Appointment) error {
			if req.DateTime.Equal(current.DateTime) {
				return apperr.Invalid("dateTime", "must differ from the current time")
			}
			if _, _, err := s.checkMove(ctx, current, req.DateTime); err != nil {
				return err
			}
			next.RescheduleProposal = &RescheduleProposal{
				ProposedBy:       role,
				ProposedAt:       next.UpdatedAt,
				ProposedDateTime: req.DateTime.UTC(),
				Reason:           strings.TrimSpace(req.Reason),
			}
			return nil
		})
}

// AcceptReschedule moves the appointment to the proposed time. Only the party
// that did not propose may accept. The slot is re-checked; on conflict the
// proposal stays open.
func (s *Service) AcceptReschedule(ctx context.Context, id, viewerID string) (*Appointment, error) {
	return s.transition(ctx, id, ActionAcceptReschedule, requireCounterparty(viewerID), func(current, next *Appointment) error {
		date, start, err := s.checkMove(ctx, current, current.RescheduleProposal.ProposedDateTime)
		if err != nil {
			return err
		}
		next.SlotDate = date
		next.SlotTime = start
		return nil
	})
}

// RejectReschedule declines the open proposal. Only the party that did not
// propose may reject.
func (s *Service) RejectReschedule(ctx context.Context, id, viewerID string) (*Appointment, error) {
	return s.transition(ctx, id, ActionRejectReschedule, requireCounterparty(viewerID), nil)
}

// WithdrawReschedule retracts the viewer's own open proposal.
func (s *Service) WithdrawReschedule(ctx context.Context, id, viewerID string) (*Appointment, error) {
	return s.transition(ctx, id, ActionWithdrawReschedule, requireProposer(viewerID), nil)
}

// checkMove validates a new start time for appt and returns its local slot.
func (s *Service) checkMove(ctx context.Context, appt *Appointment, to time.Time) (string, string, error) {
	sch, err := s.loadSchedule(ctx, appt.StylistID)
	if err != nil {
		return "", "", err
	}
	date, start, err := slotFor(to, appt.Service.DurationMinutes, sch.Location())
	if err != nil {
		return "", "", err
	}
	check, err := s.resolver.CheckConflicts(ctx, availability.Window(appt.StylistID, date, start, appt.Service.DurationMinutes, appt.ID))
	if err != nil {
		return "", "", err
	}
	if check.HasConflict {
		return "", "", &ConflictError{Reasons: check.Conflicts}
	}
	return date, start.String(), nil
}

func requireCounterparty(viewerID string) func(*Appointment) (Role, error) {
	return func(a *Appointment) (Role, error) {
		role, ok := a.RoleOf(viewerID)
		if !ok {
			return "", ErrForbidden
		}
		if a.RescheduleProposal != nil && a.RescheduleProposal.ProposedBy == role {
			return "", apperr.Invalid("reschedule", "cannot answer your own proposal")
		}
		return role, nil
	}
}

func requireProposer(viewerID string) func(*Appointment) (Role, error) {
	return func(a *Appointment) (Role, error) {
		role, ok := a.RoleOf(viewerID)
		if !ok {
			return "", ErrForbidden
		}
		if a.RescheduleProposal != nil && a.RescheduleProposal.ProposedBy != role {
			return "", apperr.Invalid("reschedule", "only the proposer can withdraw")
		}
		return role, nil
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Scanned int
	Applied int
	Skipped int
	Failed  int
}

// ExpireStalePending cancels bookings left pending past the pending window.
func (s *Service) ExpireStalePending(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, SweepStalePending, s.now().Add(-s.pendingWindow), ActionExpirePending)
}

// ExpireAuthorizations expires payments that never authorized.
func (s *Service) ExpireAuthorizations(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, SweepAuthorization, s.now().Add(-s.authTimeout), ActionExpireAuthorization)
}

// CompletePast completes confirmed bookings whose service has ended.
func (s *Service) CompletePast(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, SweepCompletion, s.now(), ActionComplete)
}

func (s *Service) sweep(ctx context.Context, kind SweepKind, cutoff time.Time, action Action) (SweepResult, error) {
	var res SweepResult
	candidates, err := s.repo.ListSweepCandidates(ctx, kind, cutoff, s.sweepBatch)
	if err != nil {
		return res, apperr.Upstream("appointments: list "+string(kind)+" candidates", err)
	}
	res.Scanned = len(candidates)
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, err := s.commit(ctx, &candidates[i], action, "", nil)
		var stale *StaleStateError
		switch {
		case err == nil:
			res.Applied++
		case errors.As(err, &stale):
			res.Skipped++
		default:
			res.Failed++
			s.logger.Warn("appointments: sweep transition failed", "error", err, "kind", kind, "appointment_id", candidates[i].ID)
		}
	}
	if res.Scanned > 0 {
		s.logger.Info("appointments: sweep finished", "kind", kind, "scanned", res.Scanned, "applied", res.Applied, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}
