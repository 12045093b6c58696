package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/salon-booking/pkg/logging"
)

// SMSSender sends one text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Service renders a template and sends it over every channel the recipient
// has a contact for.
type Service struct {
	email  EmailSender
	sms    SMSSender
	logger *logging.Logger
}

// NewService creates a notification service. Either sender may be nil.
func NewService(email EmailSender, sms SMSSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, sms: sms, logger: logger}
}

func (s *Service) Notify(ctx context.Context, to Recipient, kind Kind, data Data) error {
	msg, err := Render(kind, to, data)
	if err != nil {
		return err
	}

	var errs []error
	sent := 0
	if to.Email != "" && s.email != nil {
		err := s.email.Send(ctx, EmailMessage{
			To:      to.Email,
			ToName:  to.Name,
			Subject: msg.Subject,
			Body:    msg.Body,

			Kind:          kind,
			AppointmentID: data.AppointmentID,
		})
		if err != nil {
			s.logger.Error("notify: email failed", "error", err, "kind", kind, "user_id", to.UserID, "appointment_id", data.AppointmentID)
			errs = append(errs, err)
		} else {
			sent++
		}
	}
	if to.Phone != "" && s.sms != nil {
		if err := s.sms.SendSMS(ctx, to.Phone, msg.Body); err != nil {
			s.logger.Error("notify: sms failed", "error", err, "kind", kind, "user_id", to.UserID, "appointment_id", data.AppointmentID)
			errs = append(errs, err)
		} else {
			sent++
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d channel(s) failed: %w", len(errs), errors.Join(errs...))
	}
	if sent == 0 {
		s.logger.Debug("notify: recipient has no reachable channel", "kind", kind, "user_id", to.UserID)
		return nil
	}
	s.logger.Info("notify: sent", "kind", kind, "user_id", to.UserID, "appointment_id", data.AppointmentID, "channels", sent)
	return nil
}

var _ Notifier = (*Service)(nil)
