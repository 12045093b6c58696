package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/salon-booking/internal/appointments"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

// notice is the pub/sub payload. Subscribers refetch rather than trust it.
type notice struct {
	AppointmentID string `json:"appointmentId"`
	Version       int64  `json:"version"`
	Status        string `json:"status"`
}

// Publisher announces committed changes on both parties' channels.
type Publisher struct {
	client redis.UniversalClient
	logger *logging.Logger
}

func NewPublisher(client redis.UniversalClient, logger *logging.Logger) *Publisher {
	if client == nil {
		panic("realtime: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{client: client, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, appt *appointments.Appointment) error {
	payload, err := json.Marshal(notice{AppointmentID: appt.ID, Version: appt.Version, Status: string(appt.Status)})
	if err != nil {
		return fmt.Errorf("realtime: encode notice: %w", err)
	}
	filters := []Filter{
		{Field: appointments.RoleClient, Value: appt.ClientID},
		{Field: appointments.RoleStylist, Value: appt.StylistID},
	}
	var errs []error
	for _, f := range filters {
		if f.Value == "" {
			continue
		}
		if err := p.client.Publish(ctx, f.Channel(), payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("realtime: publish %s: %w", f.Channel(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.logger.Debug("realtime: change published", "appointment_id", appt.ID, "version", appt.Version)
	return nil
}

var _ appointments.ChangePublisher = (*Publisher)(nil)
