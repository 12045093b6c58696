package appointments

import (
	"context"
	"fmt"

	"github.com/wolfman30/salon-booking/internal/availability"
)

// BookingSource adapts a Repository to the resolver's read interface.
type BookingSource struct {
	repo Repository
}

func NewBookingSource(repo Repository) *BookingSource {
	if repo == nil {
		panic("appointments: repository required")
	}
	return &BookingSource{repo: repo}
}

func (b *BookingSource) ListForStylistDate(ctx context.Context, stylistID, date, excludeID string) ([]availability.Booking, error) {
	appts, err := b.repo.ListForStylistDate(ctx, stylistID, date, excludeID)
	if err != nil {
		return nil, err
	}
	out := make([]availability.Booking, 0, len(appts))
	for i := range appts {
		start, err := appts[i].slot()
		if err != nil {
			return nil, fmt.Errorf("appointments: %s has invalid slot time %q: %w", appts[i].ID, appts[i].SlotTime, err)
		}
		out = append(out, availability.Booking{
			ID:              appts[i].ID,
			ClientName:      appts[i].Client.Name,
			Start:           start,
			DurationMinutes: appts[i].Service.DurationMinutes,
		})
	}
	return out, nil
}

var _ availability.BookingSource = (*BookingSource)(nil)
