package availability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-booking/internal/apperr"
	"github.com/wolfman30/salon-booking/internal/clock"
	"github.com/wolfman30/salon-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-booking/internal/schedule"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

// 2024-06-10 is a Monday.
const monday = "2024-06-10"

type stubBookings struct {
	bookings []Booking
	err      error

	gotExclude string
}

func (s *stubBookings) ListForStylistDate(_ context.Context, _, _, excludeID string) ([]Booking, error) {
	s.gotExclude = excludeID
	if s.err != nil {
		return nil, s.err
	}
	var out []Booking
	for _, b := range s.bookings {
		if b.ID != excludeID {
			out = append(out, b)
		}
	}
	return out, nil
}

type stubSchedules struct {
	sch *schedule.Schedule
	err error
}

func (s *stubSchedules) Get(_ context.Context, id string) (*schedule.Schedule, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.sch == nil {
		return nil, apperr.ErrNotFound
	}
	return s.sch, nil
}

func workday(start, end clock.TimeOfDay) *schedule.Schedule {
	sch := schedule.Default("sty-1")
	sch.WorkHours["monday"] = schedule.WorkDay{IsEnabled: true, Start: start, End: end}
	return sch
}

func newResolver(t *testing.T, bookings *stubBookings, sch *schedule.Schedule) *Resolver {
	t.Helper()
	return NewResolver(bookings, &stubSchedules{sch: sch}, logging.Default(), metrics.NewBookingMetrics(prometheus.NewRegistry()))
}

func check(t *testing.T, r *Resolver, start string, duration int) Result {
	t.Helper()
	tod, err := clock.Parse(start)
	require.NoError(t, err)
	res, err := r.CheckConflicts(context.Background(), Window("sty-1", monday, tod, duration, ""))
	require.NoError(t, err)
	return res
}

func TestBreakBoundaryIsNotAConflict(t *testing.T) {
	sch := workday(clock.At(9, 0), clock.At(18, 0))
	sch.Breaks = []schedule.Break{{Name: "Lunch", Start: clock.At(12, 0), End: clock.At(13, 0), Days: []string{"monday"}}}
	r := newResolver(t, &stubBookings{}, sch)

	assert.False(t, check(t, r, "11:00", 60).HasConflict, "ending at break start must be free")
	assert.False(t, check(t, r, "13:00", 60).HasConflict, "starting at break end must be free")

	res := check(t, r, "11:30", 60)
	require.True(t, res.HasConflict)
	assert.Equal(t, OutcomeConflict, res.Outcome)
	assert.Contains(t, res.Conflicts[0], "Lunch")
}

func TestBreakOnOtherWeekdayIgnored(t *testing.T) {
	sch := workday(clock.At(9, 0), clock.At(18, 0))
	sch.Breaks = []schedule.Break{{Name: "Lunch", Start: clock.At(12, 0), End: clock.At(13, 0), Days: []string{"tuesday"}}}
	r := newResolver(t, &stubBookings{}, sch)
	assert.False(t, check(t, r, "12:00", 30).HasConflict)
}

func TestBufferAfterConflict(t *testing.T) {
	sch := workday(clock.At(9, 0), clock.At(18, 0))
	sch.BufferTime = schedule.Buffer{After: 15}
	bookings := &stubBookings{bookings: []Booking{{ID: "b-1", ClientName: "Jordan", Start: clock.At(10, 0), DurationMinutes: 60}}}
	r := newResolver(t, bookings, sch)

	res := check(t, r, "11:10", 30)
	require.True(t, res.HasConflict)
	require.Len(t, res.Conflicts, 1)
	assert.Contains(t, res.Conflicts[0], "Jordan")

	assert.False(t, check(t, r, "11:15", 30).HasConflict)
}

func TestBufferBeforeIsNotApplied(t *testing.T) {
	sch := workday(clock.At(9, 0), clock.At(18, 0))
	sch.BufferTime = schedule.Buffer{Before: 30, After: 0}
	bookings := &stubBookings{bookings: []Booking{{ID: "b-1", Start: clock.At(10, 0), DurationMinutes: 60}}}
	r := newResolver(t, bookings, sch)

	// A 30-minute "before" buffer would push this into conflict; only "after" counts.
	assert.False(t, check(t, r, "09:30", 30).HasConflict)
	assert.False(t, check(t, r, "11:00", 30).HasConflict)
}

func TestWorkHoursRejection(t *testing.T) {
	r := newResolver(t, &stubBookings{}, workday(clock.At(9, 0), clock.At(17, 0)))

	late := check(t, r, "16:30", 60)
	require.True(t, late.HasConflict)
	assert.Equal(t, []string{"Extends past work hours (17:00)"}, late.Conflicts)

	early := check(t, r, "08:30", 60)
	require.True(t, early.HasConflict)
	assert.Equal(t, []string{"Starts before work hours (09:00)"}, early.Conflicts)

	both := check(t, r, "08:00", 600)
	assert.Len(t, both.Conflicts, 2)
}

func TestDisabledDayYieldsExactlyOneReason(t *testing.T) {
	sch := workday(clock.At(9, 0), clock.At(17, 0))
	sch.WorkHours["monday"] = schedule.WorkDay{IsEnabled: false, Start: clock.At(9, 0), End: clock.At(17, 0)}
	sch.Breaks = []schedule.Break{{Name: "Lunch", Start: clock.At(12, 0), End: clock.At(13, 0), Days: []string{"monday"}}}
	bookings := &stubBookings{bookings: []Booking{{ID: "b-1", Start: clock.At(12, 0), DurationMinutes: 60}}}
	r := newResolver(t, bookings, sch)

	for _, start := range []string{"06:00", "12:00", "16:30", "22:00"} {
		res := check(t, r, start, 60)
		require.Len(t, res.Conflicts, 1, "start %s", start)
		assert.Equal(t, "Stylist is not available on Monday", res.Conflicts[0])
	}
}

func TestConflictsAccumulate(t *testing.T) {
	sch := workday(clock.At(9, 0), clock.At(12, 30))
	sch.Breaks = []schedule.Break{{Name: "Lunch", Start: clock.At(12, 0), End: clock.At(13, 0), Days: []string{"monday"}}}
	bookings := &stubBookings{bookings: []Booking{{ID: "b-1", ClientName: "Sam", Start: clock.At(11, 0), DurationMinutes: 60}}}
	r := newResolver(t, bookings, sch)

	res := check(t, r, "11:30", 90)
	require.Len(t, res.Conflicts, 3)
	assert.True(t, strings.HasPrefix(res.Conflicts[0], "Conflicts with existing booking"))
	assert.True(t, strings.HasPrefix(res.Conflicts[1], "Overlaps break"))
	assert.True(t, strings.HasPrefix(res.Conflicts[2], "Extends past work hours"))
}

func TestExcludeBookingID(t *testing.T) {
	bookings := &stubBookings{bookings: []Booking{{ID: "self", Start: clock.At(10, 0), DurationMinutes: 60}}}
	r := newResolver(t, bookings, workday(clock.At(9, 0), clock.At(17, 0)))

	res, err := r.CheckConflicts(context.Background(), Window("sty-1", monday, clock.At(10, 30), 60, "self"))
	require.NoError(t, err)
	assert.False(t, res.HasConflict)
	assert.Equal(t, "self", bookings.gotExclude)
}

func TestFailsOpenWhenBookingsUnavailable(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewResolver(&stubBookings{err: errors.New("connection refused")}, &stubSchedules{sch: workday(clock.At(9, 0), clock.At(17, 0))}, logging.Default(), metrics.NewBookingMetrics(reg))

	res, err := r.CheckConflicts(context.Background(), Window("sty-1", monday, clock.At(10, 0), 60, ""))
	require.NoError(t, err)
	assert.False(t, res.HasConflict)
	assert.Equal(t, OutcomeUnavailable, res.Outcome)
}

func TestFailsOpenWhenScheduleUnavailable(t *testing.T) {
	r := NewResolver(&stubBookings{}, &stubSchedules{err: errors.New("timeout")}, logging.Default(), nil)
	res, err := r.CheckConflicts(context.Background(), Window("sty-1", monday, clock.At(10, 0), 60, ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnavailable, res.Outcome)
}

func TestMissingScheduleUsesDefaults(t *testing.T) {
	r := newResolver(t, &stubBookings{}, nil)
	assert.False(t, check(t, r, "10:00", 60).HasConflict)
	assert.True(t, check(t, r, "16:30", 60).HasConflict)
}

func TestServicePastMidnightIsAConflict(t *testing.T) {
	r := newResolver(t, &stubBookings{}, workday(clock.At(18, 0), clock.At(23, 30)))

	req := Window("sty-1", monday, clock.At(23, 0), 90, "")
	assert.Equal(t, "00:30", req.End.String())

	res, err := r.CheckConflicts(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.HasConflict)
	assert.Equal(t, OutcomeConflict, res.Outcome)
	assert.Equal(t, []string{"Extends past work hours (23:30)"}, res.Conflicts)

	assert.False(t, check(t, r, "22:00", 90).HasConflict)
}

func TestValidationErrors(t *testing.T) {
	r := newResolver(t, &stubBookings{}, nil)
	cases := []CheckRequest{
		{StylistID: "", Date: monday, Start: clock.At(10, 0), End: clock.At(11, 0)},
		{StylistID: "sty-1", Date: "10/06/2024", Start: clock.At(10, 0), End: clock.At(11, 0)},
		{StylistID: "sty-1", Date: monday, Start: clock.At(11, 0), End: clock.At(10, 0)},
		Window("sty-1", monday, clock.At(10, 0), -30, ""),
		{StylistID: "sty-1", Date: monday, Start: clock.At(25, 0), End: clock.At(26, 0)},
	}
	for _, req := range cases {
		_, err := r.CheckConflicts(context.Background(), req)
		var ve *apperr.ValidationError
		assert.True(t, errors.As(err, &ve), "expected validation error for %+v, got %v", req, err)
	}
}

func TestHasSimpleConflictIgnoresBuffer(t *testing.T) {
	sch := workday(clock.At(9, 0), clock.At(18, 0))
	sch.BufferTime = schedule.Buffer{After: 15}
	bookings := &stubBookings{bookings: []Booking{{ID: "b-1", Start: clock.At(10, 0), DurationMinutes: 60}}}
	r := newResolver(t, bookings, sch)

	assert.False(t, r.HasSimpleConflict(context.Background(), Window("sty-1", monday, clock.At(11, 0), 30, "")))
	assert.True(t, r.HasSimpleConflict(context.Background(), Window("sty-1", monday, clock.At(10, 30), 30, "")))

	failing := newResolver(t, &stubBookings{err: errors.New("down")}, sch)
	assert.False(t, failing.HasSimpleConflict(context.Background(), Window("sty-1", monday, clock.At(10, 30), 30, "")))
}

func TestFreeSlots(t *testing.T) {
	sch := workday(clock.At(9, 0), clock.At(12, 0))
	sch.Breaks = []schedule.Break{{Name: "Coffee", Start: clock.At(10, 0), End: clock.At(10, 30), Days: []string{"monday"}}}
	bookings := &stubBookings{bookings: []Booking{{ID: "b-1", Start: clock.At(11, 0), DurationMinutes: 30}}}
	r := newResolver(t, bookings, sch)

	slots, err := r.FreeSlots(context.Background(), "sty-1", monday, 30, 30)
	require.NoError(t, err)
	var got []string
	for _, s := range slots {
		got = append(got, s.String())
	}
	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:30"}, got)
}

func TestFreeSlotsDisabledDay(t *testing.T) {
	r := newResolver(t, &stubBookings{}, schedule.Default("sty-1"))
	slots, err := r.FreeSlots(context.Background(), "sty-1", "2024-06-09", 30, 15)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestFreeSlotsPropagatesStoreFailure(t *testing.T) {
	r := newResolver(t, &stubBookings{err: errors.New("down")}, nil)
	_, err := r.FreeSlots(context.Background(), "sty-1", monday, 30, 15)
	var ue *apperr.UpstreamError
	assert.True(t, errors.As(err, &ue))
}
