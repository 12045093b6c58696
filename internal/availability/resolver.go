// Package availability decides whether a proposed interval is bookable for a
// stylist and explains why when it is not.
//
// Results are advisory. The check reads without locking and fails open when
// the record store is unavailable, so a clear result is never a booking
// guarantee: the authoritative decision is the write-time uniqueness check in
// the appointment repository.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salon-booking/internal/apperr"
	"github.com/wolfman30/salon-booking/internal/clock"
	"github.com/wolfman30/salon-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-booking/internal/schedule"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

// Outcome distinguishes the three results a caller renders differently.
type Outcome string

const (
	OutcomeClear       Outcome = "clear"
	OutcomeConflict    Outcome = "conflict"
	OutcomeUnavailable Outcome = "unavailable"
)

// Booking is an existing slot-holding appointment on the checked date.
type Booking struct {
	ID              string
	ClientName      string
	Start           clock.TimeOfDay
	DurationMinutes int
}

// BookingSource lists a stylist's slot-holding bookings for one local date.
type BookingSource interface {
	ListForStylistDate(ctx context.Context, stylistID, date, excludeID string) ([]Booking, error)
}

// CheckRequest describes a candidate interval on a stylist-local date.
//
// When DurationMinutes is non-zero it defines the interval and End is only the
// wall-clock label, which wraps for services that run past midnight.
type CheckRequest struct {
	StylistID       string
	Date            string
	Start           clock.TimeOfDay
	End             clock.TimeOfDay
	DurationMinutes int
	ExcludeID       string
}

// Window builds a CheckRequest for a service of the given duration.
func Window(stylistID, date string, start clock.TimeOfDay, durationMinutes int, excludeID string) CheckRequest {
	return CheckRequest{
		StylistID:       stylistID,
		Date:            date,
		Start:           start,
		End:             clock.FromMinutes(start.Minutes() + durationMinutes),
		DurationMinutes: durationMinutes,
		ExcludeID:       excludeID,
	}
}

// Result is the outcome of a conflict check.
type Result struct {
	HasConflict bool     `json:"hasConflict"`
	Conflicts   []string `json:"conflicts"`
	Outcome     Outcome  `json:"outcome"`
}

// Resolver evaluates work hours, breaks, buffers and existing bookings.
type Resolver struct {
	bookings  BookingSource
	schedules schedule.Reader
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
	tracer    trace.Tracer
}

// NewResolver creates a resolver.
func NewResolver(bookings BookingSource, schedules schedule.Reader, logger *logging.Logger, m *metrics.BookingMetrics) *Resolver {
	if bookings == nil {
		panic("availability: booking source required")
	}
	if schedules == nil {
		panic("availability: schedule reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		bookings:  bookings,
		schedules: schedules,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("salon.internal.availability"),
	}
}

// CheckConflicts gathers every reason the candidate interval is not bookable.
// Only malformed input returns an error. Store failures yield OutcomeUnavailable
// with HasConflict=false.
func (r *Resolver) CheckConflicts(ctx context.Context, req CheckRequest) (Result, error) {
	started := time.Now()
	ctx, span := r.tracer.Start(ctx, "availability.check_conflicts")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.stylist_id", req.StylistID),
		attribute.String("salon.date", req.Date),
	)

	date, candidate, err := validate(req)
	if err != nil {
		return Result{}, err
	}

	sch, err := r.loadSchedule(ctx, req.StylistID)
	if err != nil {
		span.RecordError(err)
		return r.failOpen(req, "schedule", err, started), nil
	}
	existing, err := r.bookings.ListForStylistDate(ctx, req.StylistID, req.Date, req.ExcludeID)
	if err != nil {
		span.RecordError(err)
		return r.failOpen(req, "bookings", err, started), nil
	}

	conflicts := Evaluate(sch, date.Weekday(), candidate, existing)
	res := Result{HasConflict: len(conflicts) > 0, Conflicts: conflicts, Outcome: OutcomeClear}
	if res.HasConflict {
		res.Outcome = OutcomeConflict
	}
	r.metrics.ObserveAvailability(string(res.Outcome), time.Since(started).Seconds())
	return res, nil
}

// HasSimpleConflict checks only booking-vs-booking overlap with no buffer.
// It fails open like CheckConflicts.
func (r *Resolver) HasSimpleConflict(ctx context.Context, req CheckRequest) bool {
	_, candidate, err := validate(req)
	if err != nil {
		return false
	}
	existing, err := r.bookings.ListForStylistDate(ctx, req.StylistID, req.Date, req.ExcludeID)
	if err != nil {
		r.logger.Warn("availability: simple check failed open", "error", err, "stylist_id", req.StylistID, "date", req.Date)
		return false
	}
	for _, b := range existing {
		if clock.Overlaps(candidate, clock.NewInterval(b.Start, b.DurationMinutes)) {
			return true
		}
	}
	return false
}

// FreeSlots lists start times within work hours at which a service of the
// given duration has no conflicts. Unlike CheckConflicts it does not fail open.
func (r *Resolver) FreeSlots(ctx context.Context, stylistID, date string, durationMinutes, stepMinutes int) ([]clock.TimeOfDay, error) {
	if durationMinutes <= 0 {
		return nil, apperr.Invalid("duration", "must be positive")
	}
	if stepMinutes <= 0 {
		stepMinutes = 15
	}
	day, err := clock.ParseDate(date)
	if err != nil {
		return nil, apperr.Invalid("date", "expected YYYY-MM-DD")
	}
	sch, err := r.loadSchedule(ctx, stylistID)
	if err != nil {
		return nil, apperr.Upstream("load schedule", err)
	}
	existing, err := r.bookings.ListForStylistDate(ctx, stylistID, date, "")
	if err != nil {
		return nil, apperr.Upstream("list bookings", err)
	}

	wd := day.Weekday()
	hours := sch.Day(wd)
	slots := []clock.TimeOfDay{}
	if !hours.IsEnabled {
		return slots, nil
	}
	for start := hours.Start.Minutes(); start+durationMinutes <= hours.End.Minutes(); start += stepMinutes {
		candidate := clock.Interval{Start: start, End: start + durationMinutes}
		if len(Evaluate(sch, wd, candidate, existing)) == 0 {
			slots = append(slots, clock.FromMinutes(start))
		}
	}
	return slots, nil
}

func (r *Resolver) loadSchedule(ctx context.Context, stylistID string) (*schedule.Schedule, error) {
	sch, err := r.schedules.Get(ctx, stylistID)
	if errors.Is(err, apperr.ErrNotFound) {
		return schedule.Default(stylistID), nil
	}
	if err != nil {
		return nil, err
	}
	return sch, nil
}

func (r *Resolver) failOpen(req CheckRequest, source string, err error, started time.Time) Result {
	r.logger.Warn("availability: check failed open",
		"error", err,
		"source", source,
		"stylist_id", req.StylistID,
		"date", req.Date,
	)
	r.metrics.ObserveAvailability(string(OutcomeUnavailable), time.Since(started).Seconds())
	return Result{HasConflict: false, Conflicts: []string{}, Outcome: OutcomeUnavailable}
}

func validate(req CheckRequest) (time.Time, clock.Interval, error) {
	if req.StylistID == "" {
		return time.Time{}, clock.Interval{}, apperr.Invalid("stylistId", "required")
	}
	date, err := clock.ParseDate(req.Date)
	if err != nil {
		return time.Time{}, clock.Interval{}, apperr.Invalid("date", "expected YYYY-MM-DD")
	}
	if !req.Start.Valid() {
		return time.Time{}, clock.Interval{}, apperr.Invalid("time", "hour or minute out of range")
	}
	if req.DurationMinutes != 0 {
		if req.DurationMinutes < 0 {
			return time.Time{}, clock.Interval{}, apperr.Invalid("duration", "must be positive")
		}
		return date, clock.NewInterval(req.Start, req.DurationMinutes), nil
	}
	if !req.End.Valid() {
		return time.Time{}, clock.Interval{}, apperr.Invalid("time", "hour or minute out of range")
	}
	if !req.Start.Before(req.End) {
		return time.Time{}, clock.Interval{}, apperr.Invalid("end", "must be after start on the same day")
	}
	return date, clock.Between(req.Start, req.End), nil
}

// Evaluate applies the conflict rules to an in-memory schedule and booking set.
//
// Buffering uses only BufferTime.After, applied to both the candidate and each
// existing booking; BufferTime.Before is not consulted. Breaks and work hours
// are checked against the unbuffered candidate.
func Evaluate(sch *schedule.Schedule, wd time.Weekday, candidate clock.Interval, existing []Booking) []string {
	conflicts := []string{}

	hours := sch.Day(wd)
	if !hours.IsEnabled {
		return append(conflicts, fmt.Sprintf("Stylist is not available on %s", wd))
	}

	padded := candidate
	if sch.HasBuffer() {
		padded = candidate.Extend(sch.BufferTime.After)
	}
	for _, b := range existing {
		other := clock.NewInterval(b.Start, b.DurationMinutes)
		if sch.HasBuffer() {
			other = other.Extend(sch.BufferTime.After)
		}
		if clock.Overlaps(padded, other) {
			name := b.ClientName
			if name == "" {
				name = "another client"
			}
			conflicts = append(conflicts, fmt.Sprintf("Conflicts with existing booking for %s (%s)",
				name, clock.NewInterval(b.Start, b.DurationMinutes)))
		}
	}

	for _, br := range sch.BreaksOn(wd) {
		if clock.Overlaps(candidate, clock.Between(br.Start, br.End)) {
			conflicts = append(conflicts, fmt.Sprintf("Overlaps break %q (%s-%s)", br.Name, br.Start, br.End))
		}
	}

	if candidate.Start < hours.Start.Minutes() {
		conflicts = append(conflicts, fmt.Sprintf("Starts before work hours (%s)", hours.Start))
	}
	if candidate.End > hours.End.Minutes() {
		conflicts = append(conflicts, fmt.Sprintf("Extends past work hours (%s)", hours.End))
	}
	return conflicts
}
