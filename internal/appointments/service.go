package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salon-booking/internal/apperr"
	"github.com/wolfman30/salon-booking/internal/availability"
	"github.com/wolfman30/salon-booking/internal/clock"
	"github.com/wolfman30/salon-booking/internal/notify"
	"github.com/wolfman30/salon-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-booking/internal/schedule"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

// Resolver is the advisory conflict check.
type Resolver interface {
	CheckConflicts(ctx context.Context, req availability.CheckRequest) (availability.Result, error)
	HasSimpleConflict(ctx context.Context, req availability.CheckRequest) bool
	FreeSlots(ctx context.Context, stylistID, date string, durationMinutes, stepMinutes int) ([]clock.TimeOfDay, error)
}

// ChangePublisher announces a committed change to live views.
type ChangePublisher interface {
	Publish(ctx context.Context, appt *Appointment) error
}

// PaymentPurpose tells the gateway what a charge is for.
type PaymentPurpose string

const (
	PurposeBooking PaymentPurpose = "booking"
	PurposeBalance PaymentPurpose = "balance"
)

// PaymentInitiator starts a charge with the payment gateway. Outcomes arrive
// later through the payment callbacks.
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, appt *Appointment, amountCents int64, purpose PaymentPurpose) error
}

const (
	defaultNotifyTimeout  = 10 * time.Second
	defaultPendingWindow  = 24 * time.Hour
	defaultAuthTimeout    = 30 * time.Minute
	defaultSweepBatchSize = 100
)

// Service owns the appointment lifecycle. Every write goes through the
// repository's conditional update; side effects run after commit.
type Service struct {
	repo      Repository
	resolver  Resolver
	schedules schedule.Reader
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
	tracer    trace.Tracer

	notifier  notify.Notifier
	publisher ChangePublisher
	payments  PaymentInitiator

	now           func() time.Time
	newID         func() string
	dispatch      func(func())
	notifyTimeout time.Duration
	pendingWindow time.Duration
	authTimeout   time.Duration
	sweepBatch    int
}

// Option customizes a Service.
type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithPublisher(p ChangePublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithPaymentInitiator(p PaymentInitiator) Option {
	return func(s *Service) { s.payments = p }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides uuid generation for new appointments.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithDispatcher replaces the goroutine used for after-commit side effects.
func WithDispatcher(d func(func())) Option {
	return func(s *Service) {
		if d != nil {
			s.dispatch = d
		}
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithExpiryPolicy sets how long a booking may stay pending and how long a
// payment may stay unauthorized.
func WithExpiryPolicy(pending, authorization time.Duration) Option {
	return func(s *Service) {
		if pending > 0 {
			s.pendingWindow = pending
		}
		if authorization > 0 {
			s.authTimeout = authorization
		}
	}
}

func NewService(repo Repository, resolver Resolver, schedules schedule.Reader, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if resolver == nil {
		panic("appointments: resolver required")
	}
	if schedules == nil {
		panic("appointments: schedule reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:          repo,
		resolver:      resolver,
		schedules:     schedules,
		logger:        logger,
		tracer:        otel.Tracer("salon.internal.appointments"),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.NewString() },
		dispatch:      func(fn func()) { go fn() },
		notifyTimeout: defaultNotifyTimeout,
		pendingWindow: defaultPendingWindow,
		authTimeout:   defaultAuthTimeout,
		sweepBatch:    defaultSweepBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// BookRequest is a client's request for a slot.
type BookRequest struct {
	Client      Party       `json:"-"`
	StylistID   string      `json:"stylistId"`
	DateTime    time.Time   `json:"dateTime"`
	Service     Offering    `json:"service"`
	PaymentType PaymentType `json:"paymentType"`
}

func (r *BookRequest) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(r.Client.ID) == "":
		return apperr.Invalid("clientId", "is required")
	case strings.TrimSpace(r.StylistID) == "":
		return apperr.Invalid("stylistId", "is required")
	case r.StylistID == r.Client.ID:
		return apperr.Invalid("stylistId", "cannot book yourself")
	case r.DateTime.IsZero():
		return apperr.Invalid("dateTime", "is required")
	case !r.DateTime.After(now):
		return apperr.Invalid("dateTime", "must be in the future")
	case strings.TrimSpace(r.Service.Name) == "":
		return apperr.Invalid("service.name", "is required")
	case r.Service.DurationMinutes <= 0:
		return apperr.Invalid("service.durationMinutes", "must be positive")
	case r.Service.PriceCents < 0 || r.Service.DepositCents < 0:
		return apperr.Invalid("service", "amounts cannot be negative")
	}
	switch r.PaymentType {
	case PaymentTypeFull:
	case PaymentTypeDeposit:
		if r.Service.DepositCents <= 0 || r.Service.DepositCents >= r.Service.PriceCents {
			return apperr.Invalid("service.depositCents", "must be positive and below the price for deposit bookings")
		}
	default:
		return apperr.Invalid("paymentType", "must be deposit or full")
	}
	return nil
}

// BookAppointment creates a pending appointment after an advisory conflict
// check. The repository's uniqueness check is what actually reserves the slot.
func (s *Service) BookAppointment(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(attribute.String("salon.stylist_id", req.StylistID))

	now := s.now()
	if err := req.validate(now); err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}
	sch, err := s.loadSchedule(ctx, req.StylistID)
	if err != nil {
		s.metrics.ObserveBooking("error")
		return nil, err
	}
	date, start, err := slotFor(req.DateTime, req.Service.DurationMinutes, sch.Location())
	if err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}

	check, err := s.resolver.CheckConflicts(ctx, availability.Window(req.StylistID, date, start, req.Service.DurationMinutes, ""))
	if err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}
	if check.HasConflict {
		s.metrics.ObserveBooking("conflict")
		return nil, &ConflictError{Reasons: check.Conflicts}
	}

	appt := &Appointment{
		ID:        s.newID(),
		ClientID:  req.Client.ID,
		StylistID: req.StylistID,
		Client:    req.Client,
		Stylist: Party{
			ID:       sch.StylistID,
			Name:     sch.Name,
			Email:    sch.Email,
			Phone:    sch.Phone,
			Timezone: sch.Timezone,
		},
		DateTime:      req.DateTime.UTC(),
		SlotDate:      date,
		SlotTime:      start.String(),
		Service:       req.Service,
		PaymentType:   req.PaymentType,
		TotalAmount:   req.Service.PriceCents,
		DepositAmount: req.Service.DepositCents,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	appt.PaymentAmount = appt.TotalAmount
	if appt.PaymentType == PaymentTypeDeposit {
		appt.PaymentAmount = appt.DepositAmount
	}

	if err := s.repo.Create(ctx, appt); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveBooking("conflict")
			return nil, &ConflictError{Reasons: []string{slotTakenReason}}
		}
		s.metrics.ObserveBooking("error")
		span.RecordError(err)
		return nil, apperr.Upstream("appointments: create", err)
	}
	s.metrics.ObserveBooking("booked")
	s.logger.Info("appointments: booked", "appointment_id", appt.ID, "stylist_id", appt.StylistID, "client_id", appt.ClientID, "slot", appt.SlotDate+" "+appt.SlotTime)
	s.afterCommit(ctx, appt, ActionBook, "")

	if s.payments != nil && appt.PaymentAmount > 0 {
		if err := s.payments.InitiatePayment(ctx, appt, appt.PaymentAmount, PurposeBooking); err != nil {
			s.logger.Warn("appointments: booking payment failed", "error", err, "appointment_id", appt.ID)
			if _, ferr := s.FailBooking(ctx, appt.ID, err.Error()); ferr != nil {
				s.logger.Error("appointments: marking booking failed", "error", ferr, "appointment_id", appt.ID)
			}
			return nil, apperr.Upstream("appointments: initiate booking payment", err)
		}
	}
	return appt, nil
}

// Get returns an appointment the viewer is a party to.
func (s *Service) Get(ctx context.Context, id, viewerID string) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := appt.RoleOf(viewerID); !ok {
		return nil, ErrForbidden
	}
	return appt, nil
}

// CheckAvailability runs the advisory resolver for a candidate slot given as
// stylist-local date and HH:mm.
func (s *Service) CheckAvailability(ctx context.Context, stylistID, date, start string, durationMinutes int, excludeID string) (availability.Result, error) {
	tod, err := clock.Parse(start)
	if err != nil {
		return availability.Result{}, apperr.Invalid("time", "must be HH:mm")
	}
	if durationMinutes <= 0 {
		return availability.Result{}, apperr.Invalid("duration", "must be positive")
	}
	return s.resolver.CheckConflicts(ctx, availability.Window(stylistID, date, tod, durationMinutes, excludeID))
}

// SlotTaken reports whether another booking already overlaps the slot,
// ignoring buffers, breaks and work hours. It fails open.
func (s *Service) SlotTaken(ctx context.Context, stylistID, date, start string, durationMinutes int, excludeID string) (bool, error) {
	tod, err := clock.Parse(start)
	if err != nil {
		return false, apperr.Invalid("time", "must be HH:mm")
	}
	if durationMinutes <= 0 {
		return false, apperr.Invalid("duration", "must be positive")
	}
	return s.resolver.HasSimpleConflict(ctx, availability.Window(stylistID, date, tod, durationMinutes, excludeID)), nil
}

// FreeSlots lists bookable start times on a stylist-local date.
func (s *Service) FreeSlots(ctx context.Context, stylistID, date string, durationMinutes int) ([]clock.TimeOfDay, error) {
	if durationMinutes <= 0 {
		return nil, apperr.Invalid("duration", "must be positive")
	}
	return s.resolver.FreeSlots(ctx, stylistID, date, durationMinutes, 0)
}

func (s *Service) load(ctx context.Context, id string) (*Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Invalid("id", "is required")
	}
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperr.Upstream("appointments: get", err)
	}
	return appt, nil
}

func (s *Service) loadSchedule(ctx context.Context, stylistID string) (*schedule.Schedule, error) {
	sch, err := s.schedules.Get(ctx, stylistID)
	if err == nil {
		return sch, nil
	}
	if errors.Is(err, ErrNotFound) {
		return schedule.Default(stylistID), nil
	}
	return nil, &UpstreamError{Op: "appointments: load schedule", Err: err}
}

// slotFor converts an instant to the stylist-local slot. Services must end
// before local midnight.
func slotFor(instant time.Time, durationMinutes int, loc *time.Location) (string, clock.TimeOfDay, error) {
	date, start := clock.Split(instant, loc)
	if start.Minutes()+durationMinutes >= clock.MinutesPerDay {
		return "", clock.TimeOfDay{}, apperr.Invalid("dateTime", "service must end before local midnight")
	}
	return date, start, nil
}

// transition applies action to the stored record. authorize runs before the
// state check; mutate runs on the planned next state.
func (s *Service) transition(ctx context.Context, id string, action Action, authorize func(*Appointment) (Role, error), mutate func(current, next *Appointment) error) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments."+string(action))
	defer span.End()
	span.SetAttributes(attribute.String("salon.appointment_id", id))

	current, err := s.load(ctx, id)
	if err != nil {
		s.metrics.ObserveTransition(string(action), "error")
		return nil, err
	}
	var actor Role
	if authorize != nil {
		if actor, err = authorize(current); err != nil {
			s.metrics.ObserveTransition(string(action), "forbidden")
			return nil, err
		}
	}
	return s.commit(ctx, current, action, actor, mutate)
}

func (s *Service) commit(ctx context.Context, current *Appointment, action Action, actor Role, mutate func(current, next *Appointment) error) (*Appointment, error) {
	next, err := Plan(current, action, s.now())
	if err != nil {
		s.metrics.ObserveTransition(string(action), "stale")
		return nil, err
	}
	if mutate != nil {
		if err := mutate(current, next); err != nil {
			s.metrics.ObserveTransition(string(action), "rejected")
			return nil, err
		}
	}

	saved, err := s.repo.ApplyTransition(ctx, current, next, action)
	if err != nil {
		switch {
		case errors.Is(err, ErrVersionMismatch):
			s.metrics.ObserveTransition(string(action), "stale")
			return nil, staleFor(current, action)
		case errors.Is(err, ErrSlotTaken):
			s.metrics.ObserveTransition(string(action), "conflict")
			return nil, &ConflictError{Reasons: []string{slotTakenReason}}
		default:
			s.metrics.ObserveTransition(string(action), "error")
			return nil, apperr.Upstream("appointments: apply "+string(action), err)
		}
	}
	s.metrics.ObserveTransition(string(action), "applied")
	s.logger.Info("appointments: transition applied",
		"appointment_id", saved.ID,
		"action", action,
		"status", saved.Status,
		"payment_status", saved.PaymentStatus,
		"version", saved.Version,
	)
	s.afterCommit(ctx, saved, action, actor)
	return saved, nil
}

// requireRole admits only the given side of the appointment.
func requireRole(viewerID string, want Role) func(*Appointment) (Role, error) {
	return func(a *Appointment) (Role, error) {
		role, ok := a.RoleOf(viewerID)
		if !ok || role != want {
			return "", fmt.Errorf("appointments: %s only: %w", want, ErrForbidden)
		}
		return role, nil
	}
}

// requireParty admits either side of the appointment.
func requireParty(viewerID string) func(*Appointment) (Role, error) {
	return func(a *Appointment) (Role, error) {
		role, ok := a.RoleOf(viewerID)
		if !ok {
			return "", ErrForbidden
		}
		return role, nil
	}
}

// List returns the viewer's appointments on one side, most recently updated first.
func (s *Service) List(ctx context.Context, viewerID string, role Role) ([]Appointment, error) {
	if strings.TrimSpace(viewerID) == "" {
		return nil, ErrForbidden
	}
	if role != RoleClient && role != RoleStylist {
		return nil, apperr.Invalid("role", "must be client or stylist")
	}
	appts, err := s.repo.ListByParty(ctx, role, viewerID)
	if err != nil {
		return nil, apperr.Upstream("appointments: list", err)
	}
	return appts, nil
}
