package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salon-booking/internal/apperr"
	"github.com/wolfman30/salon-booking/internal/availability"
	"github.com/wolfman30/salon-booking/internal/clock"
	"github.com/wolfman30/salon-booking/internal/identity"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

// Handler exposes the appointment engine over HTTP.
type Handler struct {
	service    *Service
	logger     *logging.Logger
	bookLimits []func(http.Handler) http.Handler
	stream     http.Handler
}

// NewHandler creates an appointments handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("appointments: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// WithBookingLimit wraps the booking endpoint, typically with a per-viewer
// rate limit.
func (h *Handler) WithBookingLimit(mw func(http.Handler) http.Handler) *Handler {
	if mw != nil {
		h.bookLimits = append(h.bookLimits, mw)
	}
	return h
}

// WithStream mounts the live appointment stream at /v1/appointments/stream.
func (h *Handler) WithStream(stream http.Handler) *Handler {
	h.stream = stream
	return h
}

// Routes registers the appointment and stylist availability endpoints. The
// caller is expected to have installed viewer authentication.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/appointments", func(r chi.Router) {
		r.Get("/", h.List)
		r.With(h.bookLimits...).Post("/", h.Book)
		if h.stream != nil {
			r.Get("/stream", h.stream.ServeHTTP)
		}
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/accept", h.act(h.service.Accept))
			r.Post("/reject", h.act(h.service.Reject))
			r.Post("/cancel", h.act(h.service.Cancel))
			r.Post("/complete", h.act(h.service.Complete))
			r.Post("/request-payment", h.act(h.service.RequestRemainingPayment))
			r.Post("/reschedule", h.ProposeReschedule)
			r.Post("/reschedule/accept", h.act(h.service.AcceptReschedule))
			r.Post("/reschedule/reject", h.act(h.service.RejectReschedule))
			r.Post("/reschedule/withdraw", h.act(h.service.WithdrawReschedule))
		})
	})
	r.Get("/v1/stylists/{stylistID}/availability", h.CheckAvailability)
	r.Get("/v1/stylists/{stylistID}/slots", h.FreeSlots)
}

// appointmentView is the caller-facing shape of an appointment. Times are
// localized to the viewer.
type appointmentView struct {
	*Appointment
	DisplayStatus string `json:"displayStatus"`
	ViewerRole    Role   `json:"viewerRole"`
}

func viewOf(a *Appointment, viewer identity.Viewer) appointmentView {
	loc := clock.Location(viewer.Timezone)
	local := a.Clone()
	local.DateTime = local.DateTime.In(loc)
	if local.RescheduleProposal != nil {
		local.RescheduleProposal.ProposedDateTime = local.RescheduleProposal.ProposedDateTime.In(loc)
	}
	role, _ := a.RoleOf(viewer.ID)
	return appointmentView{Appointment: local, DisplayStatus: a.Display(), ViewerRole: role}
}

type bookBody struct {
	StylistID   string      `json:"stylistId"`
	DateTime    time.Time   `json:"dateTime"`
	Service     Offering    `json:"service"`
	PaymentType PaymentType `json:"paymentType"`
	Client      struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"client"`
}

// Book handles POST /v1/appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerOrUnauthorized(w, r)
	if !ok {
		return
	}
	var body bookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperr.Write(w, apperr.Invalid("body", "invalid JSON"))
		return
	}
	appt, err := h.service.BookAppointment(r.Context(), BookRequest{
		Client: Party{
			ID:       viewer.ID,
			Name:     strings.TrimSpace(body.Client.Name),
			Email:    strings.TrimSpace(body.Client.Email),
			Phone:    strings.TrimSpace(body.Client.Phone),
			Timezone: viewer.Timezone,
		},
		StylistID:   body.StylistID,
		DateTime:    body.DateTime,
		Service:     body.Service,
		PaymentType: body.PaymentType,
	})
	if err != nil {
		h.writeError(w, "book", err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, viewOf(appt, viewer))
}

// Get handles GET /v1/appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerOrUnauthorized(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), viewer.ID)
	if err != nil {
		h.writeError(w, "get", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, viewOf(appt, viewer))
}

// List handles GET /v1/appointments?role=client|stylist.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerOrUnauthorized(w, r)
	if !ok {
		return
	}
	role := Role(r.URL.Query().Get("role"))
	if role == "" {
		role = RoleClient
	}
	appts, err := h.service.List(r.Context(), viewer.ID, role)
	if err != nil {
		h.writeError(w, "list", err)
		return
	}
	out := make([]appointmentView, 0, len(appts))
	for i := range appts {
		out = append(out, viewOf(&appts[i], viewer))
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

// act adapts a viewer-scoped transition to a handler.
func (h *Handler) act(fn func(ctx context.Context, id, viewerID string) (*Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := viewerOrUnauthorized(w, r)
		if !ok {
			return
		}
		appt, err := fn(r.Context(), chi.URLParam(r, "id"), viewer.ID)
		if err != nil {
			h.writeError(w, "transition", err)
			return
		}
		apperr.WriteJSON(w, http.StatusOK, viewOf(appt, viewer))
	}
}

// ProposeReschedule handles POST /v1/appointments/{id}/reschedule.
func (h *Handler) ProposeReschedule(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Invalid("body", "invalid JSON"))
		return
	}
	req.AppointmentID = chi.URLParam(r, "id")
	req.ViewerID = viewer.ID
	appt, err := h.service.ProposeReschedule(r.Context(), req)
	if err != nil {
		h.writeError(w, "propose reschedule", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, viewOf(appt, viewer))
}

// CheckAvailability handles GET /v1/stylists/{stylistID}/availability.
// With mode=simple it only answers whether another booking overlaps the slot.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil {
		apperr.Write(w, apperr.Invalid("duration", "must be a number of minutes"))
		return
	}
	if q.Get("mode") == "simple" {
		taken, err := h.service.SlotTaken(r.Context(), chi.URLParam(r, "stylistID"), q.Get("date"), q.Get("time"), duration, q.Get("exclude"))
		if err != nil {
			h.writeError(w, "check slot", err)
			return
		}
		apperr.WriteJSON(w, http.StatusOK, map[string]bool{"taken": taken})
		return
	}
	res, err := h.service.CheckAvailability(r.Context(), chi.URLParam(r, "stylistID"), q.Get("date"), q.Get("time"), duration, q.Get("exclude"))
	if err != nil {
		h.writeError(w, "check availability", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, availabilityBody(res))
}

// FreeSlots handles GET /v1/stylists/{stylistID}/slots.
func (h *Handler) FreeSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil {
		apperr.Write(w, apperr.Invalid("duration", "must be a number of minutes"))
		return
	}
	slots, err := h.service.FreeSlots(r.Context(), chi.URLParam(r, "stylistID"), q.Get("date"), duration)
	if err != nil {
		h.writeError(w, "free slots", err)
		return
	}
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"date": q.Get("date"), "slots": out})
}

func availabilityBody(res availability.Result) map[string]any {
	conflicts := res.Conflicts
	if conflicts == nil {
		conflicts = []string{}
	}
	return map[string]any{
		"hasConflict": res.HasConflict,
		"conflicts":   conflicts,
		"outcome":     res.Outcome,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	if status, _ := apperr.Status(err); status >= http.StatusInternalServerError {
		h.logger.Error("appointments: "+op+" failed", "error", err)
	}
	apperr.Write(w, err)
}

func viewerOrUnauthorized(w http.ResponseWriter, r *http.Request) (identity.Viewer, bool) {
	viewer, ok := identity.ViewerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return viewer, ok
}
