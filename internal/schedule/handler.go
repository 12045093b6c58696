package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/salon-booking/internal/apperr"
	"github.com/wolfman30/salon-booking/internal/identity"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

// Store reads and writes schedules.
type Store interface {
	Reader
	Save(ctx context.Context, sch *Schedule) error
}

// Handler serves the owning stylist's schedule settings.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a schedule handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if store == nil {
		panic("schedule: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// GetMine handles GET /v1/stylists/me/schedule. Stylists without a saved
// schedule see the onboarding defaults.
func (h *Handler) GetMine(w http.ResponseWriter, r *http.Request) {
	viewer, ok := identity.ViewerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sch, err := h.store.Get(r.Context(), viewer.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		sch, err = Default(viewer.ID), nil
	}
	if err != nil {
		h.logger.Error("schedule: load failed", "error", err, "stylist_id", viewer.ID)
		apperr.Write(w, apperr.Upstream("load schedule", err))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, sch)
}

// PutMine handles PUT /v1/stylists/me/schedule.
func (h *Handler) PutMine(w http.ResponseWriter, r *http.Request) {
	viewer, ok := identity.ViewerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var sch Schedule
	if err := json.NewDecoder(r.Body).Decode(&sch); err != nil {
		apperr.Write(w, apperr.Invalid("body", "invalid JSON"))
		return
	}
	sch.StylistID = viewer.ID
	if err := h.store.Save(r.Context(), &sch); err != nil {
		var ve *apperr.ValidationError
		if !errors.As(err, &ve) {
			h.logger.Error("schedule: save failed", "error", err, "stylist_id", viewer.ID)
			err = apperr.Upstream("save schedule", err)
		}
		apperr.Write(w, err)
		return
	}
	h.logger.Info("schedule: updated", "stylist_id", viewer.ID, "breaks", len(sch.Breaks))
	apperr.WriteJSON(w, http.StatusOK, sch)
}
