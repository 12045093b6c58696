package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Body is the JSON error envelope returned by HTTP handlers.
type Body struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Field   string   `json:"field,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// Status maps an error to its HTTP status and response body.
func Status(err error) (int, Body) {
	var (
		ve *ValidationError
		ce *ConflictError
		se *StaleStateError
		ue *UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, Body{Error: "validation", Message: ve.Message, Field: ve.Field}
	case errors.As(err, &ce):
		return http.StatusConflict, Body{Error: "conflict", Reasons: ce.Reasons}
	case errors.As(err, &se):
		return http.StatusConflict, Body{Error: "stale_state", Message: "refresh and retry"}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, Body{Error: "not_found"}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, Body{Error: "forbidden"}
	case errors.As(err, &ue):
		return http.StatusServiceUnavailable, Body{Error: "unavailable", Message: "please retry shortly"}
	default:
		return http.StatusInternalServerError, Body{Error: "internal"}
	}
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Write renders err using Status.
func Write(w http.ResponseWriter, err error) {
	status, body := Status(err)
	WriteJSON(w, status, body)
}
