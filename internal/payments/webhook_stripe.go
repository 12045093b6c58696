package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/wolfman30/salon-booking/internal/apperr"
	"github.com/wolfman30/salon-booking/internal/appointments"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

const (
	providerStripe = "stripe"

	// MetadataAppointmentID ties a Stripe object back to the appointment.
	MetadataAppointmentID = "appointment_id"
	// MetadataPurpose records whether the charge is the booking or the balance.
	MetadataPurpose = "purpose"

	maxWebhookBody = 1 << 20
)

// Callbacks are the gateway outcomes the appointment engine accepts.
type Callbacks interface {
	PaymentAuthorized(ctx context.Context, id string) (*appointments.Appointment, error)
	PaymentCaptured(ctx context.Context, id string) (*appointments.Appointment, error)
	PaymentPaid(ctx context.Context, id string) (*appointments.Appointment, error)
	PaymentFailed(ctx context.Context, id, reason string) (*appointments.Appointment, error)
	PaymentRefunded(ctx context.Context, id string) (*appointments.Appointment, error)
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// StripeWebhookHandler turns Stripe events into appointment payment callbacks.
type StripeWebhookHandler struct {
	webhookSecret string
	tolerance     time.Duration
	callbacks     Callbacks
	processed     processedTracker
	logger        *logging.Logger
}

// NewStripeWebhookHandler creates a new handler for Stripe webhooks. A zero
// tolerance uses the library default.
func NewStripeWebhookHandler(webhookSecret string, tolerance time.Duration, callbacks Callbacks, processed processedTracker, logger *logging.Logger) *StripeWebhookHandler {
	if callbacks == nil {
		panic("payments: callbacks required")
	}
	if processed == nil {
		panic("payments: processed tracker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		tolerance:     tolerance,
		callbacks:     callbacks,
		processed:     processed,
		logger:        logger,
	}
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.webhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.Warn("payments: stripe signature rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	outcome, ok := decodeOutcome(evt)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	if processed, err := h.processed.AlreadyProcessed(r.Context(), providerStripe, evt.ID); err != nil {
		h.logger.Error("payments: processed lookup failed", "error", err, "event_id", evt.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if processed {
		w.WriteHeader(http.StatusOK)
		return
	}

	if outcome.appointmentID == "" {
		// Acknowledge so Stripe stops retrying; there is nothing to update.
		h.logger.Warn("payments: stripe event missing appointment metadata", "event_id", evt.ID, "event_type", evt.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.apply(r.Context(), outcome); err != nil {
		var stale *apperr.StaleStateError
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			h.logger.Warn("payments: stripe event for unknown appointment", "event_id", evt.ID, "appointment_id", outcome.appointmentID)
		case errors.As(err, &stale):
			h.logger.Warn("payments: stripe event out of order", "event_id", evt.ID, "appointment_id", outcome.appointmentID,
				"status", stale.Status, "payment_status", stale.PaymentStatus, "event_type", evt.Type)
		default:
			h.logger.Error("payments: stripe callback failed", "error", err, "event_id", evt.ID, "appointment_id", outcome.appointmentID)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
	}

	if _, err := h.processed.MarkProcessed(r.Context(), providerStripe, evt.ID); err != nil {
		h.logger.Error("payments: failed to record processed event", "error", err, "event_id", evt.ID)
	}
	h.logger.Info("payments: stripe event applied", "event_id", evt.ID, "event_type", evt.Type, "appointment_id", outcome.appointmentID)
	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) apply(ctx context.Context, o outcome) error {
	var err error
	switch o.action {
	case appointments.ActionPaymentAuthorized:
		_, err = h.callbacks.PaymentAuthorized(ctx, o.appointmentID)
	case appointments.ActionPaymentCaptured:
		_, err = h.callbacks.PaymentCaptured(ctx, o.appointmentID)
	case appointments.ActionPaymentPaid:
		_, err = h.callbacks.PaymentPaid(ctx, o.appointmentID)
	case appointments.ActionPaymentFailed:
		_, err = h.callbacks.PaymentFailed(ctx, o.appointmentID, o.reason)
	case appointments.ActionPaymentRefunded:
		_, err = h.callbacks.PaymentRefunded(ctx, o.appointmentID)
	}
	return err
}

type outcome struct {
	action        appointments.Action
	appointmentID string
	reason        string
}

// decodeOutcome maps a Stripe event onto a callback. Unhandled types return false.
func decodeOutcome(evt stripe.Event) (outcome, bool) {
	if evt.Data == nil {
		return outcome{}, false
	}
	switch evt.Type {
	case "payment_intent.amount_capturable_updated", "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return outcome{}, false
		}
		o := outcome{appointmentID: strings.TrimSpace(pi.Metadata[MetadataAppointmentID])}
		switch evt.Type {
		case "payment_intent.amount_capturable_updated":
			o.action = appointments.ActionPaymentAuthorized
		case "payment_intent.succeeded":
			o.action = appointments.ActionPaymentPaid
		default:
			o.action = appointments.ActionPaymentFailed
			o.reason = "payment failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				o.reason = pi.LastPaymentError.Msg
			}
		}
		return o, true
	case "charge.captured", "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return outcome{}, false
		}
		o := outcome{appointmentID: chargeAppointmentID(&ch), action: appointments.ActionPaymentCaptured}
		if evt.Type == "charge.refunded" {
			o.action = appointments.ActionPaymentRefunded
		}
		return o, true
	default:
		return outcome{}, false
	}
}

// chargeAppointmentID reads the charge metadata first, then the expanded
// payment intent when the event carries it.
func chargeAppointmentID(ch *stripe.Charge) string {
	if id := strings.TrimSpace(ch.Metadata[MetadataAppointmentID]); id != "" {
		return id
	}
	if ch.PaymentIntent != nil {
		return strings.TrimSpace(ch.PaymentIntent.Metadata[MetadataAppointmentID])
	}
	return ""
}
