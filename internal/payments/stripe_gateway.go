package payments

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-booking/internal/appointments"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

var stripeTracer = otel.Tracer("salon.internal.payments.stripe")

// StripeGateway starts appointment charges as Stripe PaymentIntents. Booking
// charges are authorized and captured later; balance charges capture at once.
// The client confirms the intent with its client secret and the outcome
// arrives through StripeWebhookHandler.
type StripeGateway struct {
	intents  *paymentintent.Client
	currency string
	logger   *logging.Logger
	dryRun   bool
}

// GatewayOption customizes a StripeGateway.
type GatewayOption func(*StripeGateway)

// WithBaseURL overrides the Stripe API base URL (for testing).
func WithBaseURL(baseURL string, httpClient *http.Client) GatewayOption {
	return func(g *StripeGateway) {
		if baseURL == "" {
			return
		}
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 10 * time.Second}
		}
		maxRetries := int64(0)
		g.intents.B = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(strings.TrimRight(baseURL, "/")),
			HTTPClient:        httpClient,
			MaxNetworkRetries: &maxRetries,
		})
	}
}

// WithCurrency sets the ISO currency code. Defaults to usd.
func WithCurrency(code string) GatewayOption {
	return func(g *StripeGateway) {
		if code = strings.ToLower(strings.TrimSpace(code)); code != "" {
			g.currency = code
		}
	}
}

// WithDryRun logs charges instead of calling Stripe.
func WithDryRun(enabled bool) GatewayOption {
	return func(g *StripeGateway) {
		g.dryRun = enabled
	}
}

// NewStripeGateway creates a gateway. An empty secret key switches to dry run.
func NewStripeGateway(secretKey string, logger *logging.Logger, opts ...GatewayOption) *StripeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	g := &StripeGateway{
		intents:  &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		currency: string(stripe.CurrencyUSD),
		logger:   logger,
		dryRun:   strings.TrimSpace(secretKey) == "",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// InitiatePayment creates the PaymentIntent for a booking or balance charge.
// Retries for the same appointment version reuse one intent.
func (g *StripeGateway) InitiatePayment(ctx context.Context, appt *appointments.Appointment, amountCents int64, purpose appointments.PaymentPurpose) error {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_intent")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.appointment_id", appt.ID),
		attribute.String("salon.payment_purpose", string(purpose)),
		attribute.Int64("salon.amount_cents", amountCents),
	)

	if amountCents <= 0 {
		return fmt.Errorf("payments: amount must be positive, got %d", amountCents)
	}
	if g.dryRun {
		g.logger.Info("payments: stripe dry run, skipping payment intent",
			"appointment_id", appt.ID, "purpose", purpose, "amount_cents", amountCents,
			"intent_id", "pi_dryrun_"+uuid.New().String()[:8])
		return nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(g.currency),
		Description: stripe.String(describe(appt, purpose)),
	}
	params.Context = ctx
	if purpose == appointments.PurposeBooking {
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	} else {
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic))
	}
	if email := strings.TrimSpace(appt.Client.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	params.AddMetadata(MetadataAppointmentID, appt.ID)
	params.AddMetadata(MetadataPurpose, string(purpose))
	params.AddMetadata("stylist_id", appt.StylistID)
	params.AddMetadata("client_id", appt.ClientID)
	params.SetIdempotencyKey(fmt.Sprintf("appt-%s-%s-v%d", appt.ID, purpose, appt.Version))

	pi, err := g.intents.New(params)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("payments: stripe create payment intent: %w", err)
	}
	g.logger.Info("payments: payment intent created",
		"appointment_id", appt.ID, "intent_id", pi.ID, "purpose", purpose, "amount_cents", amountCents)
	return nil
}

func describe(appt *appointments.Appointment, purpose appointments.PaymentPurpose) string {
	name := appt.Service.Name
	if name == "" {
		name = "appointment"
	}
	if purpose == appointments.PurposeBalance {
		return fmt.Sprintf("Balance for %s", name)
	}
	return fmt.Sprintf("Booking for %s", name)
}

var _ appointments.PaymentInitiator = (*StripeGateway)(nil)
