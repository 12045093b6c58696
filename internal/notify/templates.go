package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/wolfman30/salon-booking/internal/clock"
)

type messageTemplate struct {
	subject string
	body    string
}

// Bodies are shared by email and SMS. Keep them short enough for one segment
// where possible.
var templates = map[Kind]messageTemplate{
	KindBookingRequested: {
		subject: "New booking request from {{.Counterparty}}",
		body:    "Hi {{.Name}}, {{.Counterparty}} requested {{.Service}} on {{.When}}. Accept or decline it from your dashboard.",
	},
	KindBookingReceived: {
		subject: "Booking request sent",
		body:    "Hi {{.Name}}, your request for {{.Service}} with {{.Counterparty}} on {{.When}} is pending confirmation.",
	},
	KindBookingAccepted: {
		subject: "Your appointment is confirmed",
		body:    "Hi {{.Name}}, {{.Counterparty}} confirmed your {{.Service}} on {{.When}}.",
	},
	KindBookingRejected: {
		subject: "Your booking request was declined",
		body:    "Hi {{.Name}}, {{.Counterparty}} could not take your {{.Service}} on {{.When}}.{{if .Reason}} Reason: {{.Reason}}{{end}}",
	},
	KindBookingCancelled: {
		subject: "Appointment cancelled",
		body:    "Hi {{.Name}}, the {{.Service}} with {{.Counterparty}} on {{.When}} was cancelled.{{if .Reason}} Reason: {{.Reason}}{{end}}",
	},
	KindBookingExpired: {
		subject: "Booking request expired",
		body:    "Hi {{.Name}}, the request for {{.Service}} on {{.When}} expired without a response.",
	},
	KindBookingCompleted: {
		subject: "Thanks for your visit",
		body:    "Hi {{.Name}}, your {{.Service}} with {{.Counterparty}} on {{.When}} is complete.",
	},
	KindBookingFailed: {
		subject: "Booking failed",
		body:    "Hi {{.Name}}, we could not complete the booking for {{.Service}} on {{.When}}.{{if .Reason}} Reason: {{.Reason}}{{end}}",
	},
	KindPaymentRequested: {
		subject: "Balance due for your appointment",
		body:    "Hi {{.Name}}, {{.Counterparty}} requested the remaining {{.Amount}} for {{.Service}} on {{.When}}.",
	},
	KindPaymentReceived: {
		subject: "Payment received",
		body:    "Hi {{.Name}}, payment for {{.Service}} on {{.When}} was received. Status: {{.Status}}.",
	},
	KindPaymentFailed: {
		subject: "Payment failed",
		body:    "Hi {{.Name}}, payment for {{.Service}} on {{.When}} failed.{{if .Reason}} Reason: {{.Reason}}{{end}}",
	},
	KindPaymentRefunded: {
		subject: "Refund issued",
		body:    "Hi {{.Name}}, the payment for {{.Service}} on {{.When}} was refunded.",
	},
	KindRescheduleProposed: {
		subject: "New time proposed",
		body:    "Hi {{.Name}}, {{.Counterparty}} proposed moving {{.Service}} from {{.When}} to {{.Proposed}}.{{if .Reason}} Reason: {{.Reason}}{{end}}",
	},
	KindRescheduleAccepted: {
		subject: "Appointment rescheduled",
		body:    "Hi {{.Name}}, {{.Service}} with {{.Counterparty}} is now on {{.When}}.",
	},
	KindRescheduleRejected: {
		subject: "Reschedule declined",
		body:    "Hi {{.Name}}, {{.Counterparty}} declined the new time. {{.Service}} stays on {{.When}}.",
	},
	KindRescheduleWithdrawn: {
		subject: "Reschedule withdrawn",
		body:    "Hi {{.Name}}, {{.Counterparty}} withdrew the proposed time. {{.Service}} stays on {{.When}}.",
	},
}

const whenLayout = "Monday, January 2 at 3:04 PM"

// Rendered is a notification ready to send.
type Rendered struct {
	Subject string
	Body    string
}

type templateData struct {
	Name         string
	Counterparty string
	Service      string
	When         string
	Proposed     string
	Status       string
	Reason       string
	Amount       string
}

// Render fills the template for kind. Times are shown in the recipient's zone.
func Render(kind Kind, to Recipient, data Data) (Rendered, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return Rendered{}, fmt.Errorf("notify: no template for %q", kind)
	}
	loc := clock.Location(to.Timezone)
	td := templateData{
		Name:         fallback(to.Name, "there"),
		Counterparty: fallback(data.CounterpartyName, "your stylist"),
		Service:      fallback(data.ServiceName, "your appointment"),
		When:         formatWhen(data.StartsAt, loc),
		Status:       data.Status,
		Reason:       data.Reason,
		Amount:       formatAmount(data.AmountCents),
	}
	if data.ProposedAt != nil {
		td.Proposed = formatWhen(*data.ProposedAt, loc)
	}

	subject, err := execute(string(kind)+".subject", tmpl.subject, td)
	if err != nil {
		return Rendered{}, err
	}
	body, err := execute(string(kind)+".body", tmpl.body, td)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, Body: body}, nil
}

func execute(name, text string, data any) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("notify: parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: execute %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatWhen(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "the scheduled time"
	}
	return t.In(loc).Format(whenLayout)
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
