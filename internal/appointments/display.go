package appointments

// displayRule is one precedence tier of the composite status label.
type displayRule struct {
	name    string
	matches func(Status, PaymentStatus) bool
	label   func(Status, PaymentStatus) string
}

// displayRules are evaluated in order; the first match wins. Cards, lists and
// notifications all render through DisplayStatus so the wording stays consistent.
var displayRules = []displayRule{
	{
		name:    "payment failed",
		matches: func(_ Status, p PaymentStatus) bool { return p == PaymentFailed },
		label:   func(Status, PaymentStatus) string { return "Payment Failed" },
	},
	{
		name:    "booking failed",
		matches: func(s Status, _ PaymentStatus) bool { return s == StatusFailed },
		label:   func(Status, PaymentStatus) string { return "Failed" },
	},
	{
		name:    "confirmed and paid",
		matches: func(s Status, p PaymentStatus) bool { return s == StatusConfirmed && p == PaymentPaid },
		label:   func(Status, PaymentStatus) string { return "Confirmed" },
	},
	{
		name:    "pending",
		matches: func(s Status, _ PaymentStatus) bool { return s == StatusPending },
		label:   func(Status, PaymentStatus) string { return "Pending" },
	},
	{
		name:    "raw status",
		matches: func(Status, PaymentStatus) bool { return true },
		label:   func(s Status, _ PaymentStatus) string { return capitalize(string(s)) },
	},
}

// DisplayStatus renders the composite label for a status pair.
func DisplayStatus(s Status, p PaymentStatus) string {
	for _, rule := range displayRules {
		if rule.matches(s, p) {
			return rule.label(s, p)
		}
	}
	return capitalize(string(s))
}

// Display renders the composite label for an appointment.
func (a *Appointment) Display() string {
	return DisplayStatus(a.Status, a.PaymentStatus)
}
