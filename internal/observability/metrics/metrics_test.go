package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	got := map[string]string{}
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestBookingMetricsObserve(t *testing.T) {
	m := NewBookingMetrics(nil)
	m.ObserveAvailability("clear", 0.01)
	m.ObserveBooking("created")
	m.ObserveTransition("accept", "ok")
	m.ObserveNotification("booking_confirmed", false)
	m.ObserveWebhook("charge.captured", "applied")
}

func TestBookingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveAvailability("unavailable", 0.2)
	m.ObserveAvailability("unavailable", 0.1)
	m.ObserveTransition("reject", "stale")
	m.ObserveNotification("booking_rejected", true)

	if got := counterValue(t, reg, "salon_availability_checks_total", map[string]string{"outcome": "unavailable"}); got != 2 {
		t.Fatalf("expected 2 unavailable checks, got %v", got)
	}
	if got := counterValue(t, reg, "salon_appointments_transitions_total", map[string]string{"action": "reject", "result": "stale"}); got != 1 {
		t.Fatalf("expected 1 stale reject, got %v", got)
	}
	if got := counterValue(t, reg, "salon_notify_dispatch_total", map[string]string{"kind": "booking_rejected", "status": "failed"}); got != 1 {
		t.Fatalf("expected 1 failed notification, got %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveAvailability("clear", 0.1)
	m.ObserveBooking("conflict")
	m.ObserveTransition("accept", "ok")
	m.ObserveNotification("kind", true)
	m.ObserveWebhook("event", "status")
}
