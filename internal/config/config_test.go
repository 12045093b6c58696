package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "RECORD_STORE", "EMAIL_PROVIDER", "PENDING_EXPIRY_WINDOW", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.RecordStore != "postgres" || cfg.UseDynamo() {
		t.Fatalf("expected postgres record store by default, got %s", cfg.RecordStore)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
	if cfg.PendingExpiryWindow != 24*time.Hour {
		t.Fatalf("expected 24h pending window, got %s", cfg.PendingExpiryWindow)
	}
	if cfg.AuthorizationTimeout != 30*time.Minute {
		t.Fatalf("expected 30m authorization timeout, got %s", cfg.AuthorizationTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("RECORD_STORE", "DynamoDB")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")
	t.Setenv("BOOKING_RATE_LIMIT", "2.5")
	t.Setenv("BOOKING_RATE_BURST", "10")
	t.Setenv("STRIPE_WEBHOOK_TOLERANCE", "2m")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("NOTIFY_TIMEOUT", "not-a-duration")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if !cfg.UseDynamo() {
		t.Fatalf("expected dynamo record store, got %s", cfg.RecordStore)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.BookingRateLimit != 2.5 || cfg.BookingRateBurst != 10 {
		t.Fatalf("unexpected rate limit %v/%d", cfg.BookingRateLimit, cfg.BookingRateBurst)
	}
	if cfg.StripeWebhookTolerance != 2*time.Minute {
		t.Fatalf("expected tolerance override, got %s", cfg.StripeWebhookTolerance)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Fatalf("expected sweep interval override, got %s", cfg.SweepInterval)
	}
	if cfg.NotifyTimeout != 10*time.Second {
		t.Fatalf("expected invalid duration to fall back, got %s", cfg.NotifyTimeout)
	}
}
