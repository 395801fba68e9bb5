package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SLOT_LOCK_TTL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SlotLockTTL != 10*time.Minute {
		t.Fatalf("expected default slot lock ttl, got %s", cfg.SlotLockTTL)
	}
	if cfg.BookingHorizonDays != 30 {
		t.Fatalf("expected default horizon, got %d", cfg.BookingHorizonDays)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SLOT_LOCK_TTL", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.caredial.io, https://admin.caredial.io")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Port)
	}
	if cfg.SlotLockTTL != 5*time.Minute {
		t.Fatalf("expected ttl override, got %s", cfg.SlotLockTTL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.caredial.io" {
		t.Fatalf("expected trimmed origin list, got %#v", cfg.CORSAllowedOrigins)
	}
}

func TestPriceCents(t *testing.T) {
	t.Setenv("CONSULTATION_PRICE_CENTS", "6000")
	t.Setenv("CONSULTATION_PRICE_OVERRIDES", `{"cardiology": 12000}`)
	cfg := Load()

	if got := cfg.PriceCents("CARDIOLOGY"); got != 12000 {
		t.Fatalf("expected override price, got %d", got)
	}
	if got := cfg.PriceCents("GENERAL"); got != 6000 {
		t.Fatalf("expected default price, got %d", got)
	}
}

func TestPriceOverridesIgnoreBadJSON(t *testing.T) {
	t.Setenv("CONSULTATION_PRICE_OVERRIDES", "{not json")
	cfg := Load()
	if cfg.ConsultationPriceOverrides != nil {
		t.Fatalf("expected nil overrides on malformed JSON")
	}
}
