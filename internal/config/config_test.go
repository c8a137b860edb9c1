package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DRONEPAD_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("expected sqlite default backend, got %q", cfg.DBBackend)
	}
	if cfg.SlotStep != 5*time.Minute {
		t.Fatalf("unexpected slot step %v", cfg.SlotStep)
	}
	if cfg.MaxSlotsPerPad != 10 {
		t.Fatalf("unexpected per-pad cap %d", cfg.MaxSlotsPerPad)
	}
	if cfg.CheckInGraceBefore != 2*time.Minute || cfg.AutoReleaseGrace != 10*time.Minute {
		t.Fatalf("unexpected grace periods %v / %v", cfg.CheckInGraceBefore, cfg.AutoReleaseGrace)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("expected UTC location, got %v", cfg.Location)
	}
}

func TestLoadReadsBookingOverridesAndLegacyKeys(t *testing.T) {
	t.Setenv("PAD_SLOT_STEP_MINUTES", "15")
	t.Setenv("DRONEPAD_MAX_SLOTS_PER_PAD", "3")
	t.Setenv("DRONEPAD_TIMEZONE", "Europe/Berlin")
	t.Setenv("DRONEPAD_AUTO_RELEASE_SWEEP_SECONDS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SlotStep != 15*time.Minute {
		t.Fatalf("expected legacy PAD_ key to apply, got %v", cfg.SlotStep)
	}
	if cfg.MaxSlotsPerPad != 3 {
		t.Fatalf("unexpected cap %d", cfg.MaxSlotsPerPad)
	}
	if cfg.Location.String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %v", cfg.Location)
	}
	if cfg.AutoReleaseSweepInterval != 0 {
		t.Fatalf("expected sweep disabled, got %v", cfg.AutoReleaseSweepInterval)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero step", key: "DRONEPAD_SLOT_STEP_MINUTES", val: "0"},
		{name: "zero cap", key: "DRONEPAD_MAX_SLOTS_PER_PAD", val: "0"},
		{name: "unknown backend", key: "DRONEPAD_DB_BACKEND", val: "oracle"},
		{name: "unknown timezone", key: "DRONEPAD_TIMEZONE", val: "Mars/Olympus"},
		{name: "zero lock timeout", key: "DRONEPAD_LOCK_TIMEOUT_MS", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tt.key, tt.val)
			}
		})
	}
}

func TestLoadProductionRequiresSigningKey(t *testing.T) {
	t.Setenv("DRONEPAD_ENV", "production")
	t.Setenv("DRONEPAD_JWT_SIGNING_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without signing key")
	}

	t.Setenv("DRONEPAD_JWT_SIGNING_KEY", "supersecret")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with signing key to succeed: %v", err)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/dronepad.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}
