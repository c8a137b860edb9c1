/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	Timezone      string
	Location      *time.Location
	JWTSigningKey string
	MetricsBind   string
	SeedFile      string // Optional YAML pad fixture applied by "seed" and on first start
	LogBufferSize int    // Recent log lines kept for /api/v1/admin/logs, 0 disables

	// Booking engine tuning
	SlotStep                 time.Duration
	MaxSlotsPerPad           int
	LookupMargin             time.Duration // Always widened to at least the pad separation
	MaxSearchSpan            time.Duration
	CheckInGraceBefore       time.Duration
	AutoReleaseGrace         time.Duration
	AutoReleaseOnAccess      bool
	AutoReleaseSweepInterval time.Duration // 0 disables the background sweep
	AutoReleaseBatchSize     int
	LockTimeout              time.Duration

	// Tracing configuration
	TracingEnabled     bool
	TracingServiceName string
	OTLPEndpoint       string
	TracingSampleRate  float64

	// Redis (zone roster cache and leader election)
	CacheEnabled          bool
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// NATS event bridge (empty URL disables)
	NATSURL   string
	NATSToken string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnvAny([]string{"DRONEPAD_ENV", "PAD_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"DRONEPAD_HTTP_BIND", "PAD_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:      getEnvIntAny([]string{"DRONEPAD_HTTP_PORT", "PAD_HTTP_PORT"}, 5001),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"DRONEPAD_DB_BACKEND", "PAD_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:         getEnvAny([]string{"DRONEPAD_DB_DSN", "PAD_DB_DSN"}, "dronepad.db"),
		Timezone:      getEnvAny([]string{"DRONEPAD_TIMEZONE", "PAD_TIMEZONE"}, "UTC"),
		JWTSigningKey: getEnvAny([]string{"DRONEPAD_JWT_SIGNING_KEY", "PAD_JWT_SIGNING_KEY"}, ""),
		MetricsBind:   getEnvAny([]string{"DRONEPAD_METRICS_BIND", "PAD_METRICS_BIND"}, "127.0.0.1:9000"),
		SeedFile:      getEnvAny([]string{"DRONEPAD_SEED_FILE", "PAD_SEED_FILE"}, ""),
		LogBufferSize: getEnvIntAny([]string{"DRONEPAD_LOG_BUFFER_SIZE", "PAD_LOG_BUFFER_SIZE"}, 5000),

		SlotStep:                 time.Duration(getEnvIntAny([]string{"DRONEPAD_SLOT_STEP_MINUTES", "PAD_SLOT_STEP_MINUTES"}, 5)) * time.Minute,
		MaxSlotsPerPad:           getEnvIntAny([]string{"DRONEPAD_MAX_SLOTS_PER_PAD", "PAD_MAX_SLOTS_PER_PAD"}, 10),
		LookupMargin:             time.Duration(getEnvIntAny([]string{"DRONEPAD_LOOKUP_MARGIN_MINUTES", "PAD_LOOKUP_MARGIN_MINUTES"}, 60)) * time.Minute,
		MaxSearchSpan:            time.Duration(getEnvIntAny([]string{"DRONEPAD_MAX_SEARCH_SPAN_HOURS", "PAD_MAX_SEARCH_SPAN_HOURS"}, 24)) * time.Hour,
		CheckInGraceBefore:       time.Duration(getEnvIntAny([]string{"DRONEPAD_CHECKIN_GRACE_BEFORE_MINUTES", "PAD_CHECKIN_GRACE_BEFORE_MINUTES"}, 2)) * time.Minute,
		AutoReleaseGrace:         time.Duration(getEnvIntAny([]string{"DRONEPAD_AUTO_RELEASE_GRACE_MINUTES", "PAD_AUTO_RELEASE_GRACE_MINUTES"}, 10)) * time.Minute,
		AutoReleaseOnAccess:      getEnvBoolAny([]string{"DRONEPAD_AUTO_RELEASE_ON_ACCESS", "PAD_AUTO_RELEASE_ON_ACCESS"}, true),
		AutoReleaseSweepInterval: time.Duration(getEnvIntAny([]string{"DRONEPAD_AUTO_RELEASE_SWEEP_SECONDS", "PAD_AUTO_RELEASE_SWEEP_SECONDS"}, 30)) * time.Second,
		AutoReleaseBatchSize:     getEnvIntAny([]string{"DRONEPAD_AUTO_RELEASE_BATCH_SIZE", "PAD_AUTO_RELEASE_BATCH_SIZE"}, 100),
		LockTimeout:              time.Duration(getEnvIntAny([]string{"DRONEPAD_LOCK_TIMEOUT_MS", "PAD_LOCK_TIMEOUT_MS"}, 5000)) * time.Millisecond,

		TracingEnabled:     getEnvBoolAny([]string{"DRONEPAD_TRACING_ENABLED", "PAD_TRACING_ENABLED"}, false),
		TracingServiceName: getEnvAny([]string{"DRONEPAD_TRACING_SERVICE_NAME", "OTEL_SERVICE_NAME"}, "dronepad"),
		OTLPEndpoint:       getEnvAny([]string{"DRONEPAD_OTLP_ENDPOINT", "PAD_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate:  getEnvFloatAny([]string{"DRONEPAD_TRACING_SAMPLE_RATE", "PAD_TRACING_SAMPLE_RATE"}, 1.0),

		CacheEnabled:          getEnvBoolAny([]string{"DRONEPAD_CACHE_ENABLED", "PAD_CACHE_ENABLED"}, false),
		LeaderElectionEnabled: getEnvBoolAny([]string{"DRONEPAD_LEADER_ELECTION_ENABLED", "PAD_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"DRONEPAD_REDIS_ADDR", "PAD_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"DRONEPAD_REDIS_PASSWORD", "PAD_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"DRONEPAD_REDIS_DB", "PAD_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"DRONEPAD_INSTANCE_ID", "PAD_INSTANCE_ID"}, ""),

		NATSURL:   getEnvAny([]string{"DRONEPAD_NATS_URL", "NATS_URL"}, ""),
		NATSToken: getEnvAny([]string{"DRONEPAD_NATS_TOKEN", "NATS_TOKEN"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DRONEPAD_DB_DSN or PAD_DB_DSN must be provided")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DRONEPAD_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if err := cfg.validateBooking(); err != nil {
		return nil, err
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("DRONEPAD_JWT_SIGNING_KEY must be set in production")
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func (c *Config) validateBooking() error {
	if c.SlotStep <= 0 {
		return fmt.Errorf("DRONEPAD_SLOT_STEP_MINUTES must be > 0")
	}
	if c.MaxSlotsPerPad <= 0 {
		return fmt.Errorf("DRONEPAD_MAX_SLOTS_PER_PAD must be > 0")
	}
	if c.LookupMargin < 0 {
		return fmt.Errorf("DRONEPAD_LOOKUP_MARGIN_MINUTES must be >= 0")
	}
	if c.MaxSearchSpan <= 0 {
		return fmt.Errorf("DRONEPAD_MAX_SEARCH_SPAN_HOURS must be > 0")
	}
	if c.CheckInGraceBefore < 0 || c.AutoReleaseGrace < 0 {
		return fmt.Errorf("check-in and auto-release grace periods must be >= 0")
	}
	if c.AutoReleaseSweepInterval < 0 {
		return fmt.Errorf("DRONEPAD_AUTO_RELEASE_SWEEP_SECONDS must be >= 0")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("DRONEPAD_LOCK_TIMEOUT_MS must be > 0")
	}
	return nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"DB_PATH":          "use DRONEPAD_DB_DSN with DRONEPAD_DB_BACKEND=sqlite",
		"FLASK_SECRET_KEY": "flash sessions are gone; set DRONEPAD_JWT_SIGNING_KEY for admin tokens",
		"REDIS_ADDR":       "use DRONEPAD_REDIS_ADDR",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr returns the API listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
