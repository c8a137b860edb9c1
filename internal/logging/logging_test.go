package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf)

	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %v", logger.GetLevel())
	}

	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "test").Msg("visible")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "visible" || entry["component"] != "test" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestSetupDevelopmentUsesDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("development", &buf)
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", logger.GetLevel())
	}
	logger.Debug().Msg("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
}

func TestSetupWithCaptureGetsJSONInDevelopment(t *testing.T) {
	var console, capture bytes.Buffer
	logger := SetupWithCapture("development", &console, &capture)
	logger.Info().Str("component", "booking").Msg("captured")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(capture.Bytes()), &entry); err != nil {
		t.Fatalf("capture is not JSON: %v (%q)", err, capture.String())
	}
	if entry["message"] != "captured" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if json.Valid(bytes.TrimSpace(console.Bytes())) {
		t.Fatalf("console output should be human readable, got %q", console.String())
	}
}
