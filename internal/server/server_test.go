package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/dronepad/internal/config"
	"github.com/friendsincode/dronepad/internal/models"
)

const seedFixture = `
pads:
  - name: Dock 1
    zone: D
    accepted_classes: [S, M]
  - name: Dock 2
    zone: D
    accepted_classes: L
    separation_seconds: 0
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "pads.yaml")
	if err := os.WriteFile(seed, []byte(seedFixture), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	t.Setenv("DRONEPAD_ENV", "test")
	t.Setenv("DRONEPAD_DB_BACKEND", "sqlite")
	t.Setenv("DRONEPAD_DB_DSN", filepath.Join(dir, "server.db"))
	t.Setenv("DRONEPAD_SEED_FILE", seed)
	t.Setenv("DRONEPAD_JWT_SIGNING_KEY", "test-secret")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.MetricsBind = ""

	srv, err := New(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return srv
}

func TestServerHealthAndSeed(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz: %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "leader") {
		t.Fatalf("leader status reported without election: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/pads?zone=D", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("pads: expected 200, got %d", rr.Code)
	}
	var body struct {
		Pads []models.Pad `json:"pads"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Pads) != 2 {
		t.Fatalf("expected 2 seeded pads, got %d", len(body.Pads))
	}
	if body.Pads[1].SeparationSeconds != 0 {
		t.Errorf("Dock 2 separation = %d, want 0", body.Pads[1].SeparationSeconds)
	}
}

func TestServerBooksThroughRouter(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	body, _ := json.Marshal(map[string]any{
		"pad_id":        1,
		"payload_class": "S",
		"start":         "2030-01-01 09:00",
		"end":           "2030-01-01 09:05",
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/reservations", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/reservations", bytes.NewReader(body)))
	if rr.Code != http.StatusConflict {
		t.Fatalf("second commit: expected 409, got %d", rr.Code)
	}
}

func TestServerMetricsRoute(t *testing.T) {
	srv := newTestServer(t)
	if srv.MetricsServer() != nil {
		t.Fatal("expected metrics on the API router")
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "dronepad_api_requests_total") {
		t.Fatal("api request counter not exported")
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name      string
		forwarded string
		wantHSTS  bool
	}{
		{"plain http", "", false},
		{"behind tls proxy", "https", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/pads", nil)
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Fatalf("X-Content-Type-Options=%q, want nosniff", got)
			}
			if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
				t.Fatalf("X-Frame-Options=%q, want DENY", got)
			}
			if got := rr.Header().Get("Content-Security-Policy"); !strings.Contains(got, "frame-ancestors 'none'") {
				t.Fatalf("Content-Security-Policy=%q", got)
			}
			hsts := rr.Header().Get("Strict-Transport-Security")
			if (hsts != "") != tt.wantHSTS {
				t.Fatalf("Strict-Transport-Security=%q, wantHSTS=%v", hsts, tt.wantHSTS)
			}
		})
	}
}
