/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dronepad/internal/auth"
	"github.com/friendsincode/dronepad/internal/booking"
	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/integrity"
	"github.com/friendsincode/dronepad/internal/logbuffer"
	"github.com/friendsincode/dronepad/internal/models"
)

// PadStore is the pad and reservation persistence the handlers read directly.
type PadStore interface {
	ListPads(ctx context.Context) ([]models.Pad, error)
	ListPadsInZone(ctx context.Context, zone string) ([]models.Pad, error)
	GetPad(ctx context.Context, id uint) (*models.Pad, error)
	TogglePadOutOfService(ctx context.Context, id uint) (*models.Pad, error)
	UpcomingReservations(ctx context.Context, since time.Time, limit int) ([]models.Reservation, error)
}

// AuditLister reads the audit trail of a reservation.
type AuditLister interface {
	ListForReservation(ctx context.Context, reservationID string) ([]models.AuditLog, error)
}

// IntegrityChecker scans and repairs stored booking state.
type IntegrityChecker interface {
	Scan(ctx context.Context) (*integrity.Report, error)
	Repair(ctx context.Context, input integrity.RepairInput) (integrity.RepairResult, error)
}

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	booking   *booking.Service
	pads      PadStore
	audit     AuditLister
	integrity IntegrityChecker
	logBuffer *logbuffer.Buffer
	bus       *events.Bus
	loc       *time.Location
	logger    zerolog.Logger
}

// New creates the API router wrapper. db is only used by the health check and may be nil.
func New(db *gorm.DB, jwtSecret []byte, svc *booking.Service, pads PadStore, auditSvc AuditLister, bus *events.Bus, loc *time.Location, logger zerolog.Logger) *API {
	if loc == nil {
		loc = time.UTC
	}
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		booking:   svc,
		pads:      pads,
		audit:     auditSvc,
		bus:       bus,
		loc:       loc,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetIntegrity enables the admin integrity endpoints.
func (a *API) SetIntegrity(checker IntegrityChecker) {
	a.integrity = checker
}

// SetLogBuffer exposes captured logs on /api/v1/admin/logs.
func (a *API) SetLogBuffer(buf *logbuffer.Buffer) {
	a.logBuffer = buf
}

// Routes registers all HTTP routes.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Get("/pads", a.handlePadsList)
			pr.Get("/zones/{zone}/availability", a.handleAvailability)

			pr.Route("/reservations", func(r chi.Router) {
				r.Post("/", a.handleReservationCreate)
				r.Route("/{reservationID}", func(r chi.Router) {
					r.Get("/", a.handleReservationGet)
					r.Post("/checkin", a.handleReservationCheckIn)
					r.Post("/release", a.handleReservationRelease)
					r.Post("/cancel", a.handleReservationCancel)
				})
			})

			pr.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Post("/pads/{padID}/toggle-service", a.handlePadToggleService)
				r.Get("/reservations/upcoming", a.handleUpcomingReservations)
				r.Get("/reservations/{reservationID}/audit", a.handleReservationAudit)
				r.Get("/integrity", a.handleIntegrityScan)
				r.Post("/integrity/repair", a.handleIntegrityRepair)
				r.Get("/logs", a.handleAdminLogs)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		sqlDB, err := a.db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			a.logger.Warn().Err(err).Msg("health check: database unreachable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestContext tags the request context with the acting subject.
func (a *API) requestContext(r *http.Request) context.Context {
	return booking.WithActor(r.Context(), auth.Subject(r.Context(), "api"))
}

// parseTime accepts RFC 3339 or a wall-clock "2006-01-02 15:04" in the
// configured location.
func (a *API) parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		t, err := time.ParseInLocation(layout, value, a.loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseUintParam(r *http.Request, name string) (uint, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
