/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/dronepad/internal/auth"
	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/integrity"
	"github.com/friendsincode/dronepad/internal/logbuffer"
	"github.com/friendsincode/dronepad/internal/models"
	"github.com/friendsincode/dronepad/internal/store"
)

const (
	defaultUpcomingLimit = 100
	maxUpcomingLimit     = 500
	defaultLogLimit      = 500
)

// handlePadToggleService flips a pad between in service and out of service.
// A pad whose record is invalid cannot be put back into service. Existing
// reservations are left untouched.
func (a *API) handlePadToggleService(w http.ResponseWriter, r *http.Request) {
	padID, ok := parseUintParam(r, "padID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_pad_id")
		return
	}

	updated, err := a.pads.TogglePadOutOfService(r.Context(), padID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "pad_not_found")
		case errors.Is(err, models.ErrInvalidPad):
			writeErrorMessage(w, http.StatusUnprocessableEntity, "invalid_pad", err.Error())
		default:
			a.logger.Error().Err(err).Uint("pad_id", padID).Msg("toggle pad service failed")
			writeError(w, http.StatusInternalServerError, "db_error")
		}
		return
	}

	actor := auth.Subject(r.Context(), "api")
	a.bus.Publish(events.EventPadUpdated, events.Payload{
		"pad_id":         updated.ID,
		"zone":           updated.Zone,
		"out_of_service": updated.OutOfService,
		"actor":          actor,
	})
	a.logger.Info().Uint("pad_id", updated.ID).Bool("out_of_service", updated.OutOfService).Str("actor", actor).Msg("pad service toggled")

	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleUpcomingReservations(w http.ResponseWriter, r *http.Request) {
	limit := defaultUpcomingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = min(v, maxUpcomingLimit)
	}

	reservations, err := a.pads.UpcomingReservations(r.Context(), a.booking.Now(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list upcoming reservations failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if reservations == nil {
		reservations = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reservations": reservations,
		"limit":        limit,
	})
}

func (a *API) handleReservationAudit(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationID")
	logs, err := a.audit.ListForReservation(r.Context(), reservationID)
	if err != nil {
		a.logger.Error().Err(err).Str("reservation_id", reservationID).Msg("query audit logs failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reservation_id": reservationID,
		"audit_logs":     logs,
	})
}

func (a *API) handleIntegrityScan(w http.ResponseWriter, r *http.Request) {
	if a.integrity == nil {
		writeError(w, http.StatusNotImplemented, "integrity_disabled")
		return
	}
	report, err := a.integrity.Scan(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("integrity scan failed")
		writeError(w, http.StatusInternalServerError, "scan_failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleIntegrityRepair(w http.ResponseWriter, r *http.Request) {
	if a.integrity == nil {
		writeError(w, http.StatusNotImplemented, "integrity_disabled")
		return
	}
	var input integrity.RepairInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if input.Type == "" || input.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "type_and_resource_id_required")
		return
	}

	result, err := a.integrity.Repair(r.Context(), input)
	if err != nil {
		a.logger.Warn().Err(err).Str("type", string(input.Type)).Str("resource_id", input.ResourceID).Msg("integrity repair failed")
		writeErrorMessage(w, http.StatusBadRequest, "repair_failed", err.Error())
		return
	}
	a.logger.Info().
		Str("type", string(input.Type)).
		Str("resource_id", input.ResourceID).
		Bool("changed", result.Changed).
		Str("actor", auth.Subject(r.Context(), "api")).
		Msg("integrity repair applied")
	writeJSON(w, http.StatusOK, result)
}

// handleAdminLogs returns recent log entries, newest first unless order=asc.
func (a *API) handleAdminLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_disabled")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:         q.Get("level"),
		Component:     q.Get("component"),
		ReservationID: q.Get("reservation_id"),
		Search:        q.Get("search"),
		Limit:         defaultLogLimit,
		Descending:    q.Get("order") != "asc",
	}
	if raw := q.Get("pad_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			writeError(w, http.StatusBadRequest, "invalid_pad_id")
			return
		}
		params.PadID = uint(id)
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = n
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"count":      len(entries),
		"components": a.logBuffer.Components(),
		"stats":      a.logBuffer.Stats(),
	})
}
