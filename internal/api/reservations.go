/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/dronepad/internal/booking"
	"github.com/friendsincode/dronepad/internal/interval"
	"github.com/friendsincode/dronepad/internal/models"
)

type reservationRequest struct {
	PadID        uint   `json:"pad_id"`
	PayloadClass string `json:"payload_class"`
	Start        string `json:"start"`
	End          string `json:"end"`
}

type availabilityResponse struct {
	Zone         string             `json:"zone"`
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	PayloadClass string             `json:"payload_class"`
	Pads         []booking.PadSlots `json:"pads"`
}

type releaseResponse struct {
	Outcome     booking.ReleaseOutcome `json:"outcome"`
	Reservation *models.Reservation    `json:"reservation"`
}

func (a *API) handlePadsList(w http.ResponseWriter, r *http.Request) {
	var (
		pads []models.Pad
		err  error
	)
	if zone := strings.TrimSpace(r.URL.Query().Get("zone")); zone != "" {
		pads, err = a.pads.ListPadsInZone(r.Context(), zone)
	} else {
		pads, err = a.pads.ListPads(r.Context())
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("list pads failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if pads == nil {
		pads = []models.Pad{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pads": pads})
}

func (a *API) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := a.parseTime(q.Get("start"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_start", "start must be RFC 3339 or YYYY-MM-DD HH:MM")
		return
	}
	end, err := a.parseTime(q.Get("end"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_end", "end must be RFC 3339 or YYYY-MM-DD HH:MM")
		return
	}

	req := booking.SearchRequest{
		Zone:             chi.URLParam(r, "zone"),
		Window:           interval.Window{Start: start, End: end},
		PayloadClass:     models.PayloadClass(q.Get("payload_class")),
		UsePadTurnaround: true,
	}
	if raw := q.Get("turnaround"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_turnaround", "turnaround must be a positive number of minutes")
			return
		}
		req.Turnaround = time.Duration(minutes) * time.Minute
		req.UsePadTurnaround = false
	}

	results, err := a.booking.FindAvailableSlots(r.Context(), req)
	if err != nil {
		a.writeBookingError(w, r, "availability", err)
		return
	}
	if results == nil {
		results = []booking.PadSlots{}
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		Zone:         req.Zone,
		Start:        start,
		End:          end,
		PayloadClass: strings.ToUpper(string(req.PayloadClass)),
		Pads:         results,
	})
}

func (a *API) handleReservationCreate(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.PadID == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_parameter", "pad_id is required")
		return
	}
	class, err := models.ParsePayloadClass(req.PayloadClass)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	start, err := a.parseTime(req.Start)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_start", "start must be RFC 3339 or YYYY-MM-DD HH:MM")
		return
	}
	end, err := a.parseTime(req.End)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_end", "end must be RFC 3339 or YYYY-MM-DD HH:MM")
		return
	}

	res, err := a.booking.CommitReservation(a.requestContext(r), booking.CommitRequest{
		PadID:        req.PadID,
		PayloadClass: class,
		Window:       interval.Window{Start: start, End: end},
	})
	if err != nil {
		a.writeBookingError(w, r, "commit", err)
		return
	}

	w.Header().Set("Location", "/api/v1/reservations/"+res.ID)
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleReservationGet(w http.ResponseWriter, r *http.Request) {
	res, err := a.booking.GetReservation(a.requestContext(r), chi.URLParam(r, "reservationID"), a.booking.Now())
	if err != nil {
		a.writeBookingError(w, r, "get_reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleReservationCheckIn(w http.ResponseWriter, r *http.Request) {
	res, err := a.booking.CheckIn(a.requestContext(r), chi.URLParam(r, "reservationID"), a.booking.Now())
	if err != nil {
		a.writeBookingError(w, r, "checkin", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleReservationRelease(w http.ResponseWriter, r *http.Request) {
	outcome, res, err := a.booking.Release(a.requestContext(r), chi.URLParam(r, "reservationID"), a.booking.Now())
	if err != nil {
		a.writeBookingError(w, r, "release", err)
		return
	}
	writeJSON(w, http.StatusOK, releaseResponse{Outcome: outcome, Reservation: res})
}

func (a *API) handleReservationCancel(w http.ResponseWriter, r *http.Request) {
	res, err := a.booking.Cancel(a.requestContext(r), chi.URLParam(r, "reservationID"), a.booking.Now())
	if err != nil {
		a.writeBookingError(w, r, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
