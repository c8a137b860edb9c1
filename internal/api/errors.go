/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/friendsincode/dronepad/internal/booking"
)

// retryAfterSeconds is advertised on 503 responses caused by lock contention.
const retryAfterSeconds = "1"

// errorStatus maps a booking error to an HTTP status and stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case booking.IsInputError(err):
		if errors.Is(err, booking.ErrInvalidWindow) {
			return http.StatusBadRequest, "invalid_window"
		}
		return http.StatusBadRequest, "invalid_parameter"
	case errors.Is(err, booking.ErrPadNotFound):
		return http.StatusNotFound, "pad_not_found"
	case errors.Is(err, booking.ErrReservationNotFound):
		return http.StatusNotFound, "reservation_not_found"
	case errors.Is(err, booking.ErrPayloadIneligible):
		return http.StatusUnprocessableEntity, "payload_ineligible"
	case errors.Is(err, booking.ErrPadOutOfService):
		return http.StatusConflict, "pad_out_of_service"
	case errors.Is(err, booking.ErrSlotUnavailable):
		return http.StatusConflict, "slot_unavailable"
	case errors.Is(err, booking.ErrCheckInNotAllowed):
		return http.StatusConflict, "check_in_not_allowed"
	case errors.Is(err, booking.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case booking.IsRetryable(err):
		return http.StatusServiceUnavailable, "store_busy"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeBookingError renders err and logs it at a level matching its class.
func (a *API) writeBookingError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)

	switch {
	case status == http.StatusInternalServerError:
		a.logger.Error().Err(err).Str("op", op).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, code)
		return
	case status == http.StatusServiceUnavailable:
		a.logger.Warn().Err(err).Str("op", op).Msg("store busy")
		w.Header().Set("Retry-After", retryAfterSeconds)
	default:
		a.logger.Debug().Err(err).Str("op", op).Str("code", code).Msg("request rejected")
	}

	writeErrorMessage(w, status, code, err.Error())
}
