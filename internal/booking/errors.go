/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"errors"

	"github.com/friendsincode/dronepad/internal/interval"
)

// Input errors.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidWindow is the interval package sentinel, re-exported for callers.
	ErrInvalidWindow = interval.ErrInvalidWindow
)

// Domain-rule errors. These are expected outcomes, not faults.
var (
	ErrPadNotFound         = errors.New("pad not found")
	ErrPadOutOfService     = errors.New("pad out of service")
	ErrPayloadIneligible   = errors.New("payload class not accepted by pad")
	ErrSlotUnavailable     = errors.New("slot unavailable")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrCheckInNotAllowed   = errors.New("check-in not allowed at this time")
	ErrInvalidTransition   = errors.New("invalid reservation transition")
)

// ErrStoreBusy indicates lock contention or a serialization failure in the
// store. The caller may retry.
var ErrStoreBusy = errors.New("store busy, retry")

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreBusy)
}

// IsDomainError reports whether err is an expected business-rule outcome.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrPadNotFound, ErrPadOutOfService, ErrPayloadIneligible, ErrSlotUnavailable,
		ErrReservationNotFound, ErrCheckInNotAllowed, ErrInvalidTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsInputError reports whether err was caused by malformed input.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidParameter) || errors.Is(err, ErrInvalidWindow)
}
