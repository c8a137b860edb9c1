/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/interval"
	"github.com/friendsincode/dronepad/internal/models"
	"github.com/friendsincode/dronepad/internal/store"
	"github.com/friendsincode/dronepad/internal/telemetry"
)

// CommitRequest asks to book a specific window on a pad.
type CommitRequest struct {
	PadID        uint
	PayloadClass models.PayloadClass
	Window       interval.Window
}

// CommitReservation re-checks the window under the pad's booking lock and
// inserts a CONFIRMED reservation. A conflict fails with ErrSlotUnavailable;
// the caller must search again. Nothing is written on any failure.
func (s *Service) CommitReservation(ctx context.Context, req CommitRequest) (*models.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "booking.CommitReservation",
		telemetry.PadAttr(req.PadID),
		telemetry.PayloadClassAttr(string(req.PayloadClass)),
	)
	defer span.End()

	started := time.Now()
	r, err := s.commit(ctx, req)
	telemetry.CommitDuration.Observe(time.Since(started).Seconds())
	telemetry.CommitsTotal.WithLabelValues(commitOutcome(err)).Inc()

	log := s.logger.With().
		Uint("pad_id", req.PadID).
		Str("payload_class", string(req.PayloadClass)).
		Stringer("window", req.Window).
		Logger()

	if err != nil {
		telemetry.RecordError(span, err)
		switch {
		case IsDomainError(err), IsInputError(err):
			log.Debug().Err(err).Msg("commit rejected")
		case IsRetryable(err):
			log.Warn().Err(err).Msg("commit contended")
		default:
			log.Error().Err(err).Msg("commit failed")
		}
		return nil, err
	}

	span.SetAttributes(telemetry.ReservationAttr(r.ID))
	log.Info().Str("reservation_id", r.ID).Msg("reservation confirmed")
	s.publish(ctx, events.EventReservationConfirmed, r, nil)
	return r, nil
}

func (s *Service) commit(ctx context.Context, req CommitRequest) (*models.Reservation, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	class, err := models.ParsePayloadClass(string(req.PayloadClass))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if req.PadID == 0 {
		return nil, fmt.Errorf("%w: pad id is required", ErrInvalidParameter)
	}

	var created *models.Reservation
	err = s.store.WithPadLock(ctx, req.PadID, func(tx store.Tx) error {
		pad, err := tx.GetPad(ctx, req.PadID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrPadNotFound, req.PadID)
			}
			return err
		}
		if err := CheckEligible(pad, class); err != nil {
			return err
		}

		existing, err := tx.ActiveReservations(ctx, pad.ID, req.Window.Expand(s.lookupMargin(pad)))
		if err != nil {
			return err
		}
		if clash := firstConflict(req.Window, existing, pad.Separation()); clash != nil {
			return fmt.Errorf("%w: %s conflicts with reservation %s %s (separation %s)",
				ErrSlotUnavailable, req.Window, clash.ID, clash.Window(), pad.Separation())
		}

		r := &models.Reservation{
			ID:           uuid.NewString(),
			PadID:        pad.ID,
			PayloadClass: class,
			StartsAt:     req.Window.Start.UTC(),
			EndsAt:       req.Window.End.UTC(),
			Status:       models.ReservationConfirmed,
		}
		if err := tx.CreateReservation(ctx, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return created, nil
}

// translateStoreErr maps store sentinels onto engine errors. Engine errors
// pass through.
func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrBusy):
		return fmt.Errorf("%w: %w", ErrStoreBusy, err)
	case errors.Is(err, store.ErrOverlapGuard):
		return fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
	default:
		return err
	}
}

func commitOutcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrSlotUnavailable):
		return "conflict"
	case IsRetryable(err):
		return "busy"
	case IsDomainError(err):
		return "rejected"
	case IsInputError(err):
		return "invalid"
	default:
		return "error"
	}
}
