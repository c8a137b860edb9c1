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

	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/models"
	"github.com/friendsincode/dronepad/internal/store"
	"github.com/friendsincode/dronepad/internal/telemetry"
)

// ReleaseOutcome tells the caller what a release call did.
type ReleaseOutcome string

const (
	ReleasedManual  ReleaseOutcome = "manual"
	ReleasedNoShow  ReleaseOutcome = "no_show"
	ReleasedAlready ReleaseOutcome = "already"
)

// Auto-release triggers, used as metric labels.
const (
	TriggerAccess  = "access"
	TriggerRelease = "release"
	TriggerSweep   = "sweep"
)

// casAttempts bounds how often a transition reloads after losing a race.
const casAttempts = 2

func (s *Service) load(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
		}
		return nil, translateStoreErr(err)
	}
	return r, nil
}

// transition applies a compare-and-set from r.Status. On success it returns
// the reloaded record.
func (s *Service) transition(ctx context.Context, r *models.Reservation, t store.Transition) (bool, *models.Reservation, error) {
	ok, err := s.store.TransitionReservation(ctx, r.ID, r.Status, t)
	if err != nil {
		return false, nil, translateStoreErr(err)
	}
	fresh, err := s.load(ctx, r.ID)
	if err != nil {
		return false, nil, err
	}
	if ok {
		telemetry.ReservationTransitionsTotal.WithLabelValues(string(r.Status), string(t.To)).Inc()
	}
	return ok, fresh, nil
}

// CheckIn marks a CONFIRMED reservation as CHECKED_IN when now lies in
// [start - CheckInGraceBefore, end]. Checking in twice is a no-op. With
// AutoReleaseOnAccess a due no-show is released first, so a late check-in
// fails the same way it would after a read.
func (s *Service) CheckIn(ctx context.Context, id string, now time.Time) (*models.Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cfg.AutoReleaseOnAccess {
		if _, r, err = s.autoReleaseLoaded(ctx, r, now, TriggerAccess); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		switch r.Status {
		case models.ReservationCheckedIn:
			return r, nil
		case models.ReservationReleased, models.ReservationCancelled:
			return nil, fmt.Errorf("%w: cannot check in a %s reservation", ErrInvalidTransition, r.Status)
		}

		opens := r.StartsAt.Add(-s.cfg.CheckInGraceBefore)
		if now.Before(opens) || now.After(r.EndsAt) {
			return nil, fmt.Errorf("%w: window is [%s, %s], now %s", ErrCheckInNotAllowed,
				opens.UTC().Format(time.RFC3339), r.EndsAt.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
		}

		ok, fresh, err := s.transition(ctx, r, store.Transition{To: models.ReservationCheckedIn, At: now})
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info().Str("reservation_id", id).Msg("reservation checked in")
			s.publish(ctx, events.EventReservationCheckedIn, fresh, nil)
			return fresh, nil
		}
		r = fresh
	}
	return nil, fmt.Errorf("%w: reservation %s changed concurrently", ErrStoreBusy, id)
}

// noShowDue reports whether r qualifies for auto-release at now.
func (s *Service) noShowDue(r *models.Reservation, now time.Time) bool {
	return r.Status == models.ReservationConfirmed &&
		r.CheckedInAt == nil &&
		!now.Before(r.StartsAt.Add(s.cfg.AutoReleaseGrace))
}

// Release frees the pad. A CONFIRMED reservation never checked in and past
// its grace period is released as a no-show; any other active reservation is
// released manually. Releasing a RELEASED reservation is a no-op.
func (s *Service) Release(ctx context.Context, id string, now time.Time) (ReleaseOutcome, *models.Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return "", nil, err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		switch r.Status {
		case models.ReservationReleased:
			return ReleasedAlready, r, nil
		case models.ReservationCancelled:
			return "", nil, fmt.Errorf("%w: cannot release a cancelled reservation", ErrInvalidTransition)
		}

		outcome, reason := ReleasedManual, models.ReleaseReasonManual
		if s.noShowDue(r, now) {
			outcome, reason = ReleasedNoShow, models.ReleaseReasonNoShow
		}

		ok, fresh, err := s.transition(ctx, r, store.Transition{To: models.ReservationReleased, At: now, Reason: reason})
		if err != nil {
			return "", nil, err
		}
		if ok {
			if outcome == ReleasedNoShow {
				telemetry.AutoReleasesTotal.WithLabelValues(TriggerRelease).Inc()
			}
			s.logger.Info().Str("reservation_id", id).Str("reason", string(reason)).Msg("reservation released")
			s.publish(ctx, events.EventReservationReleased, fresh, events.Payload{"reason": string(reason)})
			return outcome, fresh, nil
		}
		r = fresh
	}
	return "", nil, fmt.Errorf("%w: reservation %s changed concurrently", ErrStoreBusy, id)
}

// Cancel withdraws a CONFIRMED reservation before use. Any other status,
// including CANCELLED, fails with ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, id string, now time.Time) (*models.Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		if r.Status != models.ReservationConfirmed {
			return nil, fmt.Errorf("%w: cannot cancel a %s reservation", ErrInvalidTransition, r.Status)
		}

		ok, fresh, err := s.transition(ctx, r, store.Transition{To: models.ReservationCancelled, At: now})
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info().Str("reservation_id", id).Msg("reservation cancelled")
			s.publish(ctx, events.EventReservationCancelled, fresh, nil)
			return fresh, nil
		}
		r = fresh
	}
	return nil, fmt.Errorf("%w: reservation %s changed concurrently", ErrStoreBusy, id)
}

// AutoRelease applies only the no-show rule. It reports whether this call
// released the reservation.
func (s *Service) AutoRelease(ctx context.Context, id string, now time.Time) (bool, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	fired, _, err := s.autoReleaseLoaded(ctx, r, now, TriggerSweep)
	return fired, err
}

func (s *Service) autoReleaseLoaded(ctx context.Context, r *models.Reservation, now time.Time, trigger string) (bool, *models.Reservation, error) {
	if !s.noShowDue(r, now) {
		return false, r, nil
	}

	ok, fresh, err := s.transition(ctx, r, store.Transition{
		To:     models.ReservationReleased,
		At:     now,
		Reason: models.ReleaseReasonNoShow,
	})
	if err != nil {
		return false, nil, err
	}
	if !ok {
		// Someone else moved it first; the reload is authoritative.
		return false, fresh, nil
	}

	telemetry.AutoReleasesTotal.WithLabelValues(trigger).Inc()
	s.logger.Info().Str("reservation_id", r.ID).Str("trigger", trigger).Msg("no-show reservation auto-released")
	s.publish(ctx, events.EventReservationReleased, fresh, events.Payload{
		"reason":  string(models.ReleaseReasonNoShow),
		"trigger": trigger,
	})
	return true, fresh, nil
}

// GetReservation returns the current record, applying a due no-show release
// first when AutoReleaseOnAccess is set.
func (s *Service) GetReservation(ctx context.Context, id string, now time.Time) (*models.Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.cfg.AutoReleaseOnAccess {
		return r, nil
	}
	_, fresh, err := s.autoReleaseLoaded(ctx, r, now, TriggerAccess)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}
