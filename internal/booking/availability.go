/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/dronepad/internal/interval"
	"github.com/friendsincode/dronepad/internal/models"
	"github.com/friendsincode/dronepad/internal/telemetry"
)

// SearchRequest asks for free slots in a zone.
type SearchRequest struct {
	Zone         string
	Window       interval.Window
	PayloadClass models.PayloadClass
	// Turnaround is the length of each slot. Ignored when UsePadTurnaround is set.
	Turnaround       time.Duration
	UsePadTurnaround bool
}

// PadSlots is the set of free slots offered on one pad.
type PadSlots struct {
	Pad   models.Pad        `json:"pad"`
	Slots []interval.Window `json:"slots"`
}

func (s *Service) validateSearch(req *SearchRequest) error {
	req.Zone = strings.TrimSpace(req.Zone)
	if req.Zone == "" {
		return fmt.Errorf("%w: zone is required", ErrInvalidParameter)
	}
	if err := req.Window.Validate(); err != nil {
		return err
	}
	class, err := models.ParsePayloadClass(string(req.PayloadClass))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	req.PayloadClass = class
	if !req.UsePadTurnaround && req.Turnaround <= 0 {
		return fmt.Errorf("%w: turnaround must be positive, got %s", ErrInvalidParameter, req.Turnaround)
	}
	if s.cfg.MaxSearchSpan > 0 && req.Window.Duration() > s.cfg.MaxSearchSpan {
		return fmt.Errorf("%w: search span %s exceeds %s", ErrInvalidParameter, req.Window.Duration(), s.cfg.MaxSearchSpan)
	}
	return nil
}

// FindAvailableSlots returns, per eligible pad in the zone, the first
// candidate windows that conflict with no active reservation. Pads come in
// ID order and slots in chronological order; pads with no free slot are
// omitted. The result is advisory: a commit re-checks under lock.
func (s *Service) FindAvailableSlots(ctx context.Context, req SearchRequest) ([]PadSlots, error) {
	ctx, span := telemetry.StartSpan(ctx, "booking.FindAvailableSlots")
	defer span.End()

	if err := s.validateSearch(&req); err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() {
		telemetry.SearchDuration.WithLabelValues(req.Zone).Observe(time.Since(started).Seconds())
	}()

	pads, err := s.pads.ListPadsInZone(ctx, req.Zone)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, translateStoreErr(fmt.Errorf("load pads: %w", err))
	}
	eligible := FilterEligible(pads, req.PayloadClass)

	results := make([]PadSlots, 0, len(eligible))
	offered := 0
	for i := range eligible {
		pad := &eligible[i]
		slots, err := s.padSlots(ctx, pad, req)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if len(slots) == 0 {
			continue
		}
		offered += len(slots)
		results = append(results, PadSlots{Pad: *pad, Slots: slots})
	}

	telemetry.SlotsOfferedTotal.WithLabelValues(req.Zone).Add(float64(offered))
	span.SetAttributes(
		telemetry.ZoneAttr(req.Zone),
		telemetry.PayloadClassAttr(string(req.PayloadClass)),
		telemetry.AttrPadsEligible.Int(len(eligible)),
		telemetry.AttrSlotsReturned.Int(offered),
	)

	s.logger.Debug().
		Str("zone", req.Zone).
		Str("payload_class", string(req.PayloadClass)).
		Stringer("window", req.Window).
		Int("pads", len(results)).
		Int("slots", offered).
		Msg("availability search")

	return results, nil
}

func (s *Service) padSlots(ctx context.Context, pad *models.Pad, req SearchRequest) ([]interval.Window, error) {
	turn := req.Turnaround
	if req.UsePadTurnaround {
		turn = pad.Turnaround()
	}

	gen, err := NewGenerator(req.Window, turn, s.cfg.Step)
	if err != nil {
		if req.UsePadTurnaround {
			// A misconfigured pad must not fail the whole zone.
			s.logger.Warn().Err(err).Uint("pad_id", pad.ID).Msg("skipping pad with unusable turnaround")
			return nil, nil
		}
		return nil, err
	}

	existing, err := s.store.ActiveReservations(ctx, pad.ID, req.Window.Expand(s.lookupMargin(pad)))
	if err != nil {
		return nil, translateStoreErr(fmt.Errorf("load reservations for pad %d: %w", pad.ID, err))
	}

	sep := pad.Separation()
	var slots []interval.Window
	for candidate := range gen.Seq() {
		if conflictsAny(candidate, existing, sep) {
			continue
		}
		slots = append(slots, candidate)
		if s.cfg.MaxSlotsPerPad > 0 && len(slots) >= s.cfg.MaxSlotsPerPad {
			break
		}
	}
	return slots, nil
}

// conflictsAny reports whether candidate collides with any active reservation.
func conflictsAny(candidate interval.Window, existing []models.Reservation, sep time.Duration) bool {
	return firstConflict(candidate, existing, sep) != nil
}

func firstConflict(candidate interval.Window, existing []models.Reservation, sep time.Duration) *models.Reservation {
	for i := range existing {
		if !existing[i].IsActive() {
			continue
		}
		if interval.Conflicts(candidate, existing[i].Window(), sep) {
			return &existing[i]
		}
	}
	return nil
}
