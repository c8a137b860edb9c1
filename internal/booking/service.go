/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package booking finds free landing-pad slots, commits reservations without
// overlaps, and drives the reservation lifecycle.
package booking

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/dronepad/internal/config"
	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/models"
	"github.com/friendsincode/dronepad/internal/store"
)

// Config tunes the engine.
type Config struct {
	Step                time.Duration
	MaxSlotsPerPad      int
	LookupMargin        time.Duration
	MaxSearchSpan       time.Duration
	CheckInGraceBefore  time.Duration
	AutoReleaseGrace    time.Duration
	AutoReleaseOnAccess bool
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Step:                5 * time.Minute,
		MaxSlotsPerPad:      10,
		LookupMargin:        60 * time.Minute,
		MaxSearchSpan:       24 * time.Hour,
		CheckInGraceBefore:  2 * time.Minute,
		AutoReleaseGrace:    10 * time.Minute,
		AutoReleaseOnAccess: true,
	}
}

// ConfigFrom extracts the engine tuning from the service configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Step:                cfg.SlotStep,
		MaxSlotsPerPad:      cfg.MaxSlotsPerPad,
		LookupMargin:        cfg.LookupMargin,
		MaxSearchSpan:       cfg.MaxSearchSpan,
		CheckInGraceBefore:  cfg.CheckInGraceBefore,
		AutoReleaseGrace:    cfg.AutoReleaseGrace,
		AutoReleaseOnAccess: cfg.AutoReleaseOnAccess,
	}
}

// PadSource lists the pads of a zone ordered by ID.
type PadSource interface {
	ListPadsInZone(ctx context.Context, zone string) ([]models.Pad, error)
}

// Store is the persistence the engine needs.
type Store interface {
	store.Tx
	PadSource
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	TransitionReservation(ctx context.Context, id string, from models.ReservationStatus, t store.Transition) (bool, error)
	WithPadLock(ctx context.Context, padID uint, fn func(tx store.Tx) error) error
}

// Service is the booking engine.
type Service struct {
	store  Store
	pads   PadSource
	bus    *events.Bus
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a booking service. bus may be nil.
func NewService(st Store, bus *events.Bus, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		pads:   st,
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

// SetPadSource replaces the pad lookup used by searches, e.g. with a cache.
// Commits always read the store.
func (s *Service) SetPadSource(p PadSource) {
	if p != nil {
		s.pads = p
	}
}

// SetClock overrides the time source used where the caller supplies none.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// Config returns the engine tuning.
func (s *Service) Config() Config {
	return s.cfg
}

// lookupMargin is the widening applied when loading reservations that could
// conflict. It never drops below the pad's separation.
func (s *Service) lookupMargin(pad *models.Pad) time.Duration {
	return max(s.cfg.LookupMargin, pad.Separation())
}

type actorKey struct{}

// WithActor tags ctx with who is acting, for events and the audit trail.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor set by WithActor, or "system".
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, r *models.Reservation, extra events.Payload) {
	payload := events.Payload{
		"reservation_id": r.ID,
		"pad_id":         r.PadID,
		"payload_class":  string(r.PayloadClass),
		"status":         string(r.Status),
		"starts_at":      r.StartsAt.UTC().Format(time.RFC3339),
		"ends_at":        r.EndsAt.UTC().Format(time.RFC3339),
		"actor":          ActorFromContext(ctx),
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.bus.Publish(eventType, payload)
}
