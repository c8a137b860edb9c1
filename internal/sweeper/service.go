/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sweeper releases no-show reservations in the background.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/dronepad/internal/booking"
	"github.com/friendsincode/dronepad/internal/models"
	"github.com/friendsincode/dronepad/internal/telemetry"
)

// DueLister finds reservations old enough to be no-shows.
type DueLister interface {
	DueForAutoRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
}

// Releaser applies the no-show rule to one reservation.
type Releaser interface {
	AutoRelease(ctx context.Context, id string, now time.Time) (bool, error)
}

// Config controls sweep cadence.
type Config struct {
	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
}

// Service periodically releases CONFIRMED reservations that were never
// checked in once their grace period has passed.
type Service struct {
	due      DueLister
	releaser Releaser
	cfg      Config
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a sweeper.
func NewService(due DueLister, releaser Releaser, cfg Config, logger zerolog.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Service{
		due:      due,
		releaser: releaser,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Enabled reports whether a sweep interval is configured.
func (s *Service) Enabled() bool {
	return s.cfg.Interval > 0
}

// Run sweeps every Interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Info().Msg("auto-release sweep disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("sweeper loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepOnce runs one pass and returns how many reservations it released.
// Batches repeat until a short batch is seen.
func (s *Service) SweepOnce(ctx context.Context) (int, error) {
	telemetry.SweeperTicksTotal.Inc()

	now := s.now()
	cutoff := now.Add(-s.cfg.Grace)
	released := 0
	seen := map[string]bool{}

	for {
		due, err := s.due.DueForAutoRelease(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			telemetry.SweeperErrorsTotal.WithLabelValues("load").Inc()
			return released, err
		}

		progressed := false
		for _, r := range due {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			progressed = true

			fired, err := s.releaser.AutoRelease(ctx, r.ID, now)
			if err != nil {
				if booking.IsDomainError(err) {
					continue
				}
				telemetry.SweeperErrorsTotal.WithLabelValues("release").Inc()
				s.logger.Warn().Err(err).Str("reservation_id", r.ID).Msg("auto-release failed")
				continue
			}
			if fired {
				released++
			}
		}

		if len(due) < s.cfg.BatchSize || !progressed || ctx.Err() != nil {
			break
		}
	}

	if released > 0 {
		s.logger.Info().Int("released", released).Msg("no-show reservations released")
	}
	return released, nil
}
