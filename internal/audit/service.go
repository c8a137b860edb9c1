/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/models"
)

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	done   chan struct{}
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
		done:   make(chan struct{}),
	}
}

// Start subscribes to reservation and pad events and records them until
// ctx is done. Subscriptions exist when Start returns.
func (s *Service) Start(ctx context.Context) {
	confirmed := s.bus.Subscribe(events.EventReservationConfirmed)
	checkedIn := s.bus.Subscribe(events.EventReservationCheckedIn)
	released := s.bus.Subscribe(events.EventReservationReleased)
	cancelled := s.bus.Subscribe(events.EventReservationCancelled)
	padUpdated := s.bus.Subscribe(events.EventPadUpdated)

	s.logger.Info().Msg("audit service started")

	go func() {
		defer close(s.done)
		defer func() {
			s.bus.Unsubscribe(events.EventReservationConfirmed, confirmed)
			s.bus.Unsubscribe(events.EventReservationCheckedIn, checkedIn)
			s.bus.Unsubscribe(events.EventReservationReleased, released)
			s.bus.Unsubscribe(events.EventReservationCancelled, cancelled)
			s.bus.Unsubscribe(events.EventPadUpdated, padUpdated)
		}()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("audit service stopping")
				return

			case payload := <-confirmed:
				s.logAuditEntry(ctx, models.AuditActionReservationConfirm, payload)

			case payload := <-checkedIn:
				s.logAuditEntry(ctx, models.AuditActionReservationCheckIn, payload)

			case payload := <-released:
				s.logAuditEntry(ctx, models.AuditActionReservationRelease, payload)

			case payload := <-cancelled:
				s.logAuditEntry(ctx, models.AuditActionReservationCancel, payload)

			case payload := <-padUpdated:
				s.logAuditEntry(ctx, models.AuditActionPadServiceToggle, payload)
			}
		}
	}()
}

// Done is closed once the event loop has exited.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}

	if id, ok := payload["reservation_id"].(string); ok && id != "" {
		entry.ReservationID = &id
	}
	switch v := payload["pad_id"].(type) {
	case uint:
		entry.PadID = &v
	case int:
		id := uint(v)
		entry.PadID = &id
	}
	if actor, ok := payload["actor"].(string); ok {
		entry.Actor = actor
	}

	for k, v := range payload {
		switch k {
		case "reservation_id", "pad_id", "actor":
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	// Persist even when the triggering request was cancelled.
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// ListForReservation returns a reservation's audit trail, oldest first.
func (s *Service) ListForReservation(ctx context.Context, reservationID string) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("timestamp ASC").
		Find(&logs).Error
	return logs, err
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	PadID     *uint
	Action    *models.AuditAction
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.PadID != nil {
		query = query.Where("pad_id = ?", *filters.PadID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", filters.StartTime.UTC())
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", filters.EndTime.UTC())
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
