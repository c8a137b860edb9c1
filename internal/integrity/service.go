/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dronepad/internal/interval"
	"github.com/friendsincode/dronepad/internal/models"
)

type FindingType string

const (
	FindingReservationOverlap FindingType = "reservation_overlap"
	FindingOrphanReservation  FindingType = "orphan_reservation"
	FindingOverdueNoShow      FindingType = "overdue_no_show"
	FindingInvalidPad         FindingType = "invalid_pad"
	FindingOrphanBookingLock  FindingType = "orphan_booking_lock"
)

type Finding struct {
	ID         string         `json:"id"`
	Type       FindingType    `json:"type"`
	Severity   string         `json:"severity"`
	Summary    string         `json:"summary"`
	PadID      *uint          `json:"pad_id,omitempty"`
	ResourceID string         `json:"resource_id"`
	Repairable bool           `json:"repairable"`
	Details    map[string]any `json:"details,omitempty"`
}

type Report struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Total       int                 `json:"total"`
	ByType      map[FindingType]int `json:"by_type"`
	Findings    []Finding           `json:"findings"`
}

type RepairInput struct {
	Type       FindingType `json:"type"`
	ResourceID string      `json:"resource_id"`
}

type RepairResult struct {
	Changed bool           `json:"changed"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Service scans stored state for records that break booking invariants.
type Service struct {
	db *gorm.DB
	// overdueAfter is how long past start a never-checked-in reservation may
	// stay CONFIRMED before it is reported.
	overdueAfter time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

func NewService(db *gorm.DB, overdueAfter time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		db:           db,
		overdueAfter: overdueAfter,
		now:          time.Now,
		logger:       logger.With().Str("component", "integrity").Logger(),
	}
}

func (s *Service) Scan(ctx context.Context) (*Report, error) {
	findings := make([]Finding, 0, 32)

	for _, scan := range []func(context.Context) ([]Finding, error){
		s.scanReservationOverlaps,
		s.scanOrphanReservations,
		s.scanOverdueNoShows,
		s.scanInvalidPads,
		s.scanOrphanBookingLocks,
	} {
		added, err := scan(ctx)
		if err != nil {
			return nil, err
		}
		findings = append(findings, added...)
	}

	byType := make(map[FindingType]int)
	for _, f := range findings {
		byType[f.Type]++
	}

	report := &Report{
		GeneratedAt: s.now().UTC(),
		Total:       len(findings),
		ByType:      byType,
		Findings:    findings,
	}

	if report.Total > 0 {
		s.logger.Warn().Int("total_findings", report.Total).Interface("by_type", byType).Msg("integrity scan completed with findings")
	} else {
		s.logger.Info().Msg("integrity scan completed with no findings")
	}

	return report, nil
}

// Repair fixes one repairable finding. Overlaps and overdue no-shows are
// reported only; they are resolved through the booking lifecycle.
func (s *Service) Repair(ctx context.Context, input RepairInput) (RepairResult, error) {
	switch input.Type {
	case FindingOrphanReservation:
		return s.repairOrphanReservation(ctx, input)
	case FindingInvalidPad:
		return s.repairInvalidPad(ctx, input)
	case FindingOrphanBookingLock:
		return s.repairOrphanBookingLock(ctx, input)
	default:
		return RepairResult{}, fmt.Errorf("unsupported finding type: %s", input.Type)
	}
}

// scanReservationOverlaps reports active reservation pairs on one pad whose
// separation-buffered windows intersect.
func (s *Service) scanReservationOverlaps(ctx context.Context) ([]Finding, error) {
	var pads []models.Pad
	if err := s.db.WithContext(ctx).Order("id").Find(&pads).Error; err != nil {
		return nil, err
	}

	var findings []Finding
	for i := range pads {
		pad := &pads[i]
		var active []models.Reservation
		if err := s.db.WithContext(ctx).
			Where("pad_id = ? AND status IN ?", pad.ID, models.ActiveStatuses()).
			Order("starts_at, id").
			Find(&active).Error; err != nil {
			return nil, err
		}

		sep := pad.Separation()
		for a := 0; a < len(active); a++ {
			reach := active[a].EndsAt.Add(sep)
			for b := a + 1; b < len(active) && active[b].StartsAt.Before(reach); b++ {
				if !interval.Conflicts(active[b].Window(), active[a].Window(), sep) {
					continue
				}
				padID := pad.ID
				pair := active[a].ID + "+" + active[b].ID
				findings = append(findings, Finding{
					ID:         findingID(FindingReservationOverlap, pair),
					Type:       FindingReservationOverlap,
					Severity:   "critical",
					Summary:    "Active reservations on one pad violate the separation buffer",
					PadID:      &padID,
					ResourceID: pair,
					Details: map[string]any{
						"first":              active[a].ID,
						"first_window":       active[a].Window().String(),
						"second":             active[b].ID,
						"second_window":      active[b].Window().String(),
						"separation_seconds": pad.SeparationSeconds,
					},
				})
			}
		}
	}
	return findings, nil
}

func (s *Service) scanOrphanReservations(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID     string
		PadID  uint
		Status string
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("reservations").
		Select("reservations.id, reservations.pad_id, reservations.status").
		Joins("LEFT JOIN pads ON pads.id = reservations.pad_id").
		Where("pads.id IS NULL AND reservations.status IN ?", models.ActiveStatuses()).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		padID := r.PadID
		findings = append(findings, Finding{
			ID:         findingID(FindingOrphanReservation, r.ID),
			Type:       FindingOrphanReservation,
			Severity:   "high",
			Summary:    "Active reservation references a missing pad",
			PadID:      &padID,
			ResourceID: r.ID,
			Repairable: true,
			Details:    map[string]any{"status": r.Status},
		})
	}
	return findings, nil
}

func (s *Service) scanOverdueNoShows(ctx context.Context) ([]Finding, error) {
	if s.overdueAfter <= 0 {
		return nil, nil
	}
	cutoff := s.now().UTC().Add(-s.overdueAfter)

	var rows []models.Reservation
	if err := s.db.WithContext(ctx).
		Where("status = ? AND checked_in_at IS NULL AND starts_at <= ?", models.ReservationConfirmed, cutoff).
		Order("starts_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		padID := r.PadID
		findings = append(findings, Finding{
			ID:         findingID(FindingOverdueNoShow, r.ID),
			Type:       FindingOverdueNoShow,
			Severity:   "medium",
			Summary:    "No-show reservation was never auto-released",
			PadID:      &padID,
			ResourceID: r.ID,
			Details: map[string]any{
				"starts_at": r.StartsAt.UTC().Format(time.RFC3339),
			},
		})
	}
	return findings, nil
}

func (s *Service) scanInvalidPads(ctx context.Context) ([]Finding, error) {
	var pads []models.Pad
	if err := s.db.WithContext(ctx).Order("id").Find(&pads).Error; err != nil {
		return nil, err
	}

	var findings []Finding
	for i := range pads {
		pad := &pads[i]
		err := pad.Validate()
		if err == nil {
			continue
		}
		padID := pad.ID
		findings = append(findings, Finding{
			ID:         findingID(FindingInvalidPad, fmt.Sprint(pad.ID)),
			Type:       FindingInvalidPad,
			Severity:   "high",
			Summary:    "Pad configuration is invalid",
			PadID:      &padID,
			ResourceID: fmt.Sprint(pad.ID),
			Repairable: pad.InService(),
			Details: map[string]any{
				"name":  pad.Name,
				"error": err.Error(),
			},
		})
	}
	return findings, nil
}

func (s *Service) scanOrphanBookingLocks(ctx context.Context) ([]Finding, error) {
	var padIDs []uint
	if err := s.db.WithContext(ctx).
		Table("booking_locks").
		Select("booking_locks.pad_id").
		Joins("LEFT JOIN pads ON pads.id = booking_locks.pad_id").
		Where("pads.id IS NULL").
		Scan(&padIDs).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(padIDs))
	for _, id := range padIDs {
		padID := id
		findings = append(findings, Finding{
			ID:         findingID(FindingOrphanBookingLock, fmt.Sprint(id)),
			Type:       FindingOrphanBookingLock,
			Severity:   "low",
			Summary:    "Booking lock row references a missing pad",
			PadID:      &padID,
			ResourceID: fmt.Sprint(id),
			Repairable: true,
		})
	}
	return findings, nil
}

func (s *Service) repairOrphanReservation(ctx context.Context, input RepairInput) (RepairResult, error) {
	var r models.Reservation
	if err := s.db.WithContext(ctx).First(&r, "id = ?", input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "reservation not found (already removed)"}, nil
		}
		return RepairResult{}, err
	}
	if !r.IsActive() {
		return RepairResult{Changed: false, Message: "reservation already inactive"}, nil
	}

	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", r.ID, r.Status).
		Updates(map[string]any{"status": models.ReservationCancelled, "cancelled_at": now})
	if res.Error != nil {
		return RepairResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return RepairResult{Changed: false, Message: "reservation changed concurrently"}, nil
	}

	return RepairResult{
		Changed: true,
		Message: "cancelled reservation on missing pad",
		Details: map[string]any{"previous_status": string(r.Status)},
	}, nil
}

func (s *Service) repairInvalidPad(ctx context.Context, input RepairInput) (RepairResult, error) {
	var pad models.Pad
	if err := s.db.WithContext(ctx).First(&pad, "id = ?", input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "pad not found (already removed)"}, nil
		}
		return RepairResult{}, err
	}
	if pad.Validate() == nil {
		return RepairResult{Changed: false, Message: "pad already valid"}, nil
	}
	if pad.OutOfService {
		return RepairResult{Changed: false, Message: "pad already out of service"}, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Pad{}).
		Where("id = ?", pad.ID).
		Update("out_of_service", true).Error; err != nil {
		return RepairResult{}, err
	}

	return RepairResult{
		Changed: true,
		Message: "took invalid pad out of service",
		Details: map[string]any{"pad_id": pad.ID},
	}, nil
}

func (s *Service) repairOrphanBookingLock(ctx context.Context, input RepairInput) (RepairResult, error) {
	res := s.db.WithContext(ctx).
		Where("pad_id = ? AND NOT EXISTS (SELECT 1 FROM pads WHERE pads.id = booking_locks.pad_id)", input.ResourceID).
		Delete(&models.BookingLock{})
	if res.Error != nil {
		return RepairResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return RepairResult{Changed: false, Message: "booking lock already removed"}, nil
	}
	return RepairResult{Changed: true, Message: "deleted orphan booking lock"}, nil
}

func findingID(t FindingType, resourceID string) string {
	return fmt.Sprintf("%s|%s", t, resourceID)
}
