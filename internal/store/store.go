/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists pads and reservations through GORM and provides the
// per-pad serialized unit of work used when committing reservations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/dronepad/internal/interval"
	"github.com/friendsincode/dronepad/internal/models"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrBusy indicates a lock timeout, deadlock or serialization failure.
	// The operation may be retried.
	ErrBusy = errors.New("store busy")

	// ErrOverlapGuard indicates the database-level overlap trigger rejected a write.
	ErrOverlapGuard = errors.New("overlap guard violation")
)

// Tx is the view of the store available inside a pad lock.
type Tx interface {
	GetPad(ctx context.Context, id uint) (*models.Pad, error)
	ActiveReservations(ctx context.Context, padID uint, w interval.Window) ([]models.Reservation, error)
	CreateReservation(ctx context.Context, r *models.Reservation) error
}

// Transition describes a compare-and-set status change.
type Transition struct {
	To     models.ReservationStatus
	At     time.Time
	Reason models.ReleaseReason
}

// Options configures a Gorm store.
type Options struct {
	// LockTimeout bounds the wait for a pad's booking lock.
	LockTimeout time.Duration
	// Holder is recorded on the booking lock row, typically the instance ID.
	Holder string
}

// Gorm is the GORM-backed store.
type Gorm struct {
	db   *gorm.DB
	opts Options
}

// New returns a store over db.
func New(db *gorm.DB, opts Options) *Gorm {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	return &Gorm{db: db, opts: opts}
}

// DB exposes the underlying handle for wiring that needs raw access.
func (s *Gorm) DB() *gorm.DB {
	return s.db
}

// ListPads returns every pad ordered by ID.
func (s *Gorm) ListPads(ctx context.Context) ([]models.Pad, error) {
	var pads []models.Pad
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&pads).Error; err != nil {
		return nil, classify(fmt.Errorf("list pads: %w", err))
	}
	return pads, nil
}

// ListPadsInZone returns the pads of a zone ordered by ID.
func (s *Gorm) ListPadsInZone(ctx context.Context, zone string) ([]models.Pad, error) {
	var pads []models.Pad
	if err := s.db.WithContext(ctx).Where("zone = ?", zone).Order("id ASC").Find(&pads).Error; err != nil {
		return nil, classify(fmt.Errorf("list pads in zone %q: %w", zone, err))
	}
	return pads, nil
}

// GetPad loads a pad by ID.
func (s *Gorm) GetPad(ctx context.Context, id uint) (*models.Pad, error) {
	var pad models.Pad
	if err := s.db.WithContext(ctx).First(&pad, id).Error; err != nil {
		return nil, classify(fmt.Errorf("get pad %d: %w", id, err))
	}
	return &pad, nil
}

// SetPadOutOfService updates the pad's service flag and returns the new record.
func (s *Gorm) SetPadOutOfService(ctx context.Context, id uint, outOfService bool) (*models.Pad, error) {
	res := s.db.WithContext(ctx).Model(&models.Pad{}).Where("id = ?", id).Update("out_of_service", outOfService)
	if res.Error != nil {
		return nil, classify(fmt.Errorf("update pad %d: %w", id, res.Error))
	}
	// RowsAffected is unreliable on MySQL for unchanged values; reload instead.
	return s.GetPad(ctx, id)
}

// TogglePadOutOfService flips the pad's service flag in one UPDATE and
// returns the new record. A pad that would come back into service while
// failing Validate is left out of service and the error wraps
// models.ErrInvalidPad.
func (s *Gorm) TogglePadOutOfService(ctx context.Context, id uint) (*models.Pad, error) {
	var pad models.Pad
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Pad{}).Where("id = ?", id).Update("out_of_service", gorm.Expr("NOT out_of_service"))
		if res.Error != nil {
			return fmt.Errorf("toggle pad %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: pad %d", ErrNotFound, id)
		}
		if err := tx.First(&pad, id).Error; err != nil {
			return fmt.Errorf("reload pad %d: %w", id, err)
		}
		if pad.InService() {
			return pad.Validate()
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return &pad, nil
}

// ActiveReservations returns CONFIRMED and CHECKED_IN reservations on the pad
// that intersect w, ordered by start.
func (s *Gorm) ActiveReservations(ctx context.Context, padID uint, w interval.Window) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.db.WithContext(ctx).
		Where("pad_id = ? AND status IN ? AND starts_at < ? AND ends_at > ?",
			padID, models.ActiveStatuses(), w.End.UTC(), w.Start.UTC()).
		Order("starts_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, classify(fmt.Errorf("active reservations for pad %d: %w", padID, err))
	}
	return out, nil
}

// CreateReservation inserts r. Instants are normalized to UTC.
func (s *Gorm) CreateReservation(ctx context.Context, r *models.Reservation) error {
	r.StartsAt = r.StartsAt.UTC()
	r.EndsAt = r.EndsAt.UTC()
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(r).Error; err != nil {
		return classify(fmt.Errorf("create reservation: %w", err))
	}
	return nil
}

// GetReservation loads a reservation by ID.
func (s *Gorm) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, classify(fmt.Errorf("get reservation %s: %w", id, err))
	}
	return &r, nil
}

// TransitionReservation moves reservation id from status from to t.To. It
// reports false when the row was not in status from, leaving it untouched.
func (s *Gorm) TransitionReservation(ctx context.Context, id string, from models.ReservationStatus, t Transition) (bool, error) {
	at := t.At.UTC()
	updates := map[string]any{"status": t.To}
	switch t.To {
	case models.ReservationCheckedIn:
		updates["checked_in_at"] = at
	case models.ReservationReleased:
		updates["released_at"] = at
		updates["release_reason"] = t.Reason
	case models.ReservationCancelled:
		updates["cancelled_at"] = at
	}

	res := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, classify(fmt.Errorf("transition reservation %s: %w", id, res.Error))
	}
	return res.RowsAffected == 1, nil
}

// DueForAutoRelease returns CONFIRMED reservations never checked in that
// started at or before cutoff, oldest first.
func (s *Gorm) DueForAutoRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	var out []models.Reservation
	q := s.db.WithContext(ctx).
		Where("status = ? AND checked_in_at IS NULL AND starts_at <= ?", models.ReservationConfirmed, cutoff.UTC()).
		Order("starts_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, classify(fmt.Errorf("due for auto-release: %w", err))
	}
	return out, nil
}

// UpcomingReservations returns active reservations ending after since, with
// their pads, ordered by start.
func (s *Gorm) UpcomingReservations(ctx context.Context, since time.Time, limit int) ([]models.Reservation, error) {
	var out []models.Reservation
	q := s.db.WithContext(ctx).
		Preload("Pad").
		Where("status IN ? AND ends_at > ?", models.ActiveStatuses(), since.UTC()).
		Order("starts_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, classify(fmt.Errorf("upcoming reservations: %w", err))
	}
	return out, nil
}

// WithPadLock runs fn in one transaction holding the pad's booking lock. The
// lock row is upserted first, so a second caller for the same pad blocks
// until the first commits or rolls back, bounded by the lock timeout. Any
// error returned by fn rolls the whole unit back.
func (s *Gorm) WithPadLock(ctx context.Context, padID uint, fn func(tx Tx) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout+time.Second)
	defer cancel()

	err := s.db.WithContext(lockCtx).Transaction(func(tx *gorm.DB) error {
		if err := applyLockTimeout(tx, s.opts.LockTimeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}

		now := time.Now().UTC()
		lock := models.BookingLock{PadID: padID, Seq: 1, Holder: s.opts.Holder, LockedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "pad_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"seq":       gorm.Expr("booking_locks.seq + 1"),
				"holder":    s.opts.Holder,
				"locked_at": now,
			}),
		}).Create(&lock).Error; err != nil {
			return fmt.Errorf("acquire booking lock for pad %d: %w", padID, err)
		}

		return fn(&Gorm{db: tx, opts: s.opts})
	})
	if err != nil && errors.Is(lockCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: booking lock for pad %d: %w", ErrBusy, padID, err)
	}
	return classify(err)
}

func applyLockTimeout(tx *gorm.DB, timeout time.Duration) error {
	switch tx.Dialector.Name() {
	case "postgres":
		return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = %d", timeout.Milliseconds())).Error
	default:
		// MySQL takes innodb_lock_wait_timeout from the DSN and SQLite
		// waits through the DSN busy timeout.
		return nil
	}
}
