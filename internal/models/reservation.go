/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/dronepad/internal/interval"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCheckedIn ReservationStatus = "CHECKED_IN"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// ActiveStatuses are the statuses that occupy a pad.
func ActiveStatuses() []ReservationStatus {
	return []ReservationStatus{ReservationConfirmed, ReservationCheckedIn}
}

// IsActive reports whether the status occupies the pad.
func (s ReservationStatus) IsActive() bool {
	return s == ReservationConfirmed || s == ReservationCheckedIn
}

// IsTerminal reports whether no further transition is allowed.
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationReleased || s == ReservationCancelled
}

// ReleaseReason records why a reservation was released.
type ReleaseReason string

const (
	ReleaseReasonManual ReleaseReason = "manual"
	ReleaseReasonNoShow ReleaseReason = "no_show"
)

// Reservation is a confirmed occupancy of a pad.
type Reservation struct {
	ID            string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	PadID         uint              `gorm:"not null;index:idx_res_pad_time,priority:1" json:"pad_id"`
	PayloadClass  PayloadClass      `gorm:"type:varchar(8);not null" json:"payload_class"`
	StartsAt      time.Time         `gorm:"not null;index:idx_res_pad_time,priority:2" json:"starts_at"`
	EndsAt        time.Time         `gorm:"not null;index:idx_res_pad_time,priority:3" json:"ends_at"`
	Status        ReservationStatus `gorm:"type:varchar(16);not null;index:idx_res_status" json:"status"`
	CheckedInAt   *time.Time        `json:"checked_in_at,omitempty"`
	ReleasedAt    *time.Time        `json:"released_at,omitempty"`
	ReleaseReason ReleaseReason     `gorm:"type:varchar(16)" json:"release_reason,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`

	Pad *Pad `gorm:"foreignKey:PadID;constraint:OnDelete:CASCADE" json:"pad,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Reservation) TableName() string {
	return "reservations"
}

// Window returns the occupied range [StartsAt, EndsAt).
func (r *Reservation) Window() interval.Window {
	return interval.Window{Start: r.StartsAt, End: r.EndsAt}
}

// IsActive reports whether the reservation currently occupies its pad.
func (r *Reservation) IsActive() bool {
	return r.Status.IsActive()
}

// BookingLock is the per-pad row every commit upserts before its conflict
// check, so concurrent commits on one pad are serialized by the database.
type BookingLock struct {
	PadID    uint      `gorm:"primaryKey;autoIncrement:false"`
	Seq      int64     `gorm:"not null;default:0"`
	Holder   string    `gorm:"type:varchar(64)"`
	LockedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (BookingLock) TableName() string {
	return "booking_locks"
}
