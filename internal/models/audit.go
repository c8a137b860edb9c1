/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

const (
	AuditActionReservationConfirm AuditAction = "reservation.confirm"
	AuditActionReservationCheckIn AuditAction = "reservation.checkin"
	AuditActionReservationRelease AuditAction = "reservation.release"
	AuditActionReservationCancel  AuditAction = "reservation.cancel"
	AuditActionPadServiceToggle   AuditAction = "pad.service_toggle"
)

// AuditLog records reservation and pad state changes.
type AuditLog struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp     time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	Action        AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	ReservationID *string        `gorm:"type:varchar(36);index:idx_audit_reservation" json:"reservation_id,omitempty"`
	PadID         *uint          `gorm:"index:idx_audit_pad" json:"pad_id,omitempty"`
	Actor         string         `gorm:"type:varchar(128)" json:"actor,omitempty"` // "system" for sweeps
	Details       map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
