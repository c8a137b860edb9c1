/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPad indicates a pad record that violates its invariants.
var ErrInvalidPad = errors.New("invalid pad")

// Pad is a landing pad that can be reserved for one payload at a time.
type Pad struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"type:varchar(128);not null" json:"name"`
	Zone              string          `gorm:"type:varchar(32);index:idx_pads_zone;not null" json:"zone"`
	AcceptedClasses   PayloadClassSet `gorm:"type:text;not null" json:"accepted_classes"`
	TurnaroundMinutes int             `gorm:"not null;default:5" json:"turnaround_minutes"`
	SeparationSeconds int             `gorm:"not null" json:"separation_seconds"`
	OutOfService      bool            `gorm:"not null;default:false" json:"out_of_service"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Pad) TableName() string {
	return "pads"
}

// InService reports whether the pad is operationally available.
func (p *Pad) InService() bool {
	return !p.OutOfService
}

// Separation returns the mandatory idle buffer around each occupancy.
func (p *Pad) Separation() time.Duration {
	if p.SeparationSeconds < 0 {
		return 0
	}
	return time.Duration(p.SeparationSeconds) * time.Second
}

// Turnaround returns the pad's default reservation length.
func (p *Pad) Turnaround() time.Duration {
	return time.Duration(p.TurnaroundMinutes) * time.Minute
}

// Validate checks the pad invariants.
func (p *Pad) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPad)
	}
	if p.Zone == "" {
		return fmt.Errorf("%w: zone is required", ErrInvalidPad)
	}
	if p.SeparationSeconds < 0 {
		return fmt.Errorf("%w: separation must be >= 0, got %d", ErrInvalidPad, p.SeparationSeconds)
	}
	if p.TurnaroundMinutes <= 0 {
		return fmt.Errorf("%w: turnaround must be > 0, got %d", ErrInvalidPad, p.TurnaroundMinutes)
	}
	if p.InService() && len(p.AcceptedClasses) == 0 {
		return fmt.Errorf("%w: in-service pad %q accepts no payload class", ErrInvalidPad, p.Name)
	}
	return nil
}
