/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/dronepad/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Pad{},
		&models.Reservation{},
		&models.BookingLock{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	if err := applyPostgresReservationOverlapGuard(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresReservationOverlapGuard mirrors the buffered overlap rule in
// the database: an active reservation may not intersect another active
// reservation on the same pad widened by the pad's separation.
func applyPostgresReservationOverlapGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE OR REPLACE FUNCTION prevent_pad_reservation_overlap()
RETURNS trigger
LANGUAGE plpgsql
AS $$
DECLARE
  sep interval;
BEGIN
  IF NEW.ends_at <= NEW.starts_at THEN
    RAISE EXCEPTION 'reservation end must be after start'
      USING ERRCODE = '23514';
  END IF;

  IF NEW.status NOT IN ('CONFIRMED', 'CHECKED_IN') THEN
    RETURN NEW;
  END IF;

  SELECT make_interval(secs => GREATEST(p.separation_seconds, 0))
    INTO sep
    FROM pads p
   WHERE p.id = NEW.pad_id;
  IF sep IS NULL THEN
    sep := interval '0 seconds';
  END IF;

  IF EXISTS (
    SELECT 1
    FROM reservations r
    WHERE r.pad_id = NEW.pad_id
      AND r.id <> NEW.id
      AND r.status IN ('CONFIRMED', 'CHECKED_IN')
      AND tstzrange(r.starts_at - sep, r.ends_at + sep, '[)') && tstzrange(NEW.starts_at, NEW.ends_at, '[)')
  ) THEN
    RAISE EXCEPTION 'overlapping reservation is not allowed for pad %', NEW.pad_id
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_prevent_pad_reservation_overlap ON reservations;

CREATE TRIGGER trg_prevent_pad_reservation_overlap
BEFORE INSERT OR UPDATE OF pad_id, starts_at, ends_at, status
ON reservations
FOR EACH ROW
EXECUTE FUNCTION prevent_pad_reservation_overlap();
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres reservation overlap guard: %w", err)
	}

	return nil
}
