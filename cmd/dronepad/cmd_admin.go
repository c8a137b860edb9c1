/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/dronepad/internal/auth"
	"github.com/friendsincode/dronepad/internal/booking"
	"github.com/friendsincode/dronepad/internal/db"
	"github.com/friendsincode/dronepad/internal/integrity"
	"github.com/friendsincode/dronepad/internal/models"
	"github.com/friendsincode/dronepad/internal/store"
	"github.com/friendsincode/dronepad/internal/sweeper"
)

var (
	seedFile   string
	tokenSub   string
	tokenRoles []string
	tokenTTL   time.Duration

	integrityRepair bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert pads into an empty pads table",
	Long: `Seed the pad roster.

Pads are read from --file (or DRONEPAD_SEED_FILE). Without a file the built-in
demo roster is used. A table that already has pads is left untouched.

Examples:
  dronepad seed
  dronepad seed --file deploy/pads.yaml
`,
	RunE: runSeed,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one auto-release pass and exit",
	Long:  "Release every CONFIRMED reservation that was never checked in and is past its grace period.",
	RunE:  runSweep,
}

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Scan stored reservations for inconsistencies",
	Long: `Scan pads, reservations and booking locks and print a JSON report.

With --repair every repairable finding is fixed: orphaned reservations are
cancelled, invalid pads are taken out of service and orphaned booking locks
are deleted. Overlapping reservations are only reported.`,
	RunE: runIntegrity,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed admin bearer token",
	RunE:  runToken,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML pad fixture (defaults to DRONEPAD_SEED_FILE)")

	tokenCmd.Flags().StringVar(&tokenSub, "subject", "admin", "Token subject, recorded as the audit actor")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{auth.RoleAdmin}, "Roles to grant (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")

	integrityCmd.Flags().BoolVar(&integrityRepair, "repair", false, "Repair repairable findings after the scan")

	rootCmd.AddCommand(migrateCmd, seedCmd, sweepCmd, integrityCmd, tokenCmd)
}

// openDatabase connects and migrates.
func openDatabase() (*gorm.DB, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, err
	}
	return database, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	logger.Info().Str("backend", string(cfg.DBBackend)).Msg("database schema up to date")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	path := seedFile
	if path == "" {
		path = cfg.SeedFile
	}

	var pads []models.Pad
	if path != "" {
		var err error
		pads, err = db.LoadPadFixture(path)
		if err != nil {
			return err
		}
	} else {
		pads = db.DefaultPads()
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	n, err := db.SeedPads(cmd.Context(), database, pads)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "pads table not empty, nothing seeded")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d pads\n", n)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	st := store.New(database, store.Options{LockTimeout: cfg.LockTimeout, Holder: "dronepad-sweep"})
	svc := booking.NewService(st, nil, booking.ConfigFrom(cfg), logger)
	sw := sweeper.NewService(st, svc, sweeper.Config{
		Grace:     cfg.AutoReleaseGrace,
		BatchSize: cfg.AutoReleaseBatchSize,
	}, logger)

	released, err := sw.SweepOnce(booking.WithActor(cmd.Context(), "sweep"))
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "released %d no-show reservations\n", released)
	return nil
}

func runIntegrity(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	var overdue time.Duration
	if cfg.AutoReleaseSweepInterval > 0 {
		overdue = cfg.AutoReleaseGrace + 2*cfg.AutoReleaseSweepInterval
	}
	svc := integrity.NewService(database, overdue, logger)
	report, err := svc.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !integrityRepair {
		return nil
	}

	repaired := 0
	for _, f := range report.Findings {
		if !f.Repairable {
			continue
		}
		res, err := svc.Repair(cmd.Context(), integrity.RepairInput{Type: f.Type, ResourceID: f.ResourceID})
		if err != nil {
			logger.Error().Err(err).Str("finding", f.ID).Msg("repair failed")
			continue
		}
		if res.Changed {
			repaired++
		}
		logger.Info().Str("finding", f.ID).Bool("changed", res.Changed).Msg(res.Message)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "repaired %d of %d findings\n", repaired, report.Total)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.JWTSigningKey == "" {
		return fmt.Errorf("DRONEPAD_JWT_SIGNING_KEY must be set to issue tokens")
	}
	if strings.TrimSpace(tokenSub) == "" {
		return fmt.Errorf("--subject must not be empty")
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), tokenSub, tokenRoles, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
