/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/dronepad/internal/models"
)

// PadFixture is the YAML seed file layout.
type PadFixture struct {
	Pads []PadSeed `yaml:"pads"`
}

// PadSeed describes one pad in a fixture.
type PadSeed struct {
	Name              string     `yaml:"name"`
	Zone              string     `yaml:"zone"`
	AcceptedClasses   classNames `yaml:"accepted_classes"`
	TurnaroundMinutes int        `yaml:"turnaround_minutes"`
	SeparationSeconds *int       `yaml:"separation_seconds"`
	OutOfService      bool       `yaml:"out_of_service"`
}

// classNames accepts either a YAML list ([S, M]) or a comma-separated string ("S,M").
type classNames []string

func (c *classNames) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*c = strings.Split(node.Value, ",")
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	default:
		return fmt.Errorf("accepted_classes: expected list or string at line %d", node.Line)
	}
}

// DefaultPads returns the built-in pad roster.
func DefaultPads() []models.Pad {
	return []models.Pad{
		{Name: "Roof A-1", Zone: "A", AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall, models.PayloadMedium), TurnaroundMinutes: 5, SeparationSeconds: 90},
		{Name: "Roof A-2", Zone: "A", AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall), TurnaroundMinutes: 5, SeparationSeconds: 60},
		{Name: "Courtyard B-1", Zone: "B", AcceptedClasses: models.NewPayloadClassSet(models.PayloadMedium, models.PayloadLarge), TurnaroundMinutes: 10, SeparationSeconds: 120},
		{Name: "Courtyard B-2", Zone: "B", AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall, models.PayloadMedium, models.PayloadLarge), TurnaroundMinutes: 5, SeparationSeconds: 90},
	}
}

// LoadPadFixture reads and validates a YAML pad fixture.
func LoadPadFixture(path string) ([]models.Pad, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pad fixture: %w", err)
	}
	return ParsePadFixture(data)
}

// ParsePadFixture decodes a YAML pad fixture.
func ParsePadFixture(data []byte) ([]models.Pad, error) {
	var fixture PadFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("decode pad fixture: %w", err)
	}
	if len(fixture.Pads) == 0 {
		return nil, fmt.Errorf("pad fixture has no pads")
	}

	pads := make([]models.Pad, 0, len(fixture.Pads))
	for i, seed := range fixture.Pads {
		classes, err := models.ParsePayloadClassSet(strings.Join(seed.AcceptedClasses, ","))
		if err != nil {
			return nil, fmt.Errorf("pad %d (%s): %w", i, seed.Name, err)
		}
		pad := models.Pad{
			Name:              strings.TrimSpace(seed.Name),
			Zone:              strings.TrimSpace(seed.Zone),
			AcceptedClasses:   classes,
			TurnaroundMinutes: seed.TurnaroundMinutes,
			SeparationSeconds: 90,
			OutOfService:      seed.OutOfService,
		}
		if pad.TurnaroundMinutes == 0 {
			pad.TurnaroundMinutes = 5
		}
		if seed.SeparationSeconds != nil {
			pad.SeparationSeconds = *seed.SeparationSeconds
		}
		if pad.Name == "" || pad.Zone == "" {
			return nil, fmt.Errorf("pad %d: name and zone are required", i)
		}
		if err := pad.Validate(); err != nil {
			return nil, fmt.Errorf("pad %d (%s): %w", i, pad.Name, err)
		}
		pads = append(pads, pad)
	}
	return pads, nil
}

// SeedPads inserts pads when the pads table is empty and returns the number
// inserted. A populated table is left untouched.
func SeedPads(ctx context.Context, database *gorm.DB, pads []models.Pad) (int, error) {
	inserted := 0
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Pad{}).Count(&count).Error; err != nil {
			return fmt.Errorf("count pads: %w", err)
		}
		if count > 0 {
			return nil
		}
		if len(pads) == 0 {
			return nil
		}
		if err := tx.Create(&pads).Error; err != nil {
			return fmt.Errorf("insert pads: %w", err)
		}
		inserted = len(pads)
		return nil
	})
	return inserted, err
}
