/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// PayloadClass is the size class of a payload a pad can accept.
type PayloadClass string

const (
	PayloadSmall  PayloadClass = "S"
	PayloadMedium PayloadClass = "M"
	PayloadLarge  PayloadClass = "L"
)

// KnownPayloadClasses lists every class in canonical order.
var KnownPayloadClasses = []PayloadClass{PayloadSmall, PayloadMedium, PayloadLarge}

// ParsePayloadClass normalizes and validates a payload class string.
func ParsePayloadClass(s string) (PayloadClass, error) {
	pc := PayloadClass(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(KnownPayloadClasses, pc) {
		return "", fmt.Errorf("unknown payload class %q", s)
	}
	return pc, nil
}

// PayloadClassSet is the set of payload classes a pad accepts.
// Stored as a JSON array; legacy comma-separated values are read transparently.
type PayloadClassSet []PayloadClass

// NewPayloadClassSet builds a deduplicated set in canonical order.
func NewPayloadClassSet(classes ...PayloadClass) PayloadClassSet {
	set := make(PayloadClassSet, 0, len(classes))
	for _, known := range KnownPayloadClasses {
		if slices.Contains(classes, known) {
			set = append(set, known)
		}
	}
	return set
}

// ParsePayloadClassSet parses "S,M" style lists.
func ParsePayloadClassSet(csv string) (PayloadClassSet, error) {
	var classes []PayloadClass
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pc, err := ParsePayloadClass(part)
		if err != nil {
			return nil, err
		}
		classes = append(classes, pc)
	}
	return NewPayloadClassSet(classes...), nil
}

// Contains reports whether the class is in the set.
func (s PayloadClassSet) Contains(pc PayloadClass) bool {
	return slices.Contains(s, pc)
}

// String renders the set as "S,M".
func (s PayloadClassSet) String() string {
	parts := make([]string, len(s))
	for i, pc := range s {
		parts[i] = string(pc)
	}
	return strings.Join(parts, ",")
}

// Value implements driver.Valuer.
func (s PayloadClassSet) Value() (driver.Value, error) {
	if s == nil {
		s = PayloadClassSet{}
	}
	data, err := json.Marshal([]PayloadClass(s))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *PayloadClassSet) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*s = PayloadClassSet{}
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("scan payload class set: unsupported type %T", value)
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var classes []PayloadClass
		if err := json.Unmarshal([]byte(raw), &classes); err != nil {
			return fmt.Errorf("scan payload class set: %w", err)
		}
		*s = NewPayloadClassSet(classes...)
		return nil
	}

	parsed, err := ParsePayloadClassSet(raw)
	if err != nil {
		return fmt.Errorf("scan payload class set: %w", err)
	}
	*s = parsed
	return nil
}
