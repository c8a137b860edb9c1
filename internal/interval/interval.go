/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package interval decides whether two occupancy windows conflict once a
// separation buffer is applied around the existing one.
package interval

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow indicates a window whose end is not after its start.
var ErrInvalidWindow = errors.New("window end must be after start")

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds a window and validates it.
func New(start, end time.Time) (Window, error) {
	w := Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate returns ErrInvalidWindow when End <= Start.
func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: [%s, %s)", ErrInvalidWindow, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports plain half-open intersection. Touching endpoints do not overlap.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Expand widens the window by margin on both sides.
func (w Window) Expand(margin time.Duration) Window {
	if margin < 0 {
		margin = 0
	}
	return Window{Start: w.Start.Add(-margin), End: w.End.Add(margin)}
}

// Buffered returns the window with the separation buffer applied on both sides.
func (w Window) Buffered(sep time.Duration) Window {
	return w.Expand(sep)
}

// String formats the window for logs and error messages.
func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Conflicts reports whether candidate intersects existing once existing is
// widened by sep on each side. A negative sep is treated as zero.
func Conflicts(candidate, existing Window, sep time.Duration) bool {
	return candidate.Overlaps(existing.Buffered(sep))
}
