/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"fmt"
	"iter"
	"time"

	"github.com/friendsincode/dronepad/internal/interval"
)

// Generator enumerates fixed-length candidate windows inside a span.
type Generator struct {
	span interval.Window
	turn time.Duration
	step time.Duration
}

// NewGenerator validates the span, turnaround and step.
func NewGenerator(span interval.Window, turn, step time.Duration) (*Generator, error) {
	if err := span.Validate(); err != nil {
		return nil, err
	}
	if turn <= 0 {
		return nil, fmt.Errorf("%w: turnaround must be positive, got %s", ErrInvalidParameter, turn)
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %s", ErrInvalidParameter, step)
	}
	return &Generator{span: span, turn: turn, step: step}, nil
}

// Seq yields [t, t+turn) for t = span.Start + k*step while t+turn <= span.End.
// Every call starts over from span.Start.
func (g *Generator) Seq() iter.Seq[interval.Window] {
	return func(yield func(interval.Window) bool) {
		for k := 0; ; k++ {
			start := g.span.Start.Add(time.Duration(k) * g.step)
			end := start.Add(g.turn)
			if end.After(g.span.End) {
				return
			}
			if !yield(interval.Window{Start: start, End: end}) {
				return
			}
		}
	}
}
