/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"fmt"

	"github.com/friendsincode/dronepad/internal/models"
)

// Eligible reports whether the pad is in service and accepts the class.
func Eligible(pad *models.Pad, class models.PayloadClass) bool {
	return CheckEligible(pad, class) == nil
}

// CheckEligible explains why a pad cannot take a payload class.
func CheckEligible(pad *models.Pad, class models.PayloadClass) error {
	if !pad.InService() {
		return fmt.Errorf("%w: pad %d", ErrPadOutOfService, pad.ID)
	}
	if !pad.AcceptedClasses.Contains(class) {
		return fmt.Errorf("%w: pad %d accepts %s, not %s", ErrPayloadIneligible, pad.ID, pad.AcceptedClasses, class)
	}
	return nil
}

// FilterEligible keeps the pads that can take class, preserving order.
func FilterEligible(pads []models.Pad, class models.PayloadClass) []models.Pad {
	out := make([]models.Pad, 0, len(pads))
	for i := range pads {
		if Eligible(&pads[i], class) {
			out = append(out, pads[i])
		}
	}
	return out
}
