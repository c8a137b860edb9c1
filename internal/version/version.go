/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of DronePad.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/dronepad/internal/version.Version=X.Y.Z
var Version = "0.3.0"

// Commit is the VCS revision, set at build time.
var Commit = "unknown"

// String renders the version line printed by "dronepad version".
func String() string {
	return fmt.Sprintf("dronepad %s (%s, %s)", Version, Commit, runtime.Version())
}
