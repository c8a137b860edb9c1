/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, nil)
}

// SetupWithWriter configures zerolog and writes to out instead of stdout when set.
// Development gets a human-readable console at debug level; everything else
// gets JSON lines at info level.
func SetupWithWriter(environment string, out io.Writer) zerolog.Logger {
	return SetupWithCapture(environment, out, nil)
}

// SetupWithCapture is SetupWithWriter plus an optional capture writer that
// always receives the raw JSON lines, even when out gets console output.
func SetupWithCapture(environment string, out, capture io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if out == nil {
		out = os.Stdout
	}

	level := zerolog.InfoLevel
	writer := out
	if strings.EqualFold(environment, "development") {
		level = zerolog.DebugLevel
		writer = zerolog.ConsoleWriter{Out: out}
	}

	if capture != nil {
		writer = zerolog.MultiLevelWriter(writer, capture)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
