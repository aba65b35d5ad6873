// Package logging configures the zerolog logger shared by all govibe binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger for the given level ("debug", "info", "warn", "error")
// and format ("json" or "console"). Unknown levels fall back to info.
func New(level, format string) zerolog.Logger {
	var out io.Writer = os.Stderr
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339

	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Nop returns a disabled logger, handy as a default in library code.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
