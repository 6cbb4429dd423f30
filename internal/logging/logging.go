// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/config"
)

const consoleTimeFormat = "15:04:05.000"

// New returns a zerolog.Logger writing to w at the configured level and
// format. Unknown levels fall back to info.
func New(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: !isTerminal(w)}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
