// Package logging provides the single process-wide logger every
// convoindex component derives its scoped logger from.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"convoindex/internal/config"
)

// New builds the root logger from a logging config. format "console"
// uses zerolog's human-readable ConsoleWriter (for local runs); any
// other value (including empty) emits JSON.
func New(cfg config.LoggingConfig) zerolog.Logger {
	level := parseLevel(cfg.Level)

	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component scopes a logger to a named component, e.g. logging.Component(log, "vectorstore").
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
