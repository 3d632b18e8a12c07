// Package logging provides the process-wide structured logger every
// component derives its own component-scoped child from, the way
// minis/50-mini-service-all-features wires github.com/rs/zerolog across
// its middleware stack.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the base logger. level follows zerolog's names
// ("debug", "info", "warn", "error"); an unrecognized value falls back to
// info.
func New(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(parsed).With().Timestamp().Logger()
}

// Component returns a child logger tagged with component, so every log
// line from the producer or transaction service is attributable at a
// glance.
func Component(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
