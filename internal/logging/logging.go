// Package logging configures the structured logger shared across every
// component. Each component derives its own child logger tagged with its
// name (and, for per-source workers, the source) via With/Str rather than
// passing format strings around.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the process-wide base logger. Call Component on it to tag a
// subsystem.
func New() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
}

// Component returns a child logger tagged with the given component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
