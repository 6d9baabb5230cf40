// Package logging builds the process logger.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns the root logger: human-readable console output in DEV,
// structured JSON everywhere else.
func New(env, appName string) zerolog.Logger {
	var logger zerolog.Logger
	if env == "DEV" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.With().Timestamp().Str("app", appName).Logger()
}
