// Package logger provides the global zerolog instance shared by all tripsync
// components. Output is JSON in production and a human console writer otherwise.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the global logger instance
var Log zerolog.Logger

func init() {
	// Default to JSON output for production
	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()

	// Pretty print for development if requested
	if os.Getenv("APP_ENV") != "production" {
		Log = Log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// With returns a child logger tagged with the given component name.
// Components use this so log lines can be filtered per subsystem
// (e.g. "queue", "coordinator", "kvstore").
func With(component string) zerolog.Logger {
	return Log.With().Str("component", component).Logger()
}

// SetLevel adjusts the global minimum level. Unknown level strings are
// ignored and leave the current level in place.
func SetLevel(level string) {
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}
