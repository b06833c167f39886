// Package logging provides the package-level structured logger used across
// the listener, session and reliability layers.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the severity names used throughout this module's logs.
type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger().Level(LevelInfo)
}

// SetLevel sets the minimum level emitted by the package logger.
func SetLevel(level Level) {
	base = base.Level(level)
}

// For returns a child logger scoped to a component, e.g. For("listener").
func For(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// Debug logs at debug level on the root logger.
func Debug() *zerolog.Event { return base.Debug() }

// Info logs at info level on the root logger.
func Info() *zerolog.Event { return base.Info() }

// Warn logs at warn level on the root logger.
func Warn() *zerolog.Event { return base.Warn() }

// Error logs at error level on the root logger.
func Error() *zerolog.Event { return base.Error() }
