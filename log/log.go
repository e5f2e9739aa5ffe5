// Package log defines the logging port used across the book-reconstruction
// pipeline. Components take a Logger at construction time rather than
// reaching for a package-level singleton, so a caller can swap backends or
// feed a no-op logger into a test without touching global state.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the logging port every component depends on. The method shapes
// mirror printf-style leveled logging so call sites read the same whether
// they target an adapter, the publisher, or the supervisor.
type Logger interface {
	Debugf(subsystem, format string, args ...any)
	Infof(subsystem, format string, args ...any)
	Warnf(subsystem, format string, args ...any)
	Errorf(subsystem, format string, args ...any)
}

// zerologLogger is the default Logger backend.
type zerologLogger struct {
	base zerolog.Logger
}

// New returns a Logger that writes structured JSON lines to w.
func New(w io.Writer) Logger {
	return &zerologLogger{base: zerolog.New(w).With().Timestamp().Logger()}
}

// NewConsole returns a Logger that writes to stderr.
func NewConsole() Logger {
	return New(os.Stderr)
}

func (l *zerologLogger) Debugf(subsystem, format string, args ...any) {
	l.base.Debug().Str("subsystem", subsystem).Msgf(format, args...)
}

func (l *zerologLogger) Infof(subsystem, format string, args ...any) {
	l.base.Info().Str("subsystem", subsystem).Msgf(format, args...)
}

func (l *zerologLogger) Warnf(subsystem, format string, args ...any) {
	l.base.Warn().Str("subsystem", subsystem).Msgf(format, args...)
}

func (l *zerologLogger) Errorf(subsystem, format string, args ...any) {
	l.base.Error().Str("subsystem", subsystem).Msgf(format, args...)
}

// Nop is a Logger that discards everything; useful for tests.
func Nop() Logger { return &zerologLogger{base: zerolog.Nop()} }
