// Package xlog wraps zerolog as a constructed per-component dependency,
// deliberately avoiding a package-level global logger so every
// component's logger is traceable to an explicit construction site.
package xlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Format selects the console or JSON zerolog writer.
type Format int

const (
	FormatConsole Format = iota
	FormatJSON
)

// Options configures the root logger a process constructs once.
type Options struct {
	Level  zerolog.Level
	Format Format
	Output io.Writer
}

// Logger is a component-scoped structured logger.
type Logger struct {
	zerolog.Logger
}

// NewRoot builds the process-wide root logger from Options. Components
// derive their own scoped Logger from it via With — the root itself is
// passed down explicitly, never read from a global.
func NewRoot(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var writer io.Writer = out
	if opts.Format == FormatConsole {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000000"}
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro

	l := zerolog.New(writer).Level(opts.Level).With().Timestamp().Logger()
	return &Logger{Logger: l}
}

// With returns a child Logger tagged with the given component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("component", component).Logger()}
}

// WithStr returns a child logger with one extra string field.
func (l *Logger) WithStr(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With().Str(key, value).Logger()}
}

// Noop returns a disabled logger, useful as a safe zero value in tests.
func Noop() *Logger {
	return &Logger{Logger: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}
