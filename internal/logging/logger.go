package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New constructs a zerolog logger. Unknown levels fall back to info and any
// format other than "console" produces JSON lines on stdout.
func New(level, format, env string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, format, env)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(out io.Writer, level, format, env string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && parsed != zerolog.NoLevel {
		lvl = parsed
	}
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("app", "autopoint").
		Str("env", env).
		Logger()
}
