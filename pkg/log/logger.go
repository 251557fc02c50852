package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

type Fields map[string]interface{}

// New returns a JSON logger in production and a human-readable console
// logger everywhere else.
func New(env string) Logger {
	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if env != "production" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "serenify-auth").Logger()
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() Logger {
	return zerolog.Nop()
}

func With(logger Logger, fields Fields) Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}
