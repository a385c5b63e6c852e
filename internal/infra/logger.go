package infra

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Development runs get a console writer
// at debug level; everything else logs JSON at info. A non-empty level
// ("debug", "warn", ...) overrides the environment default.
func NewLogger(appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		lvl = parsed
	}

	ctx := zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", "vidluxe")
	if host, err := os.Hostname(); err == nil {
		ctx = ctx.Str("host", host)
	}
	logger := ctx.Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger
}

// Logger lets provider packages take a logger without importing zerolog.
type Logger = zerolog.Logger
