package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var zlog zerolog.Logger

// InitStructured initializes the process logger: pretty console output
// in development, JSON elsewhere. LOG_LEVEL overrides the default level
// (debug in development, info otherwise).
func InitStructured(env string) {
	dev := env == "development" || env == "dev" || env == "local"

	var w io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if dev {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zlog = zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", "moderation-backend").
		Logger()
}

// GetLogger returns the process logger.
func GetLogger() *zerolog.Logger {
	return &zlog
}

// WithRequestID returns a logger with a request_id field.
func WithRequestID(requestID string) zerolog.Logger {
	return zlog.With().Str("request_id", requestID).Logger()
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return zlog.With().Str("component", name).Logger()
}
