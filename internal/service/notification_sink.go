package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/wikigate/moderation-backend/internal/consequence"
)

// logSink logs notifications instead of delivering them; the host wires
// a real delivery channel when it has one.
type logSink struct {
	log zerolog.Logger
}

// NewLogNotificationSink creates a notification sink that only logs.
func NewLogNotificationSink(log zerolog.Logger) consequence.NotificationSink {
	return &logSink{log: log}
}

func (s *logSink) Send(ctx context.Context, userName, code string, params map[string]string) error {
	s.log.Info().
		Str("user", userName).
		Str("code", code).
		Interface("params", params).
		Msg("notification")
	return nil
}
