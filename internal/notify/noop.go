package notify

import (
	"context"
	"log/slog"
)

// NoopSink implements Sink by logging discarded notifications. It is used
// when no delivery backend is configured.
type NoopSink struct {
	log *slog.Logger
}

// NewNoopSink creates a sink that discards notifications with a log message.
func NewNoopSink(log *slog.Logger) *NoopSink {
	return &NoopSink{log: log}
}

// Name implements Sink.
func (n *NoopSink) Name() string { return "noop" }

// Send logs and discards one notification.
func (n *NoopSink) Send(_ context.Context, userID, subject, _ string) error {
	n.log.Debug("notification discarded (no backend configured)",
		"user", userID,
		"subject", subject,
	)
	return nil
}
