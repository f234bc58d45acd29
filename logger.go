package auth

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogLogger adapts a *slog.Logger to Logger. Format strings are rendered
// with fmt before they reach the handler.
type SlogLogger struct {
	logger *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger wraps logger, falling back to slog.Default()
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// With returns a logger that adds attrs to every record
func (l *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

func (l *SlogLogger) Debug(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *SlogLogger) Info(format string, args ...any) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *SlogLogger) Warn(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *SlogLogger) Error(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l *SlogLogger) log(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

// LoggingActivitySink writes every activity event to a Logger
type LoggingActivitySink struct {
	Logger Logger
}

func (s LoggingActivitySink) Record(_ context.Context, event ActivityEvent) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("activity event=%s account=%s from=%s to=%s meta=%v",
		event.EventType, event.AccountID, event.FromState, event.ToState, event.Metadata)
	return nil
}
