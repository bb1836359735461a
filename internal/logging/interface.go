package logging

import "context"

// LoggerInterface defines the common interface for all loggers. Arguments
// after the message are alternating key-value pairs, never printf verbs.
type LoggerInterface interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})

	SetLevel(level Level)
	GetLevel() Level
}

// ContextLogger extends LoggerInterface with context support.
type ContextLogger interface {
	LoggerInterface
	WithContext(ctx context.Context) ContextLogger
	WithField(key string, value interface{}) ContextLogger
	WithFields(fields map[string]interface{}) ContextLogger
}

// Ensure our loggers implement the interfaces.
var (
	_ ContextLogger = (*Logger)(nil)
	_ ContextLogger = (*StructuredLogger)(nil)
)
