package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger is a plain-text logger writing through the standard library log
// package. It satisfies ContextLogger by folding fields into the line suffix.
type Logger struct {
	logger *log.Logger
	level  Level
	mu     sync.RWMutex
	fields map[string]interface{}
}

func NewLogger(prefix string, level string) *Logger {
	return NewLoggerWithWriter(os.Stderr, prefix, level)
}

func NewLoggerWithWriter(w io.Writer, prefix string, level string) *Logger {
	return &Logger{
		logger: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds),
		level:  parseLevel(level),
		fields: make(map[string]interface{}),
	}
}

func parseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *Logger) output(tag, msg string, kvs ...interface{}) {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i+1 < len(kvs); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", kvs[i], kvs[i+1])
	}
	if len(kvs)%2 == 1 {
		fmt.Fprintf(&sb, " extra=%v", kvs[len(kvs)-1])
	}
	l.logger.Printf("%s %s%s", tag, sb.String(), l.fieldSuffix())
}

func (l *Logger) fieldSuffix() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, l.fields[k])
	}
	return sb.String()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	if l.shouldLog(DebugLevel) {
		l.output("[DEBUG]", msg, keysAndValues...)
	}
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	if l.shouldLog(InfoLevel) {
		l.output("[INFO]", msg, keysAndValues...)
	}
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	if l.shouldLog(WarnLevel) {
		l.output("[WARN]", msg, keysAndValues...)
	}
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	if l.shouldLog(ErrorLevel) {
		l.output("[ERROR]", msg, keysAndValues...)
	}
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.output("[FATAL]", msg, keysAndValues...)
	os.Exit(1)
}

func (l *Logger) clone() *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{
		logger: l.logger,
		level:  l.level,
		fields: fields,
	}
}

// WithContext returns a logger carrying the context's correlation and
// request IDs as fields.
func (l *Logger) WithContext(ctx context.Context) ContextLogger {
	newLogger := l.clone()
	if correlationID, ok := CorrelationIDFromContext(ctx); ok {
		newLogger.fields["correlation_id"] = correlationID
	}
	if requestID, ok := RequestIDFromContext(ctx); ok {
		newLogger.fields["request_id"] = requestID
	}
	return newLogger
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) ContextLogger {
	newLogger := l.clone()
	newLogger.fields[key] = value
	return newLogger
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) ContextLogger {
	newLogger := l.clone()
	for k, v := range fields {
		newLogger.fields[k] = v
	}
	return newLogger
}
