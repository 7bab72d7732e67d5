// Package logging provides the structured logger used across imagesynth.
// It wraps zap with a console+file tee, log rotation, and redaction of
// provider credentials before any field reaches an encoder.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger and redacts sensitive data from every entry.
//
// Example:
//
//	logger, err := NewLogger(true, "app.log")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("server started", zap.Int("port", 5001))
//	logger.Infow("generation finished", "service", "primary", "seed", 42)
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger

	isDevelopment bool
	logFilePath   string
}

// NewLogger creates a Logger at debug level in development and info level otherwise.
//
// The log file is rotated by lumberjack (100MB, 5 backups, 30 days, gzip).
// Development mode writes colored console output; production writes JSON
// to both console and file.
func NewLogger(isDevelopment bool, logFilePath string) (*Logger, error) {
	level := zapcore.InfoLevel
	if isDevelopment {
		level = zapcore.DebugLevel
	}
	return NewLoggerWithLevel(level, isDevelopment, logFilePath, DefaultFileWriterConfig())
}

// NewLoggerWithLevel creates a Logger with an explicit level and rotation policy.
func NewLoggerWithLevel(level zapcore.Level, isDevelopment bool, logFilePath string, fileConfig FileWriterConfig) (*Logger, error) {
	// lumberjack opens lazily, so probe the path to fail fast on bad directories
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	f.Close()

	fileWriter := NewFileWriterWithConfig(logFilePath, fileConfig)
	core := NewMultiCore(level, zapcore.Lock(os.Stdout), fileWriter, isDevelopment)

	return newLogger(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), isDevelopment, logFilePath), nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return newLogger(zap.NewNop(), false, "")
}

// FromZap wraps an existing zap logger, e.g. zaptest.NewLogger in tests.
// Redaction still applies.
func FromZap(z *zap.Logger) *Logger {
	if z == nil {
		return NewNop()
	}
	return newLogger(z, false, "")
}

func newLogger(z *zap.Logger, isDevelopment bool, logFilePath string) *Logger {
	return &Logger{
		zap:           z,
		sugar:         z.Sugar(),
		isDevelopment: isDevelopment,
		logFilePath:   logFilePath,
	}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel with optional structured fields.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, l.redactFields(fields)...)
}

// Info logs a message at InfoLevel with optional structured fields.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, l.redactFields(fields)...)
}

// Warn logs a message at WarnLevel with optional structured fields.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, l.redactFields(fields)...)
}

// Error logs a message at ErrorLevel with optional structured fields.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, l.redactFields(fields)...)
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, l.redactFields(fields)...)
}

// Debugw logs a message at DebugLevel with loosely-typed key-value pairs.
func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, redactKeysAndValues(keysAndValues)...)
}

// Infow logs a message at InfoLevel with loosely-typed key-value pairs.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, redactKeysAndValues(keysAndValues)...)
}

// Warnw logs a message at WarnLevel with loosely-typed key-value pairs.
func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, redactKeysAndValues(keysAndValues)...)
}

// Errorw logs a message at ErrorLevel with loosely-typed key-value pairs.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, redactKeysAndValues(keysAndValues)...)
}

// Infof logs a formatted message at InfoLevel. Arguments are not redacted.
func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

// Warnf logs a formatted message at WarnLevel. Arguments are not redacted.
func (l *Logger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

// With creates a child logger that adds fields to every entry.
//
// Example:
//
//	reqLogger := logger.With(zap.String("correlation_id", id))
//	reqLogger.Info("attempting primary provider")
func (l *Logger) With(fields ...zap.Field) *Logger {
	return newLogger(l.zap.With(l.redactFields(fields)...), l.isDevelopment, l.logFilePath)
}

// Named adds a sub-logger name, e.g. "orchestrator" or "webui".
func (l *Logger) Named(name string) *Logger {
	return newLogger(l.zap.Named(name), l.isDevelopment, l.logFilePath)
}

// Zap returns the underlying zap.Logger for packages that take one directly.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment returns true if the logger is configured for development mode.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the path to the log file.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

func (l *Logger) redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}
	if field.Type == zapcore.StringType {
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	}
	if field.Type == zapcore.ErrorType {
		if err, ok := field.Interface.(error); ok && err != nil {
			msg := err.Error()
			if redacted := RedactSensitiveData(msg); redacted != msg {
				return zap.String(field.Key, redacted)
			}
		}
	}
	return field
}

// redactKeysAndValues filters sugared key-value pairs: even indices are keys.
func redactKeysAndValues(keysAndValues []interface{}) []interface{} {
	if len(keysAndValues) == 0 {
		return keysAndValues
	}

	result := make([]interface{}, len(keysAndValues))
	copy(result, keysAndValues)

	for i := 0; i < len(result)-1; i += 2 {
		key, ok := result[i].(string)
		if !ok {
			continue
		}
		if IsSensitiveField(key) {
			result[i+1] = RedactedPlaceholder
			continue
		}
		if value, ok := result[i+1].(string); ok {
			result[i+1] = RedactSensitiveData(value)
		}
	}
	return result
}
