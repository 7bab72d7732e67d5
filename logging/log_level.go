package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLogLevel maps a LOG_LEVEL value to a zap level, case-insensitively.
// Unknown or empty values return defaultLevel.
func ParseLogLevel(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return defaultLevel
	}
}
