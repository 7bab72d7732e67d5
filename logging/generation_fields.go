package logging

import (
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// maxPromptLogRunes bounds how much of a prompt lands in a log line.
const maxPromptLogRunes = 80

// PromptField logs a prompt truncated to a readable length.
func PromptField(prompt string) zap.Field {
	return zap.String("prompt", truncateRunes(prompt, maxPromptLogRunes))
}

// RequestFields describes a generation request.
//
// Example:
//
//	logger.Info("generation requested", logging.RequestFields(prompt, 1344, 768, 4, seed, model)...)
func RequestFields(prompt string, width, height, steps int, seed int64, model string) []zap.Field {
	return []zap.Field{
		PromptField(prompt),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("num_inference_steps", steps),
		zap.Int64("seed", seed),
		zap.String("model", model),
	}
}

// AttemptFields describes one provider attempt. category is empty on success.
func AttemptFields(provider, category string, elapsed time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.String("provider", provider),
		zap.Duration("elapsed", elapsed),
	}
	if category != "" {
		fields = append(fields, zap.String("category", category))
	}
	return fields
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
