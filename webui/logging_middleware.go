package webui

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagesynth/logging"
)

// LoggingMiddleware logs every HTTP request with method, path, status and duration.
type LoggingMiddleware struct {
	logger    RequestLogger
	skipPaths map[string]bool
}

// RequestLogger receives one entry per completed request.
type RequestLogger interface {
	LogRequest(entry RequestLogEntry)
}

// RequestLogEntry describes a completed HTTP request.
type RequestLogEntry struct {
	Timestamp     time.Time
	Method        string
	Path          string
	StatusCode    int
	Duration      time.Duration
	RemoteAddr    string
	UserAgent     string
	ContentLength int64
}

// ZapRequestLogger writes entries to a logging.Logger. 5xx responses log at
// error level, 4xx at warn and everything else at info.
type ZapRequestLogger struct {
	Logger *logging.Logger
}

// LogRequest implements RequestLogger.
func (z *ZapRequestLogger) LogRequest(entry RequestLogEntry) {
	fields := []zap.Field{
		zap.String("method", entry.Method),
		zap.String("path", entry.Path),
		zap.Int("status", entry.StatusCode),
		zap.Duration("duration", entry.Duration.Round(time.Millisecond)),
		zap.String("remote_addr", entry.RemoteAddr),
		zap.Int64("bytes", entry.ContentLength),
	}
	switch {
	case entry.StatusCode >= 500:
		z.Logger.Error("http request", fields...)
	case entry.StatusCode >= 400:
		z.Logger.Warn("http request", fields...)
	default:
		z.Logger.Info("http request", fields...)
	}
}

// NoopLogger discards all entries.
type NoopLogger struct{}

// LogRequest does nothing.
func (NoopLogger) LogRequest(RequestLogEntry) {}

// LoggingMiddlewareConfig configures a LoggingMiddleware.
type LoggingMiddlewareConfig struct {
	// Logger receives entries (default: NoopLogger)
	Logger RequestLogger

	// SkipPaths are exact paths never logged, e.g. "/health"
	SkipPaths []string
}

// NewLoggingMiddleware logs through logger, skipping the given paths.
func NewLoggingMiddleware(logger *logging.Logger, skipPaths ...string) *LoggingMiddleware {
	return NewLoggingMiddlewareWithConfig(LoggingMiddlewareConfig{
		Logger:    &ZapRequestLogger{Logger: logger.Named("http")},
		SkipPaths: skipPaths,
	})
}

// NewLoggingMiddlewareWithConfig creates a LoggingMiddleware from config.
func NewLoggingMiddlewareWithConfig(config LoggingMiddlewareConfig) *LoggingMiddleware {
	if config.Logger == nil {
		config.Logger = NoopLogger{}
	}

	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return &LoggingMiddleware{
		logger:    config.Logger,
		skipPaths: skipPaths,
	}
}

// Handler wraps next with request logging.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriterWrapper{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		m.logger.LogRequest(RequestLogEntry{
			Timestamp:     start,
			Method:        r.Method,
			Path:          r.URL.Path,
			StatusCode:    wrapped.statusCode,
			Duration:      time.Since(start),
			RemoteAddr:    clientIP(r),
			UserAgent:     r.UserAgent(),
			ContentLength: wrapped.bytesWritten,
		})
	})
}

// responseWriterWrapper captures the status code and body size.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher if the underlying writer supports it.
func (w *responseWriterWrapper) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// clientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ClientIP is exported for the auth middleware, which keys its limiter on it.
func ClientIP(r *http.Request) string {
	return clientIP(r)
}
