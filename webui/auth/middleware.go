package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"imagesynth/core"
	"imagesynth/logging"
	"imagesynth/webui"
)

// DefaultRealm is sent in the WWW-Authenticate challenge.
const DefaultRealm = "imagesynth"

// Config tunes the middleware. Zero values use the defaults.
type Config struct {
	Realm       string
	Cost        int
	MaxFailures int
	Window      time.Duration
	Block       time.Duration
}

// DefaultConfig returns five failures per 15 minutes, then a 30 minute block.
func DefaultConfig() Config {
	return Config{
		Realm:       DefaultRealm,
		Cost:        DefaultCost,
		MaxFailures: core.DefaultLoginMaxFailures,
		Window:      core.DefaultLoginWindow,
		Block:       core.DefaultLoginBlock,
	}
}

// BasicAuth checks HTTP Basic credentials against one bcrypt hash. The
// username is ignored. Clients that fail too often are blocked by IP.
type BasicAuth struct {
	hash    string
	realm   string
	limiter *webui.RateLimiter
	logger  *logging.Logger
}

var _ webui.AuthProvider = (*BasicAuth)(nil)

// NewBasicAuth builds the middleware for secret, which may be plaintext or a
// bcrypt hash (see PasswordHash).
func NewBasicAuth(secret string, logger *logging.Logger, cfg Config) (*BasicAuth, error) {
	if cfg.Cost == 0 {
		cfg.Cost = DefaultCost
	}
	if cfg.Realm == "" {
		cfg.Realm = DefaultRealm
	}

	hash, err := PasswordHash(secret, cfg.Cost)
	if err != nil {
		return nil, err
	}

	return &BasicAuth{
		hash:    hash,
		realm:   cfg.Realm,
		limiter: webui.NewRateLimiter(cfg.MaxFailures, cfg.Window, cfg.Block),
		logger:  logger.Named("auth"),
	}, nil
}

// Middleware implements webui.AuthProvider.
func (a *BasicAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := webui.ClientIP(r)

		if allowed, remaining := a.limiter.Allow(ip); !allowed {
			a.logger.Warn("blocked client rejected",
				zap.String("ip", ip),
				zap.Duration("remaining", remaining))
			w.Header().Set("Retry-After", formatRetryAfter(remaining))
			writeError(w, http.StatusTooManyRequests, "too many failed login attempts")
			return
		}

		_, password, ok := r.BasicAuth()
		if !ok {
			a.challenge(w)
			return
		}

		if err := VerifyPassword(password, a.hash); err != nil {
			a.limiter.RecordFailure(ip)
			a.logger.Info("failed authentication attempt",
				zap.String("ip", ip),
				zap.String("path", r.URL.Path),
				zap.Int("failures", a.limiter.Failures(ip)))
			a.challenge(w)
			return
		}

		a.limiter.Reset(ip)
		next.ServeHTTP(w, r)
	})
}

// StartCleanup drops expired limiter records every interval until ctx ends.
func (a *BasicAuth) StartCleanup(ctx context.Context, interval time.Duration) {
	a.limiter.StartCleanupTicker(ctx, interval)
}

// Limiter exposes the failure tracker.
func (a *BasicAuth) Limiter() *webui.RateLimiter {
	return a.limiter
}

func (a *BasicAuth) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm+`", charset="UTF-8"`)
	writeError(w, http.StatusUnauthorized, "authentication required")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}

// formatRetryAfter formats d as whole seconds, at least one.
func formatRetryAfter(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
