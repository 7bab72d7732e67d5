package core

import (
	"time"
)

// Defaults for failed-login tracking on the web front end.
const (
	DefaultLoginWindow      = 15 * time.Minute
	DefaultLoginMaxFailures = 5
	DefaultLoginBlock       = 30 * time.Minute
)

// LoginRecord counts failed logins from one client within a window.
// Values are immutable; every transition returns a new record.
type LoginRecord struct {
	Failures int
	ResetAt  time.Time
}

// NewLoginRecord starts a record with one failure expiring after window.
func NewLoginRecord(now time.Time, window time.Duration) LoginRecord {
	return LoginRecord{
		Failures: 1,
		ResetAt:  now.Add(window),
	}
}

// Expired reports whether the record's window has passed.
func (r LoginRecord) Expired(now time.Time) bool {
	return now.After(r.ResetAt)
}

// Blocked reports whether the failure count reached maxFailures.
func (r LoginRecord) Blocked(maxFailures int) bool {
	return r.Failures >= maxFailures
}

// Remaining returns the time left before the record resets, never negative.
func (r LoginRecord) Remaining(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Fail records one more failure. An expired record restarts at one.
// Reaching maxFailures moves ResetAt out to now+block.
func (r LoginRecord) Fail(now time.Time, window, block time.Duration, maxFailures int) LoginRecord {
	if r.Expired(now) {
		return NewLoginRecord(now, window)
	}
	next := LoginRecord{Failures: r.Failures + 1, ResetAt: r.ResetAt}
	if next.Failures == maxFailures {
		next.ResetAt = now.Add(block)
	}
	return next
}
