package webui

import (
	"context"
	"sync"
	"time"

	"imagesynth/core"
)

// RateLimiter blocks clients that fail authentication too often.
//
// Each failure within the window increments the client's record. Reaching
// maxFailures blocks the client for the block duration; a successful login
// clears the record. Expired records are dropped by Cleanup.
type RateLimiter struct {
	mu          sync.RWMutex
	records     map[string]core.LoginRecord
	maxFailures int
	window      time.Duration
	block       time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a RateLimiter. Non-positive values fall back to the
// core.DefaultLogin* constants.
func NewRateLimiter(maxFailures int, window, block time.Duration) *RateLimiter {
	if maxFailures <= 0 {
		maxFailures = core.DefaultLoginMaxFailures
	}
	if window <= 0 {
		window = core.DefaultLoginWindow
	}
	if block <= 0 {
		block = core.DefaultLoginBlock
	}
	return &RateLimiter{
		records:     make(map[string]core.LoginRecord),
		maxFailures: maxFailures,
		window:      window,
		block:       block,
		now:         time.Now,
	}
}

// Allow reports whether ip may attempt authentication, and if not, how long
// until the block lifts.
func (r *RateLimiter) Allow(ip string) (bool, time.Duration) {
	r.mu.RLock()
	record, ok := r.records[ip]
	r.mu.RUnlock()

	now := r.now()
	if !ok || record.Expired(now) {
		return true, 0
	}
	if record.Blocked(r.maxFailures) {
		return false, record.Remaining(now)
	}
	return true, 0
}

// RecordFailure counts one failed attempt from ip.
func (r *RateLimiter) RecordFailure(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record, ok := r.records[ip]
	if !ok {
		r.records[ip] = core.NewLoginRecord(now, r.window)
		return
	}
	r.records[ip] = record.Fail(now, r.window, r.block, r.maxFailures)
}

// Reset clears ip's record after a successful login.
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	delete(r.records, ip)
	r.mu.Unlock()
}

// Cleanup removes expired records and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for ip, record := range r.records {
		if record.Expired(now) {
			delete(r.records, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is cancelled.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked clients.
func (r *RateLimiter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Failures returns ip's failure count within the current window.
func (r *RateLimiter) Failures(ip string) int {
	r.mu.RLock()
	record, ok := r.records[ip]
	r.mu.RUnlock()

	if !ok || record.Expired(r.now()) {
		return 0
	}
	return record.Failures
}
