// Package metrics keeps in-memory provider statistics for the running
// process: attempt counts per provider and failure category, fallback count
// and a ring of the most recent attempts. Nothing here is persisted; the db
// package owns durable history.
package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"imagesynth/imagegen"
)

// DefaultRecentCapacity is the number of attempts kept for Snapshot.Recent.
const DefaultRecentCapacity = 100

type providerAgg struct {
	role          imagegen.Role
	attempts      int64
	successes     int64
	failures      map[imagegen.FailureCategory]int64
	totalDuration time.Duration
	last          time.Time
}

// Store aggregates attempts. It implements imagegen.AttemptRecorder and is
// safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	recent     []imagegen.AttemptEntry // ring buffer
	recentCap  int
	recentHead int
	recentSize int

	total     int64
	fallbacks int64
	providers map[string]*providerAgg
	health    Health

	startTime time.Time
	now       func() time.Time
}

var _ imagegen.AttemptRecorder = (*Store)(nil)

// NewStore creates a Store keeping up to capacity recent attempts. A
// non-positive capacity uses DefaultRecentCapacity.
func NewStore(capacity int, startTime time.Time) *Store {
	if capacity < 1 {
		capacity = DefaultRecentCapacity
	}
	return &Store{
		recent:    make([]imagegen.AttemptEntry, capacity),
		recentCap: capacity,
		providers: make(map[string]*providerAgg),
		health:    HealthOK,
		startTime: startTime,
		now:       time.Now,
	}
}

// RecordAttempt implements imagegen.AttemptRecorder.
func (s *Store) RecordAttempt(_ context.Context, e imagegen.AttemptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent[s.recentHead] = e
	s.recentHead = (s.recentHead + 1) % s.recentCap
	if s.recentSize < s.recentCap {
		s.recentSize++
	}

	s.total++
	if e.Role == imagegen.RoleSecondary {
		s.fallbacks++
	}

	agg, ok := s.providers[e.Provider]
	if !ok {
		agg = &providerAgg{role: e.Role, failures: make(map[imagegen.FailureCategory]int64)}
		s.providers[e.Provider] = agg
	}
	agg.attempts++
	agg.totalDuration += e.Duration
	agg.last = e.StartedAt
	if e.Success {
		agg.successes++
	} else {
		agg.failures[e.Category]++
	}

	if e.Role == imagegen.RolePrimary {
		switch {
		case e.Success:
			s.health = HealthOK
		case e.Category == imagegen.CategoryQuotaOrPayment || e.Category == imagegen.CategoryRateLimited:
			s.health = HealthLimited
		default:
			s.health = HealthDegraded
		}
	}
}

// Recent returns up to limit attempts, most recent first.
func (s *Store) Recent(limit int) []imagegen.AttemptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(limit)
}

func (s *Store) recentLocked(limit int) []imagegen.AttemptEntry {
	if limit <= 0 || limit > s.recentSize {
		limit = s.recentSize
	}
	out := make([]imagegen.AttemptEntry, limit)
	for i := 0; i < limit; i++ {
		idx := (s.recentHead - 1 - i + s.recentCap) % s.recentCap
		out[i] = s.recent[idx]
	}
	return out
}

// Snapshot returns the aggregated state with providers sorted by name.
func (s *Store) Snapshot(recent int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Health:    s.health,
		Uptime:    s.now().Sub(s.startTime),
		Attempts:  s.total,
		Fallbacks: s.fallbacks,
		Providers: make([]ProviderStats, 0, len(s.providers)),
		Recent:    s.recentLocked(recent),
	}

	for name, agg := range s.providers {
		ps := ProviderStats{
			Provider:    name,
			Role:        agg.role,
			Attempts:    agg.attempts,
			Successes:   agg.successes,
			Failures:    make(map[imagegen.FailureCategory]int64, len(agg.failures)),
			LastAttempt: agg.last,
		}
		for c, n := range agg.failures {
			ps.Failures[c] = n
		}
		if agg.attempts > 0 {
			ps.SuccessRate = float64(agg.successes) / float64(agg.attempts) * 100
			ps.AvgDuration = agg.totalDuration / time.Duration(agg.attempts)
		}
		snap.Providers = append(snap.Providers, ps)
	}
	sort.Slice(snap.Providers, func(i, j int) bool {
		return snap.Providers[i].Provider < snap.Providers[j].Provider
	})

	return snap
}
