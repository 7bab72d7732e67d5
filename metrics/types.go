package metrics

import (
	"time"

	"imagesynth/imagegen"
)

// Health summarizes recent provider behaviour.
type Health string

const (
	// HealthOK means the most recent attempt on the primary succeeded, or none ran yet.
	HealthOK Health = "ok"
	// HealthLimited means the primary last failed on quota or rate limits.
	HealthLimited Health = "limited"
	// HealthDegraded means the primary last failed for another reason.
	HealthDegraded Health = "degraded"
)

// ProviderStats aggregates every attempt against one provider.
type ProviderStats struct {
	Provider    string                           `json:"provider"`
	Role        imagegen.Role                    `json:"role"`
	Attempts    int64                            `json:"attempts"`
	Successes   int64                            `json:"successes"`
	Failures    map[imagegen.FailureCategory]int64 `json:"failures"`
	SuccessRate float64                          `json:"success_rate"`
	AvgDuration time.Duration                    `json:"avg_duration_ns"`
	LastAttempt time.Time                        `json:"last_attempt"`
}

// Snapshot is a consistent copy of the collector state.
type Snapshot struct {
	Health    Health                  `json:"health"`
	Uptime    time.Duration           `json:"uptime_ns"`
	Attempts  int64                   `json:"attempts"`
	Fallbacks int64                   `json:"fallbacks"`
	Providers []ProviderStats         `json:"providers"`
	Recent    []imagegen.AttemptEntry `json:"recent"`
}
