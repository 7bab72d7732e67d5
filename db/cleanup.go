package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"imagesynth/logging"
)

// CleanupResult reports one retention pass.
type CleanupResult struct {
	// AttemptsDeleted is the number of provider_attempts rows removed
	AttemptsDeleted int64
	// Cutoff is the creation time before which rows were removed
	Cutoff time.Time
	// Duration is how long the cleanup took
	Duration time.Duration
}

// Cleanup deletes attempts older than retentionDays and runs VACUUM.
// A retentionDays of 0 keeps everything.
func (d *Database) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	if retentionDays < 0 {
		return CleanupResult{}, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if retentionDays == 0 {
		return CleanupResult{}, nil
	}
	return d.DeleteBefore(ctx, time.Now().AddDate(0, 0, -retentionDays))
}

// DeleteBefore deletes attempts created before cutoff and runs VACUUM. The
// delete is committed even when VACUUM fails; the error then says so.
func (d *Database) DeleteBefore(ctx context.Context, cutoff time.Time) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{Cutoff: cutoff}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return result, errClosed
	}

	res, err := d.db.ExecContext(ctx, "DELETE FROM provider_attempts WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return result, fmt.Errorf("failed to delete from provider_attempts: %w", err)
	}
	result.AttemptsDeleted, err = res.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if result.AttemptsDeleted > 0 {
		if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig holds configuration for the cleanup scheduler.
type CleanupSchedulerConfig struct {
	// RetentionDays is the number of days to retain attempts (0 keeps everything)
	RetentionDays int
	// Interval is how often to run cleanup
	Interval time.Duration
}

// DefaultCleanupSchedulerConfig keeps 30 days and runs daily.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		RetentionDays: 30,
		Interval:      24 * time.Hour,
	}
}

// StartCleanupScheduler runs Cleanup immediately and then every interval
// until ctx is cancelled. Results are logged. The returned channel is closed
// when the scheduler goroutine exits.
func (d *Database) StartCleanupScheduler(ctx context.Context, config CleanupSchedulerConfig, logger *logging.Logger) <-chan struct{} {
	if logger == nil {
		logger = logging.NewNop()
	}
	log := logger.Named("retention")
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupSchedulerConfig().Interval
	}

	done := make(chan struct{})
	run := func() {
		result, err := d.Cleanup(ctx, config.RetentionDays)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("history cleanup failed", zap.Error(err))
			}
			return
		}
		if result.AttemptsDeleted > 0 {
			log.Info("history cleanup complete",
				zap.Int64("deleted", result.AttemptsDeleted),
				zap.Duration("duration", result.Duration))
		}
	}

	go func() {
		defer close(done)
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
	return done
}
