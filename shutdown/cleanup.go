package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"imagesynth/artifacts"
	"imagesynth/logging"
)

// CleanupTempFiles returns a handler that removes abandoned in-progress image
// and sidecar writes from the output directory. It also runs at startup, since
// a crash is what leaves these files behind.
//
// Removal failures are logged, never returned, so they cannot block shutdown.
func CleanupTempFiles(logger *logging.Logger, outputDir string) Func {
	return func(ctx context.Context) error {
		RemoveTempFiles(ctx, logger, outputDir)
		return nil
	}
}

// RemoveTempFiles deletes files matching artifacts.TempFilePattern in dir and
// returns how many were removed.
func RemoveTempFiles(ctx context.Context, logger *logging.Logger, dir string) int {
	log := logger.Named("cleanup")

	pattern := filepath.Join(dir, artifacts.TempFilePattern)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		log.Error("Failed to list temporary files", zap.String("pattern", pattern), zap.Error(err))
		return 0
	}
	if len(matches) == 0 {
		return 0
	}

	removed := 0
	for _, match := range matches {
		if ctx.Err() != nil {
			log.Warn("Cleanup interrupted",
				zap.Int("removed", removed),
				zap.Int("remaining", len(matches)-removed))
			return removed
		}
		if err := os.Remove(match); err != nil {
			log.Warn("Failed to remove temporary file", zap.String("file", filepath.Base(match)), zap.Error(err))
			continue
		}
		removed++
	}

	log.Info("Removed abandoned temporary files", zap.Int("removed", removed))
	return removed
}
