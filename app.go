package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"imagesynth/artifacts"
	"imagesynth/catalog"
	"imagesynth/core"
	"imagesynth/db"
	"imagesynth/imagegen"
	"imagesynth/logging"
	"imagesynth/metrics"
)

// app holds the collaborators every subcommand shares: storage, catalog,
// attempt history, provider statistics and the orchestrator.
type app struct {
	cfg    *core.Config
	logger *logging.Logger

	store    *artifacts.Store
	models   *catalog.Catalog
	database *db.Database   // nil when history is disabled
	history  *db.Repository // nil when history is disabled
	stats    *metrics.Store
	orch     *imagegen.Orchestrator
}

// newLogger builds the process logger from cfg. Quiet raises the floor to
// warn so CLI output is not interleaved with info lines.
func newLogger(cfg *core.Config, quiet bool) (*logging.Logger, error) {
	level := logging.ParseLogLevel(cfg.LogLevel, zapcore.InfoLevel)
	if cfg.DevMode {
		level = zapcore.DebugLevel
	}
	if quiet && level < zapcore.WarnLevel && !cfg.DevMode {
		level = zapcore.WarnLevel
	}
	if dir := filepath.Dir(cfg.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return logging.NewLoggerWithLevel(level, cfg.DevMode, cfg.LogFile, logging.DefaultFileWriterConfig())
}

// newApp opens storage and history and builds the orchestrator. A missing
// provider credential is not an error: the primary reports CONFIGURATION on
// use and a missing secondary disables fallback.
func newApp(cfg *core.Config, logger *logging.Logger, withHistory bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	models, err := catalog.Load(cfg.ModelCatalogPath)
	if err != nil {
		return nil, err
	}
	if cfg.ImageModel != "" && cfg.ImageModel != models.DefaultModel() {
		if m, err := models.WithDefault(cfg.ImageModel); err != nil {
			logger.Warn("IMAGE_MODEL ignored", zap.String("model", cfg.ImageModel), zap.Error(err))
		} else {
			models = m
		}
	}
	a.models = models

	a.store, err = artifacts.NewStore(cfg.OutputDir, logger)
	if err != nil {
		return nil, err
	}

	if withHistory && cfg.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		a.database, err = db.NewDatabase(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		a.history = db.NewRepository(a.database, logger)
	}

	primary, err := imagegen.NewHuggingFaceProvider(cfg)
	if err != nil && !isMissingCredential(err) {
		a.close()
		return nil, err
	}
	if primary == nil {
		logger.Warn("HF_TOKEN not set, primary provider disabled")
	}

	secondary, err := imagegen.NewOpenAIProvider(cfg)
	if err != nil && !isMissingCredential(err) {
		a.close()
		return nil, err
	}
	if secondary == nil {
		logger.Info("OPENAI_API_KEY not set, paid fallback disabled")
	}

	oc := imagegen.OrchestratorConfig{Store: a.store, Router: models}
	if primary != nil {
		oc.Primary = primary
	}
	if secondary != nil {
		oc.Secondary = secondary
	}
	a.stats = metrics.NewStore(metrics.DefaultRecentCapacity, time.Now())
	if a.history != nil {
		oc.Recorder = metrics.Tee(a.stats, a.history)
	} else {
		oc.Recorder = a.stats
	}
	a.orch, err = imagegen.NewOrchestrator(oc, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

// close flushes history and closes the database. Serve mode registers
// these steps with the shutdown manager instead.
func (a *app) close() error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.database != nil {
		errs = append(errs, a.database.Close())
	}
	return errors.Join(errs...)
}

func isMissingCredential(err error) bool {
	ce, ok := core.IsConfigError(err)
	return ok && ce.Code == core.ErrCodeMissingAuth
}
