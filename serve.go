package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"imagesynth/core"
	"imagesynth/core/validation"
	"imagesynth/db"
	"imagesynth/logging"
	"imagesynth/shutdown"
	"imagesynth/webui"
	"imagesynth/webui/auth"
)

// authCleanupInterval is how often expired login records are purged.
const authCleanupInterval = 5 * time.Minute

// server is the long-running process: the web UI over the shared app, with
// every resource registered for ordered shutdown.
type server struct {
	app    *app
	web    *webui.Server
	mgr    *shutdown.Manager
	logger *logging.Logger
}

func (c *cli) serve(args []string) int {
	fs := c.newFlagSet("serve", "serve [flags]")
	checkConnectivity := fs.Bool("check-connectivity", false, "probe the primary provider endpoint during startup validation")
	skipValidation := fs.Bool("skip-validation", false, "start without running startup validation")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, logger, code := c.setup(false)
	if code != core.ExitCodeSuccess {
		return code
	}

	if !*skipValidation {
		if code := c.runStartupValidation(cfg, logger, *checkConnectivity); code != core.ExitCodeSuccess {
			logger.Sync()
			return code
		}
	}

	mgr := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	mgr.Start()

	srv, err := newServer(cfg, logger, mgr)
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		mgr.Shutdown()
		return core.ExitCodeError
	}
	if err := srv.run(nil); err != nil {
		return core.ExitCodeError
	}
	return mgr.ExitCode()
}

// runStartupValidation prints the validation suite and logs each failed step.
func (c *cli) runStartupValidation(cfg *core.Config, logger *logging.Logger, connectivity bool) int {
	logger.Info("Starting startup validation...")

	result := validation.NewValidationSuite(cfg).
		WithOutput(c.stdout).
		WithConnectivity(connectivity, nil).
		Validate(context.Background())

	if !result.Success {
		logger.Error("Configuration validation failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("Validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}
		return core.ExitCodeError
	}

	logger.Info("Configuration validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}

// newServer opens the app, starts background workers and registers every
// resource with mgr. On error the resources already opened are released by
// mgr.Shutdown.
func newServer(cfg *core.Config, logger *logging.Logger, mgr *shutdown.Manager) (*server, error) {
	mgr.Register("logger", shutdown.PriorityLogger, func(context.Context) error {
		_ = logger.Sync()
		return nil
	})

	if n := shutdown.RemoveTempFiles(mgr.Context(), logger, cfg.OutputDir); n > 0 {
		logger.Info("Removed temporary files left by a previous run", zap.Int("count", n))
	}

	a, err := newApp(cfg, logger, true)
	if err != nil {
		return nil, err
	}
	mgr.Register("temp-files", shutdown.PriorityTempFile, shutdown.CleanupTempFiles(logger, cfg.OutputDir))

	if a.database != nil {
		mgr.Register("database", shutdown.PriorityStorage, func(context.Context) error {
			return a.database.Close()
		})

		a.history.StartAsync(db.DefaultAsyncWriterConfig())
		mgr.Register("attempt-history", shutdown.PriorityWorkers, func(context.Context) error {
			return a.history.Close()
		})

		if cfg.HistoryRetentionDays > 0 {
			done := a.database.StartCleanupScheduler(mgr.Context(), db.CleanupSchedulerConfig{
				RetentionDays: cfg.HistoryRetentionDays,
				Interval:      24 * time.Hour,
			}, logger)
			mgr.Register("retention-scheduler", shutdown.PriorityWorkers, func(ctx context.Context) error {
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return fmt.Errorf("retention scheduler did not stop: %w", ctx.Err())
				}
			})
		}
	}

	var authProvider webui.AuthProvider
	if cfg.WebUIPassword != "" {
		basic, err := auth.NewBasicAuth(cfg.WebUIPassword, logger, auth.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("invalid WEBUI_PWD: %w", err)
		}
		basic.StartCleanup(mgr.Context(), authCleanupInterval)
		authProvider = basic
	} else {
		logger.Warn("WEBUI_PWD not set, the web UI is open to anyone who can reach it")
	}

	deps := webui.Dependencies{
		Generator: a.orch,
		Gallery:   a.store,
		Models:    a.models,
		Stats:     a.stats,
		Tracker:   mgr,
	}
	if a.history != nil {
		deps.History = a.history
	}

	web, err := webui.NewServer(serverConfig(cfg), deps, authProvider, logger)
	if err != nil {
		return nil, err
	}
	mgr.Register("http-server", shutdown.PriorityHTTP, web.Shutdown)

	return &server{app: a, web: web, mgr: mgr, logger: logger}, nil
}

// serverConfig sizes the write timeout to cover a primary attempt, a
// secondary attempt and the image download.
func serverConfig(cfg *core.Config) webui.ServerConfig {
	sc := webui.DefaultServerConfig()
	sc.Host = cfg.Host
	sc.Port = cfg.Port
	if need := 2*cfg.ProviderTimeout + cfg.DownloadTimeout + 30*time.Second; need > sc.WriteTimeout {
		sc.WriteTimeout = need
	}
	return sc
}

// run serves until the manager's context is cancelled or the listener
// fails, then runs the shutdown sequence. A nil listener binds cfg's address.
func (s *server) run(l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if l != nil {
			errCh <- s.web.Serve(l)
			return
		}
		errCh <- s.web.Start()
	}()

	var serveErr error
	select {
	case <-s.mgr.Context().Done():
		s.logger.Info("Shutdown requested")
	case serveErr = <-errCh:
		if serveErr != nil {
			s.logger.Error("HTTP server failed", zap.Error(serveErr))
		}
	}

	if err := s.mgr.Shutdown(); err != nil {
		s.logger.Error("Shutdown completed with errors", zap.Error(err))
	}
	return serveErr
}
