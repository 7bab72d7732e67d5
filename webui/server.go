// Package webui is the HTTP front end: the generator page, the JSON API over
// the orchestrator and the gallery, and image serving.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"imagesynth/artifacts"
	"imagesynth/catalog"
	"imagesynth/db"
	"imagesynth/imagegen"
	"imagesynth/logging"
	"imagesynth/metrics"
)

// AuthProvider wraps handlers that require credentials. It is implemented by
// auth.BasicAuth; the interface keeps this package free of the auth import.
type AuthProvider interface {
	Middleware(next http.Handler) http.Handler
}

// Generator is the orchestrator as seen by the front end.
type Generator interface {
	Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error)
	Probe(ctx context.Context, model string) imagegen.ProbeResult
}

// Gallery lists, resolves and deletes persisted artifacts.
type Gallery interface {
	List(limit int) ([]artifacts.Item, error)
	Resolve(filename string) (string, error)
	Delete(filename string) error
}

// ModelCatalog lists the selectable models.
type ModelCatalog interface {
	Models() []catalog.Model
	DefaultModel() string
}

// AttemptHistory returns recent provider attempts.
type AttemptHistory interface {
	QueryRecentAttempts(ctx context.Context, limit int) ([]db.AttemptRecord, error)
}

// StatsSource reports in-process provider statistics.
type StatsSource interface {
	Snapshot(recent int) metrics.Snapshot
}

// OperationTracker lets shutdown wait for in-flight generations.
type OperationTracker interface {
	Track(ctx context.Context, name string, fn func(context.Context) error) error
}

// Dependencies are the collaborators the handlers call. Generator, Gallery
// and Models are required; History, Stats and Tracker may be nil.
type Dependencies struct {
	Generator Generator
	Gallery   Gallery
	Models    ModelCatalog
	History   AttemptHistory
	Stats     StatsSource
	Tracker   OperationTracker
}

// ServerConfig configures the Server.
type ServerConfig struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration // must cover a slow generation plus fallback
	IdleTimeout  time.Duration

	StaticConfig StaticAssetConfig

	// LogSkipPaths are never request-logged
	LogSkipPaths []string

	// MaxBodyBytes caps JSON request bodies
	MaxBodyBytes int64
}

// DefaultServerConfig listens on 0.0.0.0:5001.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         5001,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
		StaticConfig: DefaultStaticAssetConfig(),
		LogSkipPaths: []string{"/health"},
		MaxBodyBytes: 1 << 20,
	}
}

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	config     ServerConfig
	logger     *logging.Logger
	deps       Dependencies
	auth       AuthProvider
	loggingMw  *LoggingMiddleware
	static     *StaticAssetHandler
}

// NewServer wires routes and middleware. auth may be nil to serve without
// credentials.
func NewServer(config ServerConfig, deps Dependencies, auth AuthProvider, logger *logging.Logger) (*Server, error) {
	if deps.Generator == nil || deps.Gallery == nil || deps.Models == nil {
		return nil, errors.New("webui: generator, gallery and models are required")
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	logger = logger.Named("webui")

	s := &Server{
		mux:       http.NewServeMux(),
		config:    config,
		logger:    logger,
		deps:      deps,
		auth:      auth,
		loggingMw: NewLoggingMiddleware(logger, config.LogSkipPaths...),
		static:    NewStaticAssetHandler(config.StaticConfig),
	}
	s.setupRoutes()

	addr := net.JoinHostPort(config.Host, fmt.Sprint(config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	logger.Info("WebUI server created",
		zap.String("addr", addr),
		zap.Bool("auth_enabled", auth != nil),
		zap.Bool("history_enabled", deps.History != nil))
	return s, nil
}

func (s *Server) setupRoutes() {
	// public
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.static.ServeIndex)
	s.static.RegisterRoutes(s.mux)
	s.mux.HandleFunc("GET /output/{filename}", s.handleOutput)

	// protected
	s.mux.Handle("POST /{$}", s.protect(s.handleFormGenerate))
	s.mux.Handle("GET /api_status", s.protect(s.handleStatus))
	s.mux.Handle("POST /api/generate", s.protect(s.handleGenerate))
	s.mux.Handle("GET /api/gallery", s.protect(s.handleGallery))
	s.mux.Handle("GET /api/models", s.protect(s.handleModels))
	s.mux.Handle("GET /api/history", s.protect(s.handleHistory))
	s.mux.Handle("GET /api/stats", s.protect(s.handleStats))
	s.mux.Handle("DELETE /delete/{filename}", s.protect(s.handleDelete))
}

func (s *Server) protect(h http.HandlerFunc) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.auth.Middleware(h)
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.loggingMw.Handler(s.mux)
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("WebUI server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webui: http server error: %w", err)
	}
	return nil
}

// Serve serves on an existing listener; used by tests and service mode.
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webui: http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests until
// ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down WebUI server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("webui: http shutdown error: %w", err)
	}
	s.logger.Info("WebUI server stopped")
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// HasAuth reports whether authentication is enabled.
func (s *Server) HasAuth() bool {
	return s.auth != nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
