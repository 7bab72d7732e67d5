package webui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"imagesynth/artifacts"
	"imagesynth/catalog"
	"imagesynth/db"
	"imagesynth/imagegen"
	"imagesynth/logging"
	"imagesynth/metrics"
)

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(true, filepath.Join(t.TempDir(), "test.log"))
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { logger.Sync() })
	return logger
}

// fakeGenerator persists a small solid image through a real store, or
// returns failErr when set.
type fakeGenerator struct {
	mu      sync.Mutex
	store   *artifacts.Store
	failErr error
	probe   imagegen.ProbeResult

	lastReq   imagegen.Request
	lastProbe string
	calls     int
}

func (f *fakeGenerator) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	f.mu.Lock()
	f.lastReq = req
	f.calls++
	failErr := f.failErr
	f.mu.Unlock()

	res := &imagegen.Result{CorrelationID: "corr-1", Service: imagegen.RolePrimary, Provider: "huggingface"}
	if err := req.Validate(); err != nil {
		res.Error, res.Kind = err.Error(), imagegen.KindOf(err)
		return res, err
	}
	if failErr != nil {
		res.Error, res.Kind = failErr.Error(), imagegen.KindOf(failErr)
		res.Attempts = []imagegen.AttemptEntry{{CorrelationID: "corr-1", Role: imagegen.RolePrimary, Provider: "huggingface", Category: imagegen.CategoryQuotaOrPayment}}
		return res, failErr
	}

	img := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	for y := 0; y < req.Height; y++ {
		for x := 0; x < req.Width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	rec, err := f.store.Persist(img, artifacts.Provenance{
		Prompt:     req.Prompt,
		Width:      req.Width,
		Height:     req.Height,
		Format:     req.Format,
		Steps:      req.Steps,
		Seed:       req.SeedValue(),
		Model:      "black-forest-labs/FLUX.1-schnell",
		Service:    string(imagegen.RolePrimary),
		OutputName: req.OutputName,
	})
	if err != nil {
		res.Error, res.Kind = err.Error(), imagegen.KindOf(err)
		return res, err
	}
	res.Success = true
	res.Record = rec
	res.Path = filepath.Join(f.store.Root(), rec.Filename)
	res.Attempts = []imagegen.AttemptEntry{{CorrelationID: "corr-1", Role: imagegen.RolePrimary, Provider: "huggingface", Success: true}}
	return res, nil
}

func (f *fakeGenerator) Probe(ctx context.Context, model string) imagegen.ProbeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastProbe = model
	return f.probe
}

func (f *fakeGenerator) request() imagegen.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type fakeHistory struct {
	records []db.AttemptRecord
	err     error
	limit   int
}

func (f *fakeHistory) QueryRecentAttempts(ctx context.Context, limit int) ([]db.AttemptRecord, error) {
	f.limit = limit
	return f.records, f.err
}

// fakeTracker refuses every operation once closed.
type fakeTracker struct {
	mu     sync.Mutex
	closed bool
	names  []string
}

func (f *fakeTracker) Track(ctx context.Context, name string, fn func(context.Context) error) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return fmt.Errorf("tracker closed")
	}
	f.names = append(f.names, name)
	f.mu.Unlock()
	return fn(ctx)
}

// headerAuth accepts requests carrying X-Test-Auth: yes.
type headerAuth struct{}

func (headerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test-Auth") != "yes" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type testEnv struct {
	server    *Server
	handler   http.Handler
	store     *artifacts.Store
	generator *fakeGenerator
	history   *fakeHistory
	stats     *metrics.Store
	tracker   *fakeTracker
}

func newTestEnv(t *testing.T, auth AuthProvider) *testEnv {
	t.Helper()
	logger := newTestLogger(t)

	store, err := artifacts.NewStore(filepath.Join(t.TempDir(), "output"), logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	env := &testEnv{
		store:     store,
		generator: &fakeGenerator{store: store, probe: imagegen.ProbeResult{Status: imagegen.StatusAvailable}},
		history:   &fakeHistory{},
		stats:     metrics.NewStore(10, time.Now()),
		tracker:   &fakeTracker{},
	}

	server, err := NewServer(DefaultServerConfig(), Dependencies{
		Generator: env.generator,
		Gallery:   store,
		Models:    catalog.Default(),
		History:   env.history,
		Stats:     env.stats,
		Tracker:   env.tracker,
	}, auth, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	env.server = server
	env.handler = server.Handler()
	return env
}

// persist stores one artifact directly and returns its record.
func (e *testEnv) persist(t *testing.T, prompt string) *artifacts.Record {
	t.Helper()
	rec, err := e.store.Persist(image.NewRGBA(image.Rect(0, 0, 8, 8)), artifacts.Provenance{
		Prompt: prompt, Width: 8, Height: 8, Format: artifacts.FormatPNG, Steps: 4, Seed: 7,
		Model: "black-forest-labs/FLUX.1-schnell", Service: "primary",
	})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	// distinct modification times keep gallery order deterministic
	time.Sleep(10 * time.Millisecond)
	return rec
}
