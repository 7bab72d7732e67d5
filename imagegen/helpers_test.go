package imagegen

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"imagesynth/artifacts"
	"imagesynth/logging"
)

// newTestLogger creates a logger for testing
func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(true, filepath.Join(t.TempDir(), "test.log"))
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { logger.Sync() })
	return logger
}

// scriptedProvider returns a fixed outcome and records every request it sees.
type scriptedProvider struct {
	name    string
	outcome func(req Request) Outcome

	mu       sync.Mutex
	requests []Request
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Attempt(_ context.Context, req Request) Outcome {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	return p.outcome(req)
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// succeeding returns a provider that produces a w x h image.
func succeeding(name string, w, h int, originalSize string) *scriptedProvider {
	return &scriptedProvider{name: name, outcome: func(req Request) Outcome {
		return Outcome{Image: solidImage(w, h), Model: req.Model, OriginalSize: originalSize}
	}}
}

// failing returns a provider whose every attempt fails with err, classified.
func failing(name string, role Role, err error) *scriptedProvider {
	return &scriptedProvider{name: name, outcome: func(req Request) Outcome {
		return Outcome{Model: req.Model, Failure: newFailure(role, name, err)}
	}}
}

// memoryStore is an in-memory Persister.
type memoryStore struct {
	mu      sync.Mutex
	records []artifacts.Provenance
	images  []image.Image
	err     error
}

func (s *memoryStore) Persist(img image.Image, p artifacts.Provenance) (*artifacts.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.records = append(s.records, p)
	s.images = append(s.images, img)
	return &artifacts.Record{
		Prompt:       p.Prompt,
		Width:        p.Width,
		Height:       p.Height,
		Format:       p.Format,
		Steps:        p.Steps,
		Seed:         p.Seed,
		Model:        p.Model,
		Service:      p.Service,
		OriginalSize: p.OriginalSize,
		Filename:     "test.jpg",
	}, nil
}

// recordingRecorder collects attempt entries.
type recordingRecorder struct {
	mu      sync.Mutex
	entries []AttemptEntry
}

func (r *recordingRecorder) RecordAttempt(_ context.Context, e AttemptEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

var (
	errPaymentRequired = &StatusError{Code: 402, Message: "You have exceeded your monthly included credits for Inference Providers."}
	errRateLimited     = &StatusError{Code: 429, Message: "Rate limit reached. Please wait."}
	errModelNotFound   = &StatusError{Code: 404, Message: "Model not found"}
	errConnReset       = errors.New("read tcp 10.0.0.2:443: connection reset by peer")
)
