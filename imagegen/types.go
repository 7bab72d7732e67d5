package imagegen

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"imagesynth/artifacts"
)

// Request defaults used by the web form and the CLI.
const (
	DefaultWidth  = 1344
	DefaultHeight = 768
	DefaultSteps  = 4
	DefaultFormat = artifacts.FormatJPEG

	// MaxSeed is the largest seed value; seeds are unsigned 32-bit.
	MaxSeed int64 = 1<<32 - 1
)

// Role identifies which provider slot served or attempted a request.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Request is one image generation request.
//
// Seed is optional; when nil the orchestrator picks one before the first
// attempt and every attempt and the persisted record use that value.
type Request struct {
	Prompt        string
	Width         int
	Height        int
	Format        artifacts.Format
	Steps         int
	Seed          *int64
	Model         string
	AllowFallback bool

	// OutputName optionally fixes the persisted base name instead of deriving one.
	OutputName string
}

// NewRequest returns a Request with the default size, format and step count.
func NewRequest(prompt string) Request {
	return Request{
		Prompt: prompt,
		Width:  DefaultWidth,
		Height: DefaultHeight,
		Format: DefaultFormat,
		Steps:  DefaultSteps,
	}
}

// Validate performs the local checks. Errors wrap ErrValidation.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrValidation)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: width and height must be positive, got %dx%d", ErrValidation, r.Width, r.Height)
	}
	if r.Steps <= 0 {
		return fmt.Errorf("%w: num_inference_steps must be positive, got %d", ErrValidation, r.Steps)
	}
	if _, err := artifacts.ParseFormat(string(r.Format)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if r.Seed != nil && (*r.Seed < 0 || *r.Seed > MaxSeed) {
		return fmt.Errorf("%w: seed must be between 0 and %d", ErrValidation, MaxSeed)
	}
	return nil
}

// SeedValue returns the seed, or zero when unset.
func (r Request) SeedValue() int64 {
	if r.Seed == nil {
		return 0
	}
	return *r.Seed
}

// Outcome is the result of one provider attempt. Exactly one of Image or
// Failure is set.
type Outcome struct {
	Image image.Image

	// Model is the model the provider actually ran.
	Model string

	// OriginalSize is the size generated before resizing, e.g. "1792x1024".
	// Empty when the provider generated the requested size directly.
	OriginalSize string

	Failure *Failure
}

// OK reports whether the attempt produced an image.
func (o Outcome) OK() bool {
	return o.Failure == nil && o.Image != nil
}

// Provider wraps one backend behind a uniform call. Attempt performs at most
// one outbound generation and never retries; every error is returned as a
// classified Failure in the Outcome.
type Provider interface {
	Name() string
	Attempt(ctx context.Context, req Request) Outcome
}

// Persister stores a generated image with its provenance.
type Persister interface {
	Persist(img image.Image, p artifacts.Provenance) (*artifacts.Record, error)
}

// ModelRouter decides which provider role serves a model selector.
type ModelRouter interface {
	RoleFor(model string) Role
	DefaultModel() string
}

// AttemptEntry describes one provider attempt for history and diagnostics.
type AttemptEntry struct {
	CorrelationID string          `json:"correlation_id"`
	Role          Role            `json:"role"`
	Provider      string          `json:"provider"`
	Model         string          `json:"model"`
	Success       bool            `json:"success"`
	Category      FailureCategory `json:"category,omitempty"`
	Message       string          `json:"message,omitempty"`
	Seed          int64           `json:"seed"`
	Duration      time.Duration   `json:"duration_ns"`
	StartedAt     time.Time       `json:"started_at"`
}

// AttemptRecorder receives every attempt. Implementations must not block.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, entry AttemptEntry)
}

// Result is the outcome of Generate. It is always non-nil.
type Result struct {
	Success       bool              `json:"success"`
	Path          string            `json:"path,omitempty"`
	Record        *artifacts.Record `json:"metadata,omitempty"`
	Error         string            `json:"error,omitempty"`
	Kind          ErrorKind         `json:"kind,omitempty"`
	Service       Role              `json:"service,omitempty"`
	Provider      string            `json:"provider,omitempty"`
	Attempts      []AttemptEntry    `json:"attempts"`
	CorrelationID string            `json:"correlation_id"`
}
