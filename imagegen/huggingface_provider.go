package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"imagesynth/core"
)

// Hugging Face text-to-image limits.
const (
	MinPrimaryDimension = 256
	MaxPrimaryDimension = 2048
	MinPrimarySteps     = 1
	MaxPrimarySteps     = 50
)

// HuggingFaceProvider is the primary adapter. It calls the Hugging Face
// Inference API text-to-image task and receives raw image bytes.
//
// The API accepts width, height, step count and seed, so the request is
// forwarded as-is apart from clamping steps to the supported range.
//
// Thread Safety: HuggingFaceProvider is safe for concurrent use.
type HuggingFaceProvider struct {
	client  *http.Client
	baseURL string
	token   string
	model   string
}

// HuggingFaceProviderConfig holds the primary adapter settings.
type HuggingFaceProviderConfig struct {
	// Token is the Hugging Face access token (required).
	Token string

	// BaseURL is the models endpoint; the model id is appended as a path.
	// Default: core.DefaultHFInferenceURL
	BaseURL string

	// Model is used when a request names no model.
	// Default: core.DefaultImageModel
	Model string

	// HTTPClient performs the call. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
}

// NewHuggingFaceProvider creates the primary adapter from application config.
// It returns a ConfigError when HF_TOKEN is absent.
func NewHuggingFaceProvider(cfg *core.Config) (*HuggingFaceProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	if err := cfg.RequirePrimary(); err != nil {
		return nil, err
	}
	return NewHuggingFaceProviderWithConfig(HuggingFaceProviderConfig{
		Token:      cfg.HFToken,
		BaseURL:    cfg.HFInferenceURL,
		Model:      cfg.ImageModel,
		HTTPClient: core.GetHTTPClient(cfg, cfg.ProviderTimeout),
	})
}

// NewHuggingFaceProviderWithConfig creates the primary adapter with explicit settings.
func NewHuggingFaceProviderWithConfig(pc HuggingFaceProviderConfig) (*HuggingFaceProvider, error) {
	if pc.Token == "" {
		return nil, core.ErrMissingAuth("huggingface")
	}
	if pc.BaseURL == "" {
		pc.BaseURL = core.DefaultHFInferenceURL
	}
	if pc.Model == "" {
		pc.Model = core.DefaultImageModel
	}
	if pc.HTTPClient == nil {
		pc.HTTPClient = http.DefaultClient
	}
	return &HuggingFaceProvider{
		client:  pc.HTTPClient,
		baseURL: strings.TrimRight(pc.BaseURL, "/"),
		token:   pc.Token,
		model:   pc.Model,
	}, nil
}

// Name implements Provider.
func (p *HuggingFaceProvider) Name() string {
	return "huggingface"
}

// Model returns the default model id.
func (p *HuggingFaceProvider) Model() string {
	return p.model
}

type hfParameters struct {
	Width             int   `json:"width"`
	Height            int   `json:"height"`
	NumInferenceSteps int   `json:"num_inference_steps"`
	Seed              int64 `json:"seed"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// Attempt implements Provider. It makes exactly one POST to
// {baseURL}/{model} and decodes the returned image.
func (p *HuggingFaceProvider) Attempt(ctx context.Context, req Request) Outcome {
	model := req.Model
	if model == "" {
		model = p.model
	}
	fail := func(err error) Outcome {
		return Outcome{Model: model, Failure: newFailure(RolePrimary, p.Name(), err)}
	}

	if err := checkPrimaryDimensions(req.Width, req.Height); err != nil {
		return Outcome{Model: model, Failure: &Failure{
			Role:     RolePrimary,
			Provider: p.Name(),
			Category: CategoryFatal,
			Message:  err.Error(),
			Err:      err,
		}}
	}

	body, err := json.Marshal(hfRequest{
		Inputs: req.Prompt,
		Parameters: hfParameters{
			Width:             req.Width,
			Height:            req.Height,
			NumInferenceSteps: clampSteps(req.Steps),
			Seed:              req.SeedValue(),
		},
	})
	if err != nil {
		return fail(fmt.Errorf("imagegen: encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("imagegen: create request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/png, image/jpeg, image/webp")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return fail(fmt.Errorf("imagegen: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(&StatusError{Code: resp.StatusCode, Message: errorBodyMessage(data)})
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		// 200 with a JSON body is an error envelope, not an image
		return fail(fmt.Errorf("imagegen: unexpected JSON response: %s", errorBodyMessage(data)))
	}
	if len(data) > MaxImageBytes {
		return fail(fmt.Errorf("imagegen: image exceeds %d bytes", MaxImageBytes))
	}

	img, err := decodeImage(data)
	if err != nil {
		return fail(err)
	}
	return Outcome{Image: img, Model: model}
}

func checkPrimaryDimensions(w, h int) error {
	if w < MinPrimaryDimension || w > MaxPrimaryDimension || h < MinPrimaryDimension || h > MaxPrimaryDimension {
		return fmt.Errorf("imagegen: %dx%d outside supported range %d-%d", w, h, MinPrimaryDimension, MaxPrimaryDimension)
	}
	return nil
}

func clampSteps(steps int) int {
	switch {
	case steps < MinPrimarySteps:
		return MinPrimarySteps
	case steps > MaxPrimarySteps:
		return MaxPrimarySteps
	default:
		return steps
	}
}

var _ Provider = (*HuggingFaceProvider)(nil)
