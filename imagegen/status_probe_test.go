package imagegen

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name        string
		primary     Provider
		secondary   Provider
		model       string
		wantStatus  ProbeStatus
		wantMessage string
	}{
		{
			name:       "primary available",
			primary:    succeeding("huggingface", 256, 256, ""),
			wantStatus: StatusAvailable,
		},
		{
			name:        "primary quota",
			primary:     failing("huggingface", RolePrimary, errPaymentRequired),
			wantStatus:  StatusLimited,
			wantMessage: "Quota or credits exhausted",
		},
		{
			name:        "primary rate limited",
			primary:     failing("huggingface", RolePrimary, errRateLimited),
			wantStatus:  StatusLimited,
			wantMessage: "Rate limited",
		},
		{
			name:        "primary fatal",
			primary:     failing("huggingface", RolePrimary, errModelNotFound),
			wantStatus:  StatusErrored,
			wantMessage: "Model not found",
		},
		{
			name:        "primary missing",
			wantStatus:  StatusErrored,
			wantMessage: "HF_TOKEN not configured",
		},
		{
			name:        "secondary flagship configured",
			secondary:   succeeding("openai", 8, 8, ""),
			model:       "dall-e-3",
			wantStatus:  StatusAvailable,
			wantMessage: "Paid service via openai",
		},
		{
			name:        "secondary flagship missing",
			primary:     succeeding("huggingface", 256, 256, ""),
			model:       "dall-e-3",
			wantStatus:  StatusErrored,
			wantMessage: "OpenAI API key not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(t, tt.primary, tt.secondary, &memoryStore{})
			got := o.Probe(context.Background(), tt.model)
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
			if !strings.Contains(got.Message, tt.wantMessage) {
				t.Errorf("Message = %q, want it to contain %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestProbe_UsesCheapestRequest(t *testing.T) {
	primary := succeeding("huggingface", 256, 256, "")
	secondary := succeeding("openai", 8, 8, "")
	o := newTestOrchestrator(t, primary, secondary, &memoryStore{})

	o.Probe(context.Background(), "")
	o.Probe(context.Background(), "dall-e-3")

	if secondary.calls() != 0 {
		t.Error("the paid secondary must never be probed")
	}
	if primary.calls() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.calls())
	}
	req := primary.requests[0]
	if req.Width != MinPrimaryDimension || req.Height != MinPrimaryDimension || req.Steps != 1 || req.Prompt != "test" {
		t.Errorf("probe request = %+v", req)
	}
	if req.Model != "black-forest-labs/FLUX.1-schnell" {
		t.Errorf("probe model = %q, want the default model", req.Model)
	}
}

func TestProbe_TruncatesMessage(t *testing.T) {
	long := errors.New(strings.Repeat("x", 300))
	o := newTestOrchestrator(t, failing("huggingface", RolePrimary, long), nil, &memoryStore{})

	got := o.Probe(context.Background(), "")
	if n := len([]rune(got.Message)); n != MaxProbeMessageRunes+3 {
		t.Errorf("message length = %d, want %d", n, MaxProbeMessageRunes+3)
	}
}
