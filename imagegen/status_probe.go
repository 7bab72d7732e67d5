package imagegen

import (
	"context"

	"go.uber.org/zap"
)

// ProbeStatus is the availability reported by Probe.
type ProbeStatus string

const (
	StatusAvailable ProbeStatus = "available"
	StatusLimited   ProbeStatus = "limit"
	StatusErrored   ProbeStatus = "error"
)

// MaxProbeMessageRunes bounds the provider message returned by Probe.
const MaxProbeMessageRunes = 100

// probe request parameters: the smallest generation the primary accepts
const (
	probePrompt = "test"
	probeSize   = MinPrimaryDimension
	probeSteps  = 1
)

// ProbeResult is the answer to "will this model work right now?".
type ProbeResult struct {
	Status  ProbeStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Probe predicts whether model can be served, by making the cheapest possible
// primary call and classifying the outcome. Quota and rate-limit failures map
// to StatusLimited, success to StatusAvailable, anything else to StatusErrored.
//
// The secondary flagship is not probed: it is paid, so Probe only reports
// whether it is configured. Probe spends real provider quota and must only
// run when a caller asks for it, never as a gate before Generate.
func (o *Orchestrator) Probe(ctx context.Context, model string) ProbeResult {
	if model == "" {
		model = o.router.DefaultModel()
	}

	if o.router.RoleFor(model) == RoleSecondary {
		if o.secondary == nil {
			return ProbeResult{Status: StatusErrored, Message: "OpenAI API key not configured"}
		}
		return ProbeResult{Status: StatusAvailable, Message: "Paid service via " + o.secondary.Name()}
	}

	if o.primary == nil {
		return ProbeResult{Status: StatusErrored, Message: "HF_TOKEN not configured"}
	}

	seed := int64(0)
	outcome := o.primary.Attempt(ctx, Request{
		Prompt: probePrompt,
		Width:  probeSize,
		Height: probeSize,
		Format: DefaultFormat,
		Steps:  probeSteps,
		Seed:   &seed,
		Model:  model,
	})

	result := probeResult(outcome)
	o.logger.Info("status probe",
		zap.String("model", model),
		zap.String("status", string(result.Status)))
	return result
}

func probeResult(outcome Outcome) ProbeResult {
	if outcome.OK() {
		return ProbeResult{Status: StatusAvailable}
	}
	f := outcome.Failure
	if f == nil {
		return ProbeResult{Status: StatusErrored, Message: "provider returned no image"}
	}
	switch f.Category {
	case CategoryQuotaOrPayment:
		return ProbeResult{Status: StatusLimited, Message: "Quota or credits exhausted"}
	case CategoryRateLimited:
		return ProbeResult{Status: StatusLimited, Message: "Rate limited"}
	default:
		return ProbeResult{Status: StatusErrored, Message: truncateMessage(f.Message, MaxProbeMessageRunes)}
	}
}
