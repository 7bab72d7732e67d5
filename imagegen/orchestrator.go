package imagegen

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imagesynth/artifacts"
	"imagesynth/core"
	"imagesynth/logging"
)

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	// Primary is the preferred provider. Nil means its credential is missing;
	// requests that need it fail with ErrConfiguration.
	Primary Provider

	// Secondary is the paid fallback. Nil disables fallback.
	Secondary Provider

	// Store persists successful results (required).
	Store Persister

	// Router maps model selectors to roles. Nil uses DefaultRouter.
	Router ModelRouter

	// Recorder receives every attempt. Optional.
	Recorder AttemptRecorder
}

// Orchestrator runs the provider-fallback procedure.
//
// It keeps no state between calls: every Generate is independent and safe to
// run concurrently. The only shared resource is the Persister.
//
// Flow of one Generate call:
//  1. validate the request and fix the seed
//  2. route the model: the secondary flagship skips the primary entirely
//  3. attempt the primary; on a quota/payment failure, and only with caller
//     consent and a configured secondary, attempt the secondary once
//  4. persist the image with its provenance
type Orchestrator struct {
	primary   Provider
	secondary Provider
	store     Persister
	router    ModelRouter
	recorder  AttemptRecorder
	logger    *logging.Logger

	newSeed func() (int64, error)
	now     func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, logger *logging.Logger) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("imagegen: store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("imagegen: logger cannot be nil")
	}
	router := cfg.Router
	if router == nil {
		router = DefaultRouter{}
	}
	return &Orchestrator{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		store:     cfg.Store,
		router:    router,
		recorder:  cfg.Recorder,
		logger:    logger.Named("orchestrator"),
		newSeed:   RandomSeed,
		now:       time.Now,
	}, nil
}

// HasSecondary reports whether fallback is possible at all.
func (o *Orchestrator) HasSecondary() bool {
	return o.secondary != nil
}

// Generate produces, persists and describes one image.
//
// The returned Result is never nil. err is nil exactly when Result.Success is
// true; otherwise it wraps ErrValidation, ErrConfiguration or ErrStorageIO,
// or is a *GenerationError listing every classified provider attempt.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	res := &Result{CorrelationID: uuid.NewString()}
	log := o.logger.With(zap.String("correlation_id", res.CorrelationID))

	if req.Format == "" {
		req.Format = DefaultFormat
	}
	if err := req.Validate(); err != nil {
		log.Warn("rejected invalid request", zap.Error(err))
		return res.fail(err), err
	}
	format, _ := artifacts.ParseFormat(string(req.Format))
	req.Format = format

	// chosen once so every attempt and the record carry the same value
	if req.Seed == nil {
		seed, err := o.newSeed()
		if err != nil {
			return res.fail(err), err
		}
		req.Seed = &seed
	}
	if req.Model == "" {
		req.Model = o.router.DefaultModel()
	}

	log.Info("generation requested", logging.RequestFields(req.Prompt, req.Width, req.Height, req.Steps, *req.Seed, req.Model)...)

	var outcome Outcome
	var role Role
	var provider Provider
	genErr := &GenerationError{}

	if o.router.RoleFor(req.Model) == RoleSecondary {
		if o.secondary == nil {
			err := fmt.Errorf("%w: model %s needs the secondary provider: %v", ErrConfiguration, req.Model, core.ErrMissingAuth("openai"))
			return res.fail(err), err
		}
		role, provider = RoleSecondary, o.secondary
		outcome = o.attempt(ctx, log, res, role, provider, req)
		if !outcome.OK() {
			genErr.Attempts = append(genErr.Attempts, outcome.Failure)
		}
	} else {
		if o.primary == nil {
			err := fmt.Errorf("%w: %v", ErrConfiguration, core.ErrMissingAuth("huggingface"))
			return res.fail(err), err
		}
		role, provider = RolePrimary, o.primary
		outcome = o.attempt(ctx, log, res, role, provider, req)

		if !outcome.OK() {
			genErr.Attempts = append(genErr.Attempts, outcome.Failure)
			switch {
			case !outcome.Failure.Category.AllowsFallback():
			case !req.AllowFallback:
				genErr.FallbackSkipped = "fallback to the paid secondary provider was not allowed"
			case o.secondary == nil:
				genErr.FallbackSkipped = "no secondary provider is configured"
			default:
				log.Info("primary quota exhausted, falling back", zap.String("secondary", o.secondary.Name()))
				role, provider = RoleSecondary, o.secondary
				outcome = o.attempt(ctx, log, res, role, provider, req)
				if !outcome.OK() {
					genErr.Attempts = append(genErr.Attempts, outcome.Failure)
				}
			}
		}
	}

	res.Service = role
	res.Provider = provider.Name()

	if !outcome.OK() {
		log.Error("generation failed",
			zap.String("category", string(genErr.Category())),
			zap.Int("attempts", len(genErr.Attempts)),
			zap.String("fallback_skipped", genErr.FallbackSkipped))
		return res.fail(genErr), genErr
	}

	rec, err := o.store.Persist(outcome.Image, artifacts.Provenance{
		Prompt:       req.Prompt,
		Width:        req.Width,
		Height:       req.Height,
		Format:       req.Format,
		Steps:        req.Steps,
		Seed:         *req.Seed,
		Model:        outcome.Model,
		Service:      string(role),
		OriginalSize: outcome.OriginalSize,
		OutputName:   req.OutputName,
	})
	if err != nil {
		log.Error("failed to persist image", zap.Error(err))
		return res.fail(err), err
	}

	res.Success = true
	res.Record = rec
	res.Path = rec.Filename
	if rooted, ok := o.store.(interface{ Root() string }); ok {
		res.Path = filepath.Join(rooted.Root(), rec.Filename)
	}
	log.Info("generation complete",
		zap.String("filename", rec.Filename),
		zap.String("service", string(role)),
		zap.String("provider", res.Provider))
	return res, nil
}

// attempt runs one provider call, logs it and hands it to the recorder.
func (o *Orchestrator) attempt(ctx context.Context, log *logging.Logger, res *Result, role Role, p Provider, req Request) Outcome {
	start := o.now()
	outcome := p.Attempt(ctx, req)
	elapsed := o.now().Sub(start)

	// a provider returning neither image nor failure is treated as fatal
	if !outcome.OK() && outcome.Failure == nil {
		outcome.Failure = &Failure{Provider: p.Name(), Category: CategoryFatal, Message: "provider returned no image"}
	}
	if outcome.Failure != nil {
		outcome.Failure.Role = role
		if outcome.Failure.Provider == "" {
			outcome.Failure.Provider = p.Name()
		}
	}

	entry := AttemptEntry{
		CorrelationID: res.CorrelationID,
		Role:          role,
		Provider:      p.Name(),
		Model:         outcome.Model,
		Success:       outcome.OK(),
		Seed:          req.SeedValue(),
		Duration:      elapsed,
		StartedAt:     start,
	}
	if entry.Model == "" {
		entry.Model = req.Model
	}

	category := ""
	if outcome.Failure != nil {
		entry.Category = outcome.Failure.Category
		entry.Message = logging.RedactSensitiveData(outcome.Failure.Message)
		category = string(outcome.Failure.Category)
		log.Warn("provider attempt failed", append(logging.AttemptFields(p.Name(), category, elapsed),
			zap.String("role", string(role)),
			zap.String("message", entry.Message))...)
	} else {
		log.Info("provider attempt succeeded", append(logging.AttemptFields(p.Name(), category, elapsed),
			zap.String("role", string(role)))...)
	}

	res.Attempts = append(res.Attempts, entry)
	if o.recorder != nil {
		o.recorder.RecordAttempt(ctx, entry)
	}
	return outcome
}

// fail fills the error fields of r from err and returns r.
func (r *Result) fail(err error) *Result {
	r.Success = false
	r.Error = err.Error()
	r.Kind = KindOf(err)
	return r
}

// DefaultRouter sends DALL-E models to the secondary role and everything else
// to the primary. It is used when no catalog is configured.
type DefaultRouter struct{}

// RoleFor implements ModelRouter.
func (DefaultRouter) RoleFor(model string) Role {
	if strings.HasPrefix(strings.ToLower(model), "dall-e") {
		return RoleSecondary
	}
	return RolePrimary
}

// DefaultModel implements ModelRouter.
func (DefaultRouter) DefaultModel() string {
	return core.DefaultImageModel
}
