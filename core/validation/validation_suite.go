// Package validation runs the startup checks that decide whether the
// generator can serve: configuration values, credentials, writable storage,
// free disk space and, optionally, reachability of the primary provider.
package validation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"imagesynth/core"
)

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// stepFunc returns the status a check settled on. Only StepPassed,
// StepWarning and StepFailed are meaningful.
type stepFunc func(ctx context.Context) (StepStatus, string, error)

// ValidationSuite checks a loaded *core.Config before the host starts serving.
type ValidationSuite struct {
	cfg          *core.Config
	output       io.Writer
	envPath      string
	minFree      uint64
	connectivity bool
	client       *http.Client
	timeout      time.Duration
	showProgress bool
	failFast     bool
}

// NewValidationSuite creates a suite for cfg with progress output on stdout
// and network checks disabled.
func NewValidationSuite(cfg *core.Config) *ValidationSuite {
	return &ValidationSuite{
		cfg:          cfg,
		output:       os.Stdout,
		envPath:      ".env",
		minFree:      DefaultMinFreeBytes,
		timeout:      10 * time.Second,
		showProgress: true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// WithEnvPath sets a custom path for the .env file.
func (s *ValidationSuite) WithEnvPath(path string) *ValidationSuite {
	s.envPath = path
	return s
}

// WithMinFreeBytes overrides DefaultMinFreeBytes.
func (s *ValidationSuite) WithMinFreeBytes(n uint64) *ValidationSuite {
	s.minFree = n
	return s
}

// WithConnectivity enables a HEAD probe of the primary provider endpoint
// using client, or the config's TLS-aware client when client is nil.
func (s *ValidationSuite) WithConnectivity(enabled bool, client *http.Client) *ValidationSuite {
	s.connectivity = enabled
	s.client = client
	return s
}

// WithTimeout sets the timeout for network checks.
func (s *ValidationSuite) WithTimeout(timeout time.Duration) *ValidationSuite {
	s.timeout = timeout
	return s
}

// Validate runs every check in order and returns the aggregated result.
func (s *ValidationSuite) Validate(ctx context.Context) SuiteResult {
	startTime := time.Now()

	if s.showProgress {
		s.printHeader("imagesynth Startup Validation")
	}

	checks := []struct {
		name string
		fn   stepFunc
	}{
		{"Environment File", s.checkEnvFile},
		{"Configuration Values", s.checkConfig},
		{"Primary Provider Credential", s.checkPrimary},
		{"Provider Endpoints", s.checkEndpoints},
		{"Paid Fallback", s.checkSecondary},
		{"Output Directory", s.checkOutputDir},
		{"Disk Space", s.checkDiskSpace},
		{"History Database", s.checkDatabaseDir},
		{"Model Catalog", s.checkCatalog},
	}

	steps := make([]ValidationStep, 0, len(checks)+1)
	for _, check := range checks {
		step := s.runStep(ctx, check.name, check.fn)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			return s.finish(steps, startTime)
		}
	}

	// Connectivity runs last and only against a configuration that passed.
	const connName = "Primary Provider Connectivity"
	switch {
	case !s.connectivity:
		steps = append(steps, s.skip(connName, "Disabled"))
	case !s.hasAllPassed(steps):
		steps = append(steps, s.skip(connName, "Skipped due to configuration errors"))
	default:
		steps = append(steps, s.runStep(ctx, connName, s.checkConnectivity))
	}

	return s.finish(steps, startTime)
}

func (s *ValidationSuite) checkEnvFile(context.Context) (StepStatus, string, error) {
	if err := CheckFileExists(s.envPath); err != nil {
		return StepWarning, "not found, using process environment", nil
	}
	return StepPassed, s.envPath, nil
}

func (s *ValidationSuite) checkConfig(context.Context) (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "no configuration loaded", core.ErrMissingConfig("config")
	}
	if err := s.cfg.Validate(); err != nil {
		return StepFailed, "invalid value", err
	}
	return StepPassed, fmt.Sprintf("listening on %s", s.cfg.Addr()), nil
}

func (s *ValidationSuite) checkPrimary(context.Context) (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "no configuration loaded", nil
	}
	if err := s.cfg.RequirePrimary(); err != nil {
		return StepWarning, "HF_TOKEN not set, generation requests will fail", nil
	}
	return StepPassed, "HF_TOKEN set", nil
}

func (s *ValidationSuite) checkEndpoints(context.Context) (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "no configuration loaded", nil
	}
	endpoints := map[string]string{"HF_INFERENCE_URL": s.cfg.HFInferenceURL}
	if s.cfg.UsesAzure() {
		endpoints["AZURE_OPENAI_ENDPOINT"] = s.cfg.AzureOpenAIEndpoint
	} else if s.cfg.HasSecondary() {
		endpoints["OPENAI_BASE_URL"] = s.cfg.OpenAIBaseURL
	}
	for name, endpoint := range endpoints {
		if err := ValidateEndpointURL(endpoint); err != nil {
			return StepFailed, name, core.ErrInvalidValue(name, err.Error())
		}
	}
	return StepPassed, fmt.Sprintf("%d endpoint(s) well formed", len(endpoints)), nil
}

func (s *ValidationSuite) checkSecondary(context.Context) (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "no configuration loaded", nil
	}
	switch {
	case !s.cfg.HasSecondary():
		return StepWarning, "disabled, OPENAI_API_KEY not set", nil
	case s.cfg.UsesAzure():
		return StepPassed, fmt.Sprintf("enabled (Azure deployment %s)", s.cfg.AzureOpenAIDeployment), nil
	default:
		return StepPassed, fmt.Sprintf("enabled (%s)", s.cfg.OpenAIImageModel), nil
	}
}

func (s *ValidationSuite) checkOutputDir(context.Context) (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "no configuration loaded", nil
	}
	if err := CheckDirWritable(s.cfg.OutputDir); err != nil {
		return StepFailed, s.cfg.OutputDir, err
	}
	return StepPassed, s.cfg.OutputDir, nil
}

func (s *ValidationSuite) checkDiskSpace(context.Context) (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "no configuration loaded", nil
	}
	info, err := GetDiskSpace(s.cfg.OutputDir)
	if err != nil {
		return StepFailed, "cannot read volume", err
	}
	if err := CheckDiskSpace(s.cfg.OutputDir, s.minFree); err != nil {
		return StepFailed, info.String(), err
	}
	if info.UsedPercent() >= 95 {
		return StepWarning, fmt.Sprintf("%s (%.0f%% used)", info, info.UsedPercent()), nil
	}
	return StepPassed, info.String(), nil
}

func (s *ValidationSuite) checkDatabaseDir(context.Context) (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "no configuration loaded", nil
	}
	if s.cfg.DatabasePath == "" {
		return StepWarning, "DATABASE_PATH empty, history disabled", nil
	}
	if err := CheckDirWritable(filepath.Dir(s.cfg.DatabasePath)); err != nil {
		return StepFailed, s.cfg.DatabasePath, err
	}
	return StepPassed, fmt.Sprintf("%s (retention %d days)", s.cfg.DatabasePath, s.cfg.HistoryRetentionDays), nil
}

func (s *ValidationSuite) checkCatalog(context.Context) (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "no configuration loaded", nil
	}
	if s.cfg.ModelCatalogPath == "" {
		return StepPassed, "built-in catalog", nil
	}
	if err := CheckFileExists(s.cfg.ModelCatalogPath); err != nil {
		return StepFailed, "MODEL_CATALOG_PATH", err
	}
	return StepPassed, s.cfg.ModelCatalogPath, nil
}

func (s *ValidationSuite) checkConnectivity(ctx context.Context) (StepStatus, string, error) {
	client := s.client
	if client == nil {
		client = core.GetHTTPClient(s.cfg, s.timeout)
	}
	result := NewConnectivityChecker(client, s.timeout).Check(ctx, s.cfg.HFInferenceURL)
	if !result.Reachable {
		return StepFailed, result.Message, result.Error
	}
	return StepPassed, fmt.Sprintf("%s (latency: %v)", result.Message, result.Latency.Round(time.Millisecond)), nil
}

// runStep executes a validation step with timing and progress output.
func (s *ValidationSuite) runStep(ctx context.Context, name string, fn stepFunc) ValidationStep {
	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	status, message, err := fn(ctx)
	step := ValidationStep{
		Name:    name,
		Status:  status,
		Message: message,
		Error:   err,
		Latency: time.Since(startTime),
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func (s *ValidationSuite) skip(name, message string) ValidationStep {
	step := ValidationStep{Name: name, Status: StepSkipped, Message: message}
	if s.showProgress {
		s.printStep(step)
	}
	return step
}

// hasAllPassed reports whether no step failed. Warnings count as passing.
func (s *ValidationSuite) hasAllPassed(steps []ValidationStep) bool {
	for _, step := range steps {
		if step.Status == StepFailed {
			return false
		}
	}
	return true
}

func (s *ValidationSuite) finish(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := s.buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

// buildResult creates a SuiteResult from completed steps.
func (s *ValidationSuite) buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}

	return result
}

// printHeader prints a validation header.
func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

// printStepStart prints the step name before execution.
func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

// printStep prints a completed validation step with status indicator.
func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "?", color.New(color.FgWhite)
	}

	// Overwrite the "running" line
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

// printSummary prints the validation summary.
func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Validation Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed, %d warnings, %v)",
			result.PassedSteps, result.TotalSteps, result.Warnings, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Validation Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// GetErrors returns all errors from failed steps.
func (r SuiteResult) GetErrors() []error {
	errs := make([]error, 0)
	for _, step := range r.Steps {
		if step.Error != nil {
			errs = append(errs, step.Error)
		}
	}
	return errs
}

// GetFirstError returns the first error from failed steps, or nil if all passed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Step returns the named step and whether it ran.
func (r SuiteResult) Step(name string) (ValidationStep, bool) {
	for _, step := range r.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return ValidationStep{}, false
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Validation Passed: ")
	} else {
		sb.WriteString("Validation Failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d checks passed", r.PassedSteps, r.TotalSteps)
	if r.FailedSteps > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.FailedSteps)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	fmt.Fprintf(&sb, " (took %v)", r.Duration.Round(time.Millisecond))
	return sb.String()
}
