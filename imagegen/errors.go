package imagegen

import (
	"errors"
	"fmt"
	"strings"

	"imagesynth/artifacts"
)

// Sentinel errors for the failure taxonomy. Provider failures are not sentinels;
// they surface as *GenerationError carrying a FailureCategory per attempt.
var (
	// ErrConfiguration means a required credential is missing. It is returned
	// before any network call.
	ErrConfiguration = errors.New("imagegen: configuration error")

	// ErrValidation means the request failed local checks.
	ErrValidation = errors.New("imagegen: invalid request")

	// Storage errors are owned by artifacts and re-exported for callers of this package.
	ErrStorageIO    = artifacts.ErrStorageIO
	ErrPathSecurity = artifacts.ErrPathSecurity
	ErrNotFound     = artifacts.ErrNotFound
)

// ErrorKind is the externally visible error taxonomy.
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "CONFIGURATION"
	KindValidation        ErrorKind = "VALIDATION"
	KindProviderQuota     ErrorKind = "PROVIDER_QUOTA"
	KindProviderRateLimit ErrorKind = "PROVIDER_RATE_LIMIT"
	KindProviderFatal     ErrorKind = "PROVIDER_FATAL"
	KindStorageIO         ErrorKind = "STORAGE_IO"
	KindPathSecurity      ErrorKind = "PATH_SECURITY"
	KindNotFound          ErrorKind = "NOT_FOUND"
)

// KindOf maps any error returned by this package or artifacts to its ErrorKind.
// Unknown errors map to KindProviderFatal.
func KindOf(err error) ErrorKind {
	var genErr *GenerationError
	switch {
	case errors.As(err, &genErr):
		return genErr.Kind()
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPathSecurity):
		return KindPathSecurity
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStorageIO):
		return KindStorageIO
	default:
		return KindProviderFatal
	}
}

// Failure is a classified provider failure. Adapters convert every provider
// error into one; raw provider errors never cross the orchestrator boundary.
type Failure struct {
	Role     Role
	Provider string
	Category FailureCategory
	Message  string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s provider %s failed (%s): %s", f.Role, f.Provider, f.Category, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// newFailure classifies err and builds a Failure for the given provider.
func newFailure(role Role, provider string, err error) *Failure {
	return &Failure{
		Role:     role,
		Provider: provider,
		Category: Classify(err),
		Message:  err.Error(),
		Err:      err,
	}
}

// GenerationError reports that no provider produced an image. Attempts holds
// every classified failure in the order tried.
type GenerationError struct {
	Attempts []*Failure

	// FallbackSkipped explains why a quota failure did not move on to the
	// secondary provider. Empty when fallback was attempted or not applicable.
	FallbackSkipped string
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	if len(e.Attempts) > 1 {
		b.WriteString("imagegen: all providers failed: ")
	} else {
		b.WriteString("imagegen: generation failed: ")
	}
	for i, f := range e.Attempts {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Error())
	}
	if e.FallbackSkipped != "" {
		b.WriteString(" (")
		b.WriteString(e.FallbackSkipped)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes every attempt to errors.Is and errors.As.
func (e *GenerationError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, f := range e.Attempts {
		errs[i] = f
	}
	return errs
}

// Category returns the category of the last attempt, the one that ended the request.
func (e *GenerationError) Category() FailureCategory {
	if len(e.Attempts) == 0 {
		return CategoryFatal
	}
	return e.Attempts[len(e.Attempts)-1].Category
}

// Kind maps Category onto the error taxonomy.
func (e *GenerationError) Kind() ErrorKind {
	return e.Category().Kind()
}
