package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"imagesynth/core"
)

// SecondarySizes are the only sizes DALL-E 3 generates: square, wide, tall.
var SecondarySizes = []ImageSize{
	{Width: 1024, Height: 1024},
	{Width: 1792, Height: 1024},
	{Width: 1024, Height: 1792},
}

var openAISizeNames = map[ImageSize]string{
	{Width: 1024, Height: 1024}: openai.CreateImageSize1024x1024,
	{Width: 1792, Height: 1024}: openai.CreateImageSize1792x1024,
	{Width: 1024, Height: 1792}: openai.CreateImageSize1024x1792,
}

// OpenAIProvider is the secondary adapter, backed by DALL-E 3 on OpenAI or an
// Azure OpenAI deployment.
//
// DALL-E 3 ignores step count and seed and only generates SecondarySizes, so
// Attempt maps the requested size to the nearest aspect ratio, generates at
// that size, downloads the returned URL and resizes the result back to the
// requested dimensions. The generated size is reported as OriginalSize.
//
// Thread Safety: OpenAIProvider is safe for concurrent use.
type OpenAIProvider struct {
	client     *openai.Client
	downloader *Downloader
	model      string
	name       string
}

// OpenAIProviderConfig holds the secondary adapter settings.
type OpenAIProviderConfig struct {
	// APIKey is the OpenAI or Azure OpenAI key (required).
	APIKey string

	// BaseURL is the API endpoint (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the image model (default: dall-e-3).
	Model string

	// AzureEndpoint switches to Azure OpenAI when set.
	AzureEndpoint   string
	AzureDeployment string
	AzureAPIVersion string

	// HTTPClient is used for the API call and the image download.
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client
}

// NewOpenAIProvider creates the secondary adapter from application config.
// It returns a ConfigError when OPENAI_API_KEY is absent; callers treat that
// as "fallback disabled".
func NewOpenAIProvider(cfg *core.Config) (*OpenAIProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	if !cfg.HasSecondary() {
		return nil, core.ErrMissingAuth("openai")
	}
	return NewOpenAIProviderWithConfig(OpenAIProviderConfig{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		Model:           cfg.OpenAIImageModel,
		AzureEndpoint:   cfg.AzureOpenAIEndpoint,
		AzureDeployment: cfg.AzureOpenAIDeployment,
		AzureAPIVersion: cfg.AzureOpenAIAPIVersion,
		HTTPClient:      core.GetHTTPClient(cfg, cfg.ProviderTimeout),
	})
}

// NewOpenAIProviderWithConfig creates the secondary adapter with explicit settings.
func NewOpenAIProviderWithConfig(pc OpenAIProviderConfig) (*OpenAIProvider, error) {
	if pc.APIKey == "" {
		return nil, core.ErrMissingAuth("openai")
	}
	if pc.Model == "" {
		pc.Model = openai.CreateImageModelDallE3
	}
	httpClient := pc.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var clientConfig openai.ClientConfig
	name := "openai"
	if pc.AzureEndpoint != "" {
		if !IsAzureEndpoint(pc.AzureEndpoint) && !IsLocalEndpoint(pc.AzureEndpoint) {
			return nil, fmt.Errorf("imagegen: %s is not an Azure OpenAI endpoint", pc.AzureEndpoint)
		}
		if pc.AzureDeployment == "" {
			return nil, core.ErrMissingConfig("AZURE_OPENAI_DEPLOYMENT")
		}
		clientConfig = openai.DefaultAzureConfig(pc.APIKey, pc.AzureEndpoint)
		if pc.AzureAPIVersion != "" {
			clientConfig.APIVersion = pc.AzureAPIVersion
		}
		deployment := pc.AzureDeployment
		clientConfig.AzureModelMapperFunc = func(string) string { return deployment }
		name = "azure-openai"
	} else {
		clientConfig = openai.DefaultConfig(pc.APIKey)
		if pc.BaseURL != "" {
			clientConfig.BaseURL = pc.BaseURL
		}
	}
	clientConfig.HTTPClient = httpClient

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientConfig),
		downloader: NewDownloader(httpClient),
		model:      pc.Model,
		name:       name,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the configured image model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Attempt implements Provider. req.Model is ignored; the adapter always runs
// its configured model. A failed download is a fatal outcome for this attempt.
func (p *OpenAIProvider) Attempt(ctx context.Context, req Request) Outcome {
	fail := func(category FailureCategory, err error) Outcome {
		f := newFailure(RoleSecondary, p.name, err)
		if category != "" {
			f.Category = category
		}
		return Outcome{Model: p.model, Failure: f}
	}

	size := NearestSize(req.Width, req.Height, SecondarySizes)
	imageReq := openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          p.model,
		N:              1,
		Size:           openAISizeNames[size],
		ResponseFormat: openai.CreateImageResponseFormatURL,
	}
	if p.model == openai.CreateImageModelDallE3 {
		imageReq.Style = openai.CreateImageStyleVivid
	}

	resp, err := p.client.CreateImage(ctx, imageReq)
	if err != nil {
		return fail("", openAIError(err))
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return fail(CategoryFatal, fmt.Errorf("imagegen: %s returned no image URL", p.name))
	}

	img, err := p.downloader.DownloadImage(ctx, resp.Data[0].URL)
	if err != nil {
		return fail(CategoryFatal, err)
	}

	generated := ImageSize{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	return Outcome{
		Image:        ResizeExact(img, req.Width, req.Height),
		Model:        p.model,
		OriginalSize: generated.String(),
	}
}

// openAIError converts go-openai errors into StatusError so Classify sees the
// status code and the provider's error code.
func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if code, ok := apiErr.Code.(string); ok && code != "" {
			msg = code + ": " + msg
		}
		return &StatusError{Code: apiErr.HTTPStatusCode, Message: msg, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{Code: reqErr.HTTPStatusCode, Message: requestErrorMessage(reqErr), Err: err}
	}
	return err
}

// requestErrorMessage describes a response go-openai could not decode. Only a
// structured JSON message is kept; HTML pages and stack traces are reduced to
// the status line.
func requestErrorMessage(reqErr *openai.RequestError) string {
	if msg, ok := jsonBodyMessage(reqErr.Body); ok {
		return msg
	}
	if text := http.StatusText(reqErr.HTTPStatusCode); text != "" {
		return text
	}
	if reqErr.HTTPStatus != "" {
		return reqErr.HTTPStatus
	}
	return "unexpected response from provider"
}

var _ Provider = (*OpenAIProvider)(nil)
