package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Default provider endpoints and models.
const (
	DefaultHFInferenceURL   = "https://router.huggingface.co/hf-inference/models"
	DefaultImageModel       = "black-forest-labs/FLUX.1-schnell"
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultOpenAIImageModel = "dall-e-3"
	DefaultAzureAPIVersion  = "2024-02-15-preview"
)

// Config holds all configuration values
type Config struct {
	// Primary provider (Hugging Face Inference)
	HFToken        string
	HFInferenceURL string
	ImageModel     string // Default model selector when a request names none

	// Secondary provider (OpenAI DALL-E, optional - enables paid fallback)
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIImageModel string

	// Azure OpenAI Configuration (optional alternative secondary)
	AzureOpenAIEndpoint   string
	AzureOpenAIDeployment string
	AzureOpenAIAPIVersion string

	// Storage
	OutputDir            string
	DatabasePath         string
	HistoryRetentionDays int
	ModelCatalogPath     string // Optional YAML override for the embedded catalog

	// Server Configuration
	Host                 string
	Port                 int
	WebUIPassword        string
	AllowSelfSignedCerts bool

	// Timeouts applied by the host, not by the orchestrator
	ProviderTimeout time.Duration
	DownloadTimeout time.Duration
	ShutdownTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel string
	DevMode  bool
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// No credential is required here: a missing HF_TOKEN surfaces as a configuration
// failure on the first request that needs the primary provider, and a missing
// OPENAI_API_KEY simply disables fallback.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HFToken:        os.Getenv("HF_TOKEN"),
		HFInferenceURL: GetEnvOrDefault("HF_INFERENCE_URL", DefaultHFInferenceURL),
		ImageModel:     GetEnvOrDefault("IMAGE_MODEL", DefaultImageModel),

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    GetEnvOrDefault("OPENAI_BASE_URL", DefaultOpenAIBaseURL),
		OpenAIImageModel: GetEnvOrDefault("OPENAI_IMAGE_MODEL", DefaultOpenAIImageModel),

		AzureOpenAIEndpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIDeployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
		AzureOpenAIAPIVersion: GetEnvOrDefault("AZURE_OPENAI_API_VERSION", DefaultAzureAPIVersion),

		OutputDir:            GetEnvOrDefault("OUTPUT_DIR", "output"),
		DatabasePath:         GetEnvOrDefault("DATABASE_PATH", "data/history.db"),
		HistoryRetentionDays: ParseIntEnv("HISTORY_RETENTION_DAYS", 30),
		ModelCatalogPath:     os.Getenv("MODEL_CATALOG_PATH"),

		Host:                 GetEnvOrDefault("HOST", "0.0.0.0"),
		Port:                 ParseIntEnv("PORT", 5001),
		WebUIPassword:        os.Getenv("WEBUI_PWD"),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),

		// 120s covers a cold FLUX.1-dev run at 50 steps
		ProviderTimeout: ParseDurationEnv("PROVIDER_TIMEOUT", 120),
		DownloadTimeout: ParseDurationEnv("DOWNLOAD_TIMEOUT", 60),
		ShutdownTimeout: ParseDurationEnv("SHUTDOWN_TIMEOUT", 30),

		LogFile:  GetEnvOrDefault("LOG_FILE", "app.log"),
		LogLevel: GetEnvOrDefault("LOG_LEVEL", "info"),
		DevMode:  ParseBoolEnv("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. It does not check credentials.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidValue("PORT", fmt.Sprintf("%d is outside 1-65535", c.Port))
	}
	if c.OutputDir == "" {
		return ErrMissingConfig("OUTPUT_DIR")
	}
	if c.HistoryRetentionDays < 0 {
		return ErrInvalidValue("HISTORY_RETENTION_DAYS", "must not be negative")
	}
	if c.ProviderTimeout <= 0 {
		return ErrInvalidValue("PROVIDER_TIMEOUT", "must be positive")
	}
	if c.AzureOpenAIEndpoint != "" && c.AzureOpenAIDeployment == "" {
		return ErrMissingConfig("AZURE_OPENAI_DEPLOYMENT")
	}
	return nil
}

// RequirePrimary returns a ConfigError when the primary provider credential is absent.
func (c *Config) RequirePrimary() error {
	if c.HFToken == "" {
		return ErrMissingAuth("huggingface")
	}
	return nil
}

// HasSecondary reports whether a secondary provider credential is configured.
func (c *Config) HasSecondary() bool {
	return c.OpenAIAPIKey != ""
}

// UsesAzure reports whether the secondary provider should target Azure OpenAI.
func (c *Config) UsesAzure() bool {
	return c.AzureOpenAIEndpoint != ""
}

// Addr returns the listen address for the HTTP front end.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts
// This should be used for all HTTP requests to external APIs to ensure TLS configuration is respected
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg != nil && cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}
