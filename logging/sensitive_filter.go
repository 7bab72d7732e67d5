package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces sensitive data in log output.
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns match credential formats that may appear inside messages,
// e.g. a provider echoing the Authorization header in an error body.
var sensitivePatterns = []*regexp.Regexp{
	// Hugging Face access tokens
	regexp.MustCompile(`(hf_[a-zA-Z0-9]{20,})`),
	// OpenAI keys, legacy and sk-proj-
	regexp.MustCompile(`(sk-[a-zA-Z0-9_-]{20,})`),
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),
	// Azure OpenAI api-key header
	regexp.MustCompile(`(?i)(api-key:\s*[a-zA-Z0-9]{20,})`),
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)((?:api_?key|token|secret)\s*[:=]\s*[^\s,;]{8,})`),
}

// sensitiveFieldNames are substrings of field or variable names whose values are always redacted.
var sensitiveFieldNames = []string{
	"HF_TOKEN",
	"OPENAI_API_KEY",
	"AZURE_OPENAI_KEY",
	"WEBUI_PWD",
	"AUTHORIZATION",
	"PASSWORD",
	"SECRET",
	"API_KEY",
	"APIKEY",
}

// RedactSensitiveData replaces every credential-looking substring in value.
//
// Example:
//
//	RedactSensitiveData("401 for token hf_abcdefghijklmnopqrstuvwx")
//	// "401 for token [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField reports whether a field name indicates a credential.
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)
	for _, name := range sensitiveFieldNames {
		if strings.Contains(upperName, name) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData reports whether value matches any credential pattern.
func ContainsSensitiveData(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
