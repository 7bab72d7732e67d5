package imagegen

import (
	"net/netip"
	"net/url"
	"strings"
)

// IsAzureEndpoint reports whether endpoint is an Azure OpenAI resource URL
// (*.openai.azure.com or *.cognitiveservices.azure.com).
//
// Example:
//
//	IsAzureEndpoint("https://myresource.openai.azure.com")  // true
//	IsAzureEndpoint("https://api.openai.com/v1")            // false
func IsAzureEndpoint(endpoint string) bool {
	host := endpointHost(endpoint)
	return strings.HasSuffix(host, ".openai.azure.com") ||
		strings.HasSuffix(host, ".cognitiveservices.azure.com")
}

// IsLocalEndpoint reports whether endpoint points at this machine or a private network.
//
// Example:
//
//	IsLocalEndpoint("http://localhost:1234")      // true
//	IsLocalEndpoint("http://192.168.1.100:5000")  // true
//	IsLocalEndpoint("https://api.openai.com")     // false
func IsLocalEndpoint(endpoint string) bool {
	host := endpointHost(endpoint)
	if host == "localhost" {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified()
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
