package validation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ConnectivityResult is the outcome of a single reachability probe.
type ConnectivityResult struct {
	Reachable  bool
	StatusCode int
	Message    string
	Latency    time.Duration
	Error      error
}

// ConnectivityChecker sends HEAD requests to provider endpoints. Any HTTP
// response, including 401 and 404, counts as reachable: the probe only
// proves the network path, not the credential.
type ConnectivityChecker struct {
	client  *http.Client
	timeout time.Duration
}

// NewConnectivityChecker wraps client. A nil client uses http.DefaultClient.
func NewConnectivityChecker(client *http.Client, timeout time.Duration) *ConnectivityChecker {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ConnectivityChecker{client: client, timeout: timeout}
}

// Check probes endpoint within the checker's timeout.
func (c *ConnectivityChecker) Check(ctx context.Context, endpoint string) ConnectivityResult {
	if err := ValidateEndpointURL(endpoint); err != nil {
		return ConnectivityResult{Message: "Invalid URL format", Error: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return ConnectivityResult{Message: "Failed to create request", Error: err}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ConnectivityResult{
				Message: "Connection timed out",
				Latency: latency,
				Error:   fmt.Errorf("%s unreachable: timed out after %v", endpoint, c.timeout),
			}
		}
		return ConnectivityResult{
			Message: "Connection failed",
			Latency: latency,
			Error:   fmt.Errorf("%s unreachable: %w", endpoint, err),
		}
	}
	resp.Body.Close()

	return ConnectivityResult{
		Reachable:  true,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("reachable (status: %d)", resp.StatusCode),
		Latency:    latency,
	}
}
