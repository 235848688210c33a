package authsdk

import (
	"context"
	"encoding/json"
	"net/http"
)

// GetLiveness reports whether the process is serving.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.call(ctx, http.MethodGet, "/livez", nil)
	if err != nil {
		return nil, err
	}
	return expectJSON[HealthResponse](resp, http.StatusOK)
}

// GetReadiness reports the state of the gate's dependencies. A degraded
// gate answers 503; the checks are still returned alongside ErrUnavailable
// so callers can see which dependency failed.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.call(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		return expectJSON[HealthResponse](resp, http.StatusOK)
	}

	b, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var health HealthResponse
	if json.Unmarshal(b, &health) != nil || health.Status == "" {
		return nil, parseErrorResponse(resp, b)
	}
	return &health, ErrUnavailable
}
