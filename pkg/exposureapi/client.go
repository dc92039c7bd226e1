package exposureapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError is a non-2xx response from the daemon, carrying the RFC 7807
// problem detail when one was returned.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Detail)
}

// Client talks to a running exposure daemon over its status API.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the daemon at baseURL, e.g. "http://127.0.0.1:8090".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks connectivity to the daemon.
func (c *Client) Ping(ctx context.Context) error {
	var h Health
	return c.get(ctx, "/healthz", &h)
}

// Health returns the daemon health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/healthz", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Status returns per-category run states.
func (c *Client) Status(ctx context.Context) (map[string]CategoryStatus, error) {
	var out map[string]CategoryStatus
	if err := c.get(ctx, "/api/v1/status", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Result returns the last completed run for the category.
func (c *Client) Result(ctx context.Context, category string) (*ExposureResult, error) {
	var res ExposureResult
	if err := c.get(ctx, "/api/v1/result/"+category, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TriggerSync starts a background run for the category.
func (c *Client) TriggerSync(ctx context.Context, category string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/sync/"+category, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return decodeError(resp)
	}
	return nil
}

// TemporaryKeys returns the device's own keys for user-initiated upload.
func (c *Client) TemporaryKeys(ctx context.Context) ([]TemporaryKey, error) {
	var keys []TemporaryKey
	if err := c.get(ctx, "/api/v1/keys", &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// EngineHealth returns vendor framework availability.
func (c *Client) EngineHealth(ctx context.Context) (*EngineHealth, error) {
	var h EngineHealth
	if err := c.get(ctx, "/api/v1/engine/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}
	var problem struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &problem) == nil {
		apiErr.Detail = problem.Detail
	}
	return apiErr
}
