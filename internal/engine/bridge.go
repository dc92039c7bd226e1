package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// StatusError carries a non-2xx bridge response for the adapter to map
// onto the domain error taxonomy.
type StatusError struct {
	StatusCode int
	Reason     string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bridge status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("bridge status %d", e.StatusCode)
}

// Bridge is the loopback HTTP transport to a vendor platform service.
// Both adapters share it; only payload shapes and error mapping differ.
type Bridge struct {
	baseURL string
	client  *http.Client
}

// NewBridge creates a bridge transport for the given loopback base URL.
func NewBridge(baseURL string) *Bridge {
	return &Bridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// GetJSON performs a GET and decodes the JSON response into out.
func (b *Bridge) GetJSON(ctx context.Context, path string, out any) error {
	return b.roundTrip(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs a POST with a JSON body and decodes the response into
// out when out is non-nil.
func (b *Bridge) PostJSON(ctx context.Context, path string, in, out any) error {
	return b.roundTrip(ctx, http.MethodPost, path, in, out)
}

func (b *Bridge) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Reason string `json:"reason"`
		}
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &envelope)
		return &StatusError{StatusCode: resp.StatusCode, Reason: envelope.Reason}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// SubmitGroup deduplicates concurrent key submissions per token.
type SubmitGroup struct {
	g singleflight.Group
}

// Do runs fn single-flight for the token: concurrent callers with the same
// token share one execution and its error.
func (s *SubmitGroup) Do(token string, fn func() error) error {
	_, err, _ := s.g.Do(token, func() (any, error) {
		return nil, fn()
	})
	return err
}
