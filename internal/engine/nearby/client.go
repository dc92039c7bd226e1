// Package nearby adapts the millisecond-epoch vendor framework to the
// engine capability set. The native risk fields already use the canonical
// scales; values are still clamped so out-of-range bridge payloads cannot
// leak past the normalization layer.
package nearby

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hyperengineering/exposure/internal/engine"
	"github.com/hyperengineering/exposure/internal/risknorm"
	"github.com/hyperengineering/exposure/internal/types"
)

// Compile-time interface check
var _ engine.Client = (*Client)(nil)

// Client talks to the vendor platform service over its loopback bridge.
type Client struct {
	bridge  *engine.Bridge
	submits engine.SubmitGroup
}

// New creates a nearby adapter for the given bridge base URL.
func New(baseURL string) *Client {
	return &Client{bridge: engine.NewBridge(baseURL)}
}

// Vendor names this adapter.
func (c *Client) Vendor() string { return "nearby" }

// Start enables proximity beaconing.
func (c *Client) Start(ctx context.Context) error {
	if err := c.bridge.PostJSON(ctx, "/v1/start", nil, nil); err != nil {
		return engine.MapBridgeError(err)
	}
	return nil
}

// Stop disables proximity beaconing.
func (c *Client) Stop(ctx context.Context) error {
	if err := c.bridge.PostJSON(ctx, "/v1/stop", nil, nil); err != nil {
		return engine.MapBridgeError(err)
	}
	return nil
}

// IsRunning reports whether beaconing is active.
func (c *Client) IsRunning(ctx context.Context) (bool, error) {
	var resp struct {
		Running bool `json:"running"`
	}
	if err := c.bridge.GetJSON(ctx, "/v1/status", &resp); err != nil {
		return false, engine.MapBridgeError(err)
	}
	return resp.Running, nil
}

type nativeKey struct {
	KeyData                    []byte `json:"keyData"`
	RollingStartIntervalNumber int64  `json:"rollingStartIntervalNumber"`
	RollingPeriod              int32  `json:"rollingPeriod"`
	TransmissionRiskLevel      int    `json:"transmissionRiskLevel"`
}

// TemporaryKeys returns the device's own rolling keys. Key values pass
// through unmodified; clamping applies to inbound results only.
func (c *Client) TemporaryKeys(ctx context.Context) ([]types.TemporaryKey, error) {
	var resp struct {
		Keys []nativeKey `json:"keys"`
	}
	if err := c.bridge.GetJSON(ctx, "/v1/temporaryExposureKeys", &resp); err != nil {
		return nil, engine.MapBridgeError(err)
	}

	keys := make([]types.TemporaryKey, len(resp.Keys))
	for i, k := range resp.Keys {
		keys[i] = types.TemporaryKey{
			KeyData:              k.KeyData,
			RollingStartInterval: k.RollingStartIntervalNumber,
			RollingPeriod:        k.RollingPeriod,
			TransmissionRisk:     k.TransmissionRiskLevel,
		}
	}
	return keys, nil
}

// ProvideDiagnosisKeys submits downloaded key files for matching.
func (c *Client) ProvideDiagnosisKeys(ctx context.Context, files []string, cfg types.EngineConfig, token string) error {
	return c.submits.Do(token, func() error {
		req := struct {
			Files         []string           `json:"files"`
			Configuration types.EngineConfig `json:"configuration"`
			Token         string             `json:"token"`
		}{Files: files, Configuration: cfg, Token: token}

		if err := c.bridge.PostJSON(ctx, "/v1/diagnosisKeys", req, nil); err != nil {
			return engine.MapBridgeError(err)
		}
		return nil
	})
}

type nativeSummary struct {
	MatchedKeyCount               int   `json:"matchedKeyCount"`
	DaysSinceLastExposure         int   `json:"daysSinceLastExposure"`
	MaximumRiskScore              int   `json:"maximumRiskScore"`
	AttenuationDurationsInMinutes []int `json:"attenuationDurationsInMinutes"`
}

// Summary returns the normalized aggregate result for the token.
func (c *Client) Summary(ctx context.Context, token string) (*types.ExposureSummary, error) {
	var native nativeSummary
	path := "/v1/exposureSummary?token=" + url.QueryEscape(token)
	if err := c.bridge.GetJSON(ctx, path, &native); err != nil {
		return nil, fmt.Errorf("exposure summary: %w", engine.MapBridgeError(err))
	}

	durations := make([]int, len(native.AttenuationDurationsInMinutes))
	for i, d := range native.AttenuationDurationsInMinutes {
		durations[i] = risknorm.NormalizeDuration(d)
	}

	return &types.ExposureSummary{
		MatchedKeyCount:       native.MatchedKeyCount,
		DaysSinceLastExposure: native.DaysSinceLastExposure,
		MaximumRiskScore:      risknorm.ClampRiskScore(native.MaximumRiskScore),
		AttenuationDurations:  durations,
	}, nil
}

type nativeExposure struct {
	DateMillisSinceEpoch  int64 `json:"dateMillisSinceEpoch"`
	TotalRiskScore        int   `json:"totalRiskScore"`
	TransmissionRiskLevel int   `json:"transmissionRiskLevel"`
	AttenuationValue      int   `json:"attenuationValue"`
	DurationMinutes       int   `json:"durationMinutes"`
}

// Details returns the normalized per-contact records for the token.
func (c *Client) Details(ctx context.Context, token string) ([]types.ExposureDetail, error) {
	var native struct {
		Exposures []nativeExposure `json:"exposureInformation"`
	}
	path := "/v1/exposureInformation?token=" + url.QueryEscape(token)
	if err := c.bridge.GetJSON(ctx, path, &native); err != nil {
		return nil, fmt.Errorf("exposure details: %w", engine.MapBridgeError(err))
	}

	details := make([]types.ExposureDetail, len(native.Exposures))
	for i, e := range native.Exposures {
		details[i] = types.ExposureDetail{
			OccurredAt:            risknorm.EpochMillisToTime(e.DateMillisSinceEpoch),
			TotalRiskScore:        risknorm.ClampRiskScore(e.TotalRiskScore),
			TransmissionRiskLevel: risknorm.ClampTransmissionRisk(e.TransmissionRiskLevel),
			AttenuationValue:      risknorm.ClampAttenuation(e.AttenuationValue),
			DurationMinutes:       risknorm.NormalizeDuration(e.DurationMinutes),
		}
	}
	return details, nil
}

// ServiceHealth probes framework availability.
func (c *Client) ServiceHealth(ctx context.Context) (types.ServiceHealth, error) {
	var resp struct {
		Status string `json:"status"`
		Code   int    `json:"code"`
	}
	if err := c.bridge.GetJSON(ctx, "/v1/health", &resp); err != nil {
		return types.ServiceHealth{}, err
	}
	return engine.ParseHealth(resp.Status, resp.Code), nil
}
