// Package contactshield adapts the day-number vendor framework to the
// engine capability set. Its native risk fields use wider scales than the
// canonical model, so every numeric field is clamped on the way in, and day
// numbers are converted to epoch time via days-since-epoch.
package contactshield

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

// New creates a contactshield adapter for the given bridge base URL.
func New(baseURL string) *Client {
	return &Client{bridge: engine.NewBridge(baseURL)}
}

// Vendor names this adapter.
func (c *Client) Vendor() string { return "contactshield" }

// Start enables proximity beaconing.
func (c *Client) Start(ctx context.Context) error {
	if err := c.bridge.PostJSON(ctx, "/contactshield/start", nil, nil); err != nil {
		return engine.MapBridgeError(err)
	}
	return nil
}

// Stop disables proximity beaconing.
func (c *Client) Stop(ctx context.Context) error {
	if err := c.bridge.PostJSON(ctx, "/contactshield/stop", nil, nil); err != nil {
		return engine.MapBridgeError(err)
	}
	return nil
}

// IsRunning reports whether beaconing is active.
func (c *Client) IsRunning(ctx context.Context) (bool, error) {
	var resp struct {
		Running bool `json:"contactShieldRunning"`
	}
	if err := c.bridge.GetJSON(ctx, "/contactshield/running", &resp); err != nil {
		return false, engine.MapBridgeError(err)
	}
	return resp.Running, nil
}

type nativePeriodicKey struct {
	Content              []byte `json:"content"`
	PeriodicKeyValidTime int64  `json:"periodicKeyValidTime"`
	PeriodicKeyLifeTime  int32  `json:"periodicKeyLifeTime"`
	InitialRiskLevel     int    `json:"initialRiskLevel"`
}

// TemporaryKeys returns the device's own rolling keys. Key values pass
// through unmodified; clamping applies to inbound results only.
func (c *Client) TemporaryKeys(ctx context.Context) ([]types.TemporaryKey, error) {
	var resp struct {
		Keys []nativePeriodicKey `json:"periodicKeys"`
	}
	if err := c.bridge.GetJSON(ctx, "/contactshield/periodicKeys", &resp); err != nil {
		return nil, engine.MapBridgeError(err)
	}

	keys := make([]types.TemporaryKey, len(resp.Keys))
	for i, k := range resp.Keys {
		keys[i] = types.TemporaryKey{
			KeyData:              k.Content,
			RollingStartInterval: k.PeriodicKeyValidTime,
			RollingPeriod:        k.PeriodicKeyLifeTime,
			TransmissionRisk:     k.InitialRiskLevel,
		}
	}
	return keys, nil
}

// ProvideDiagnosisKeys submits downloaded key files for matching.
func (c *Client) ProvideDiagnosisKeys(ctx context.Context, files []string, cfg types.EngineConfig, token string) error {
	return c.submits.Do(token, func() error {
		req := struct {
			Files         []string           `json:"fileList"`
			Configuration types.EngineConfig `json:"diagnosisConfiguration"`
			Token         string             `json:"token"`
		}{Files: files, Configuration: cfg, Token: token}

		if err := c.bridge.PostJSON(ctx, "/contactshield/putSharedKeyFiles", req, nil); err != nil {
			return engine.MapBridgeError(err)
		}
		return nil
	})
}

type nativeSketch struct {
	NumberOfHits         int   `json:"numberOfHits"`
	DaysSinceLastHit     int   `json:"daysSinceLastHit"`
	MaxRiskValue         int   `json:"maxRiskValue"`
	AttenuationDurations []int `json:"attenuationDurations"`
}

// Summary returns the normalized aggregate result for the token.
func (c *Client) Summary(ctx context.Context, token string) (*types.ExposureSummary, error) {
	var native nativeSketch
	path := "/contactshield/contactSketch?token=" + url.QueryEscape(token)
	if err := c.bridge.GetJSON(ctx, path, &native); err != nil {
		return nil, fmt.Errorf("contact sketch: %w", engine.MapBridgeError(err))
	}

	durations := make([]int, len(native.AttenuationDurations))
	for i, d := range native.AttenuationDurations {
		durations[i] = risknorm.NormalizeDuration(d)
	}

	return &types.ExposureSummary{
		MatchedKeyCount:       native.NumberOfHits,
		DaysSinceLastExposure: native.DaysSinceLastHit,
		MaximumRiskScore:      risknorm.ClampRiskScore(native.MaxRiskValue),
		AttenuationDurations:  durations,
	}, nil
}

type nativeContactDetail struct {
	DayNumber            int64 `json:"dayNumber"`
	TotalRiskValue       int   `json:"totalRiskValue"`
	InitialRiskLevel     int   `json:"initialRiskLevel"`
	AttenuationRiskValue int   `json:"attenuationRiskValue"`
	DurationMinutes      int   `json:"durationMinutes"`
}

// Details returns the normalized per-contact records for the token.
// DayNumber counts days since the Unix epoch and is converted to epoch
// time, matching the other vendor's millisecond convention.
func (c *Client) Details(ctx context.Context, token string) ([]types.ExposureDetail, error) {
	var native struct {
		Details []nativeContactDetail `json:"contactDetails"`
	}
	path := "/contactshield/contactDetails?token=" + url.QueryEscape(token)
	if err := c.bridge.GetJSON(ctx, path, &native); err != nil {
		return nil, fmt.Errorf("contact details: %w", engine.MapBridgeError(err))
	}

	details := make([]types.ExposureDetail, len(native.Details))
	for i, d := range native.Details {
		details[i] = types.ExposureDetail{
			OccurredAt:            risknorm.DayNumberToTime(d.DayNumber),
			TotalRiskScore:        risknorm.ClampRiskScore(d.TotalRiskValue),
			TransmissionRiskLevel: risknorm.ClampTransmissionRisk(d.InitialRiskLevel),
			AttenuationValue:      risknorm.ClampAttenuation(d.AttenuationRiskValue),
			DurationMinutes:       risknorm.NormalizeDuration(d.DurationMinutes),
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
	if err := c.bridge.GetJSON(ctx, "/contactshield/health", &resp); err != nil {
		return types.ServiceHealth{}, err
	}
	return engine.ParseHealth(resp.Status, resp.Code), nil
}
