package exposureapi

import "time"

// CategoryStatus is the progress of one category's synchronization runs.
type CategoryStatus struct {
	State      string          `json:"state"`
	Token      string          `json:"token,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
	LastError  string          `json:"last_error,omitempty"`
	LastResult *ExposureResult `json:"last_result,omitempty"`
}

// ExposureSummary is the aggregate result of one matching run.
type ExposureSummary struct {
	MatchedKeyCount       int   `json:"matched_key_count"`
	DaysSinceLastExposure int   `json:"days_since_last_exposure"`
	MaximumRiskScore      int   `json:"maximum_risk_score"`
	AttenuationDurations  []int `json:"attenuation_durations"`
}

// ExposureDetail is one normalized exposure event.
type ExposureDetail struct {
	OccurredAt            time.Time `json:"occurred_at"`
	TotalRiskScore        int       `json:"total_risk_score"`
	TransmissionRiskLevel int       `json:"transmission_risk_level"`
	AttenuationValue      int       `json:"attenuation_value"`
	DurationMinutes       int       `json:"duration_minutes"`
}

// ExposureResult is the outcome of a completed synchronization run.
type ExposureResult struct {
	Token      string           `json:"token"`
	Category   string           `json:"category"`
	Summary    ExposureSummary  `json:"summary"`
	Details    []ExposureDetail `json:"details"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Health is the daemon health report.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Vendor  string `json:"vendor"`
	Engine  string `json:"engine"`
	Ledger  string `json:"ledger"`
}

// EngineHealth is the vendor framework availability report.
type EngineHealth struct {
	Vendor string `json:"vendor"`
	Status string `json:"status"`
	Code   int    `json:"code"`
	Usable bool   `json:"usable"`
}

// TemporaryKey is one of the device's own rolling keys.
type TemporaryKey struct {
	KeyData              []byte `json:"key_data"`
	RollingStartInterval int64  `json:"rolling_start_interval"`
	RollingPeriod        int32  `json:"rolling_period"`
	TransmissionRisk     int    `json:"transmission_risk"`
}
