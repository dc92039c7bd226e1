package types

import (
	"fmt"
	"time"
)

// IntervalSeconds is the length of one diagnosis-key interval unit.
// Interval numbers count 10-minute windows since the Unix epoch.
const IntervalSeconds = 600

// Category classifies a reporting session by exposure severity.
type Category string

const (
	CategoryGreen  Category = "green"
	CategoryYellow Category = "yellow"
	CategoryRed    Category = "red"
)

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryGreen, CategoryYellow, CategoryRed:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// BatchDescriptor identifies one server-published diagnosis-key batch.
// Immutable, sourced from the server index.
type BatchDescriptor struct {
	Interval  int64    `json:"interval"`
	FilePaths []string `json:"batch_file_paths"`
}

// EpochSeconds returns the batch interval converted to Unix seconds.
func (d BatchDescriptor) EpochSeconds() int64 {
	return d.Interval * IntervalSeconds
}

// BatchIndex is the server catalog of available batches. Produced fresh on
// every sync attempt and never persisted.
type BatchIndex struct {
	Full14 BatchDescriptor   `json:"full_14_batch"`
	Full7  BatchDescriptor   `json:"full_7_batch"`
	Daily  []BatchDescriptor `json:"daily_batches"`
}

// BatchKind distinguishes the two part ledgers of a session.
type BatchKind string

const (
	BatchKindFull  BatchKind = "full"
	BatchKindDaily BatchKind = "daily"
)

// SyncSession is the root of a part ledger for one synchronization run.
type SyncSession struct {
	Token    string
	Category Category
}

// BatchPart is the durable proof that one batch file was fetched and is
// ready for submission to the matching engine.
type BatchPart struct {
	ID            int64
	Token         string
	BatchNumber   int64
	IntervalStart int64
	Path          string
}

// SessionAggregate is a session together with all of its recorded parts,
// assembled by a single multi-table read.
type SessionAggregate struct {
	Session    SyncSession
	FullParts  []BatchPart
	DailyParts []BatchPart
}

// AllPaths returns every downloaded file path in the aggregate, full parts
// first, each ledger in batch-number order.
func (a *SessionAggregate) AllPaths() []string {
	paths := make([]string, 0, len(a.FullParts)+len(a.DailyParts))
	for _, p := range a.FullParts {
		paths = append(paths, p.Path)
	}
	for _, p := range a.DailyParts {
		paths = append(paths, p.Path)
	}
	return paths
}

// BatchSelection is the set of descriptors chosen for one run: exactly one
// full batch plus the bounded window of daily batches.
type BatchSelection struct {
	Full  BatchDescriptor
	Daily []BatchDescriptor
}

// MissingParts is the subset of a BatchSelection not yet represented by a
// ledger row.
type MissingParts struct {
	Full  []BatchDescriptor
	Daily []BatchDescriptor
}

// Empty reports whether every selected descriptor has been recorded.
func (m MissingParts) Empty() bool {
	return len(m.Full) == 0 && len(m.Daily) == 0
}

// HealthStatus is the availability state of the vendor matching framework.
type HealthStatus int

const (
	HealthAvailable HealthStatus = iota
	HealthMissing
	HealthNeedsUpdate
	HealthDisabled
	HealthVersionTooOld
	HealthUnknown
)

// String returns the wire name of the status.
func (s HealthStatus) String() string {
	switch s {
	case HealthAvailable:
		return "available"
	case HealthMissing:
		return "missing"
	case HealthNeedsUpdate:
		return "needs_update"
	case HealthDisabled:
		return "disabled"
	case HealthVersionTooOld:
		return "version_too_old"
	default:
		return "unknown"
	}
}

// ServiceHealth describes vendor framework availability. Code carries the
// vendor-native status code when Status is HealthUnknown.
type ServiceHealth struct {
	Status HealthStatus `json:"status"`
	Code   int          `json:"code,omitempty"`
}

// Usable reports whether a sync run should be attempted at all.
func (h ServiceHealth) Usable() bool {
	return h.Status == HealthAvailable
}

// TemporaryKey is one of this device's own rolling keys, exported for
// self-report upload. Key material is opaque to this system.
type TemporaryKey struct {
	KeyData              []byte `json:"key_data"`
	RollingStartInterval int64  `json:"rolling_start_interval"`
	RollingPeriod        int32  `json:"rolling_period"`
	TransmissionRisk     int    `json:"transmission_risk"`
}

// ExposureSummary is the canonical aggregate result of one matching run.
type ExposureSummary struct {
	MatchedKeyCount       int   `json:"matched_key_count"`
	DaysSinceLastExposure int   `json:"days_since_last_exposure"`
	MaximumRiskScore      int   `json:"maximum_risk_score"`
	AttenuationDurations  []int `json:"attenuation_durations"`
}

// ExposureDetail is one canonical per-contact record. All numeric fields are
// already clamped to their canonical ranges by the vendor adapter.
type ExposureDetail struct {
	OccurredAt            time.Time `json:"occurred_at"`
	TotalRiskScore        int       `json:"total_risk_score"`
	TransmissionRiskLevel int       `json:"transmission_risk_level"`
	AttenuationValue      int       `json:"attenuation_value"`
	DurationMinutes       int       `json:"duration_minutes"`
}

// ExposureResult is the normalized outcome of a completed sync run, handed
// off to downstream risk-threshold evaluation.
type ExposureResult struct {
	Token      string           `json:"token"`
	Category   Category         `json:"category"`
	Summary    ExposureSummary  `json:"summary"`
	Details    []ExposureDetail `json:"details"`
	FinishedAt time.Time        `json:"finished_at"`
}

// EngineConfig is the matching configuration passed through to the vendor
// engine with each key submission. Weights are vendor-interpreted.
type EngineConfig struct {
	MinimumRiskScore        int   `json:"minimum_risk_score" yaml:"minimum_risk_score"`
	AttenuationWeight       int   `json:"attenuation_weight" yaml:"attenuation_weight"`
	DaysSinceExposureWeight int   `json:"days_weight" yaml:"days_weight"`
	DurationWeight          int   `json:"duration_weight" yaml:"duration_weight"`
	TransmissionRiskWeight  int   `json:"transmission_weight" yaml:"transmission_weight"`
	AttenuationThresholds   []int `json:"attenuation_thresholds" yaml:"attenuation_thresholds"`
}
