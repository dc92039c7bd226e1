// Package risknorm maps vendor-native risk fields onto the canonical ranges
// shared by both matching engines. The two vendor SDKs define the same
// concepts on different native scales; downstream threshold logic depends on
// these conversions being applied identically regardless of vendor.
package risknorm

import "time"

const (
	// MaxRiskScore is the upper bound of the canonical total risk score.
	MaxRiskScore = 4096
	// MaxTransmissionRisk is the upper bound of the canonical transmission
	// risk level.
	MaxTransmissionRisk = 8
	// MaxAttenuation is the upper bound of the canonical attenuation value.
	MaxAttenuation = 255
	// MaxDurationMinutes is the upper bound of the canonical per-contact
	// duration.
	MaxDurationMinutes = 30

	secondsPerDay = 86400
)

// ClampRiskScore clamps a native risk score to [0, 4096].
func ClampRiskScore(v int) int {
	return clamp(v, 0, MaxRiskScore)
}

// ClampTransmissionRisk clamps a native transmission risk level to [0, 8].
func ClampTransmissionRisk(v int) int {
	return clamp(v, 0, MaxTransmissionRisk)
}

// ClampAttenuation clamps a native attenuation value to [0, 255].
func ClampAttenuation(v int) int {
	return clamp(v, 0, MaxAttenuation)
}

// RoundUpToFive rounds a non-negative duration up to the nearest multiple
// of five minutes. Negative input is treated as zero.
func RoundUpToFive(v int) int {
	if v <= 0 {
		return 0
	}
	if r := v % 5; r != 0 {
		return v - r + 5
	}
	return v
}

// NormalizeDuration rounds a native contact duration up to the nearest
// multiple of five minutes, then clamps to [0, 30].
func NormalizeDuration(v int) int {
	return clamp(RoundUpToFive(v), 0, MaxDurationMinutes)
}

// DayNumberToTime converts a day-number timestamp (days since the Unix
// epoch, as reported by one vendor) to UTC time, matching the other
// vendor's millisecond-epoch convention.
func DayNumberToTime(day int64) time.Time {
	return time.Unix(day*secondsPerDay, 0).UTC()
}

// EpochMillisToTime converts a millisecond-epoch timestamp to UTC time.
func EpochMillisToTime(ms int64) time.Time {
	return time.Unix(ms/1000, 0).UTC()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
