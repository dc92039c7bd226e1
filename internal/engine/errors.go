package engine

import (
	"errors"

	"github.com/hyperengineering/exposure/internal/types"
)

// ParseHealth maps a bridge health status name onto the domain variant.
// Unrecognized names become HealthUnknown with the vendor code attached.
func ParseHealth(status string, code int) types.ServiceHealth {
	switch status {
	case "available":
		return types.ServiceHealth{Status: types.HealthAvailable}
	case "missing":
		return types.ServiceHealth{Status: types.HealthMissing}
	case "needs_update":
		return types.ServiceHealth{Status: types.HealthNeedsUpdate}
	case "disabled":
		return types.ServiceHealth{Status: types.HealthDisabled}
	case "version_too_old":
		return types.ServiceHealth{Status: types.HealthVersionTooOld}
	default:
		return types.ServiceHealth{Status: types.HealthUnknown, Code: code}
	}
}

// MapBridgeError converts a bridge status error into the domain taxonomy.
// Errors that do not match a known reason pass through unchanged.
func MapBridgeError(err error) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return err
	}

	switch se.Reason {
	case "resolution_required":
		return ErrResolutionRequired
	case "user_declined":
		return ErrUserDeclined
	case "missing", "needs_update", "disabled", "version_too_old":
		return &UnavailableError{Health: ParseHealth(se.Reason, se.StatusCode)}
	}
	return err
}
