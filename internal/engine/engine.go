// Package engine abstracts the vendor-supplied exposure matching engines
// behind a single capability set. Exactly one concrete adapter is bound at
// process start; orchestration logic never branches on vendor identity.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperengineering/exposure/internal/types"
)

var (
	// ErrResolutionRequired indicates the vendor requires explicit user
	// consent before keys can be submitted. The session must be preserved
	// so the run can resume after consent.
	ErrResolutionRequired = errors.New("user resolution required")

	// ErrUserDeclined indicates the user declined a vendor consent dialog.
	// Terminal for the current run, treated as a no-op success.
	ErrUserDeclined = errors.New("user declined consent")
)

// UnavailableError reports that the vendor framework cannot currently serve
// requests. Fatal for the run, user-actionable; no retry without user
// intervention.
type UnavailableError struct {
	Health types.ServiceHealth
}

func (e *UnavailableError) Error() string {
	if e.Health.Status == types.HealthUnknown {
		return fmt.Sprintf("exposure framework unavailable: unknown status code %d", e.Health.Code)
	}
	return fmt.Sprintf("exposure framework unavailable: %s", e.Health.Status)
}

// Client is the capability set over one vendor matching engine.
// All results are returned in the canonical domain model; adapters apply
// the risknorm conversions before returning.
type Client interface {
	// Start enables the underlying proximity-beaconing engine.
	Start(ctx context.Context) error
	// Stop disables the underlying proximity-beaconing engine.
	Stop(ctx context.Context) error
	// IsRunning reports whether the beaconing engine is active.
	IsRunning(ctx context.Context) (bool, error)

	// TemporaryKeys returns this device's own rolling keys for upload when
	// the user self-reports. Key values pass through unmodified.
	TemporaryKeys(ctx context.Context) ([]types.TemporaryKey, error)

	// ProvideDiagnosisKeys submits downloaded key files for matching.
	// Single-flight per token: concurrent submissions for the same token
	// share one in-flight call.
	ProvideDiagnosisKeys(ctx context.Context, files []string, cfg types.EngineConfig, token string) error

	// Summary returns the normalized aggregate result of the most recent
	// matching run for the token.
	Summary(ctx context.Context, token string) (*types.ExposureSummary, error)
	// Details returns the normalized per-contact records of the most
	// recent matching run for the token.
	Details(ctx context.Context, token string) ([]types.ExposureDetail, error)

	// ServiceHealth probes vendor framework availability.
	ServiceHealth(ctx context.Context) (types.ServiceHealth, error)

	// Vendor names the bound adapter, for logging only.
	Vendor() string
}
