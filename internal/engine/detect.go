package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/exposure/internal/types"
)

// ErrNoVendor is returned when no vendor framework responds to the
// startup probe.
var ErrNoVendor = errors.New("no usable vendor framework detected")

// Probe selects the vendor adapter for this process. When vendor is set it
// is authoritative; otherwise each candidate's health endpoint is probed in
// order and the first one that answers with a known status wins — a vendor
// that answers "needs_update" is still installed, and its adapter is the
// right surface to report that through.
func Probe(ctx context.Context, vendor string, candidates map[string]Client) (Client, error) {
	if vendor != "" {
		c, ok := candidates[vendor]
		if !ok {
			return nil, fmt.Errorf("unknown vendor %q", vendor)
		}
		return c, nil
	}

	// Deterministic probe order.
	for _, name := range []string{"nearby", "contactshield"} {
		c, ok := candidates[name]
		if !ok {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		health, err := c.ServiceHealth(probeCtx)
		cancel()
		if err != nil {
			continue
		}
		if health.Status != types.HealthMissing {
			return c, nil
		}
	}
	return nil, ErrNoVendor
}
