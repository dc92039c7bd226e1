// Package index parses the server-published batch catalog and bounds how
// much history a single sync run must reconcile.
package index

import (
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/hyperengineering/exposure/internal/types"
)

// Parse decodes the JSON index document fetched from the batch server.
func Parse(data []byte) (*types.BatchIndex, error) {
	var idx types.BatchIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse batch index: %w", err)
	}
	return &idx, nil
}

// RecentDaily yields the daily batches whose interval converted to epoch
// time falls within the last hours before now. The sequence is lazy and
// restartable; an empty daily list yields an empty sequence.
func RecentDaily(idx *types.BatchIndex, now time.Time, hours int) iter.Seq[types.BatchDescriptor] {
	cutoff := now.Unix() - int64(hours)*3600
	return func(yield func(types.BatchDescriptor) bool) {
		for _, d := range idx.Daily {
			if d.EpochSeconds() <= cutoff {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// CollectRecentDaily materializes RecentDaily into a slice.
func CollectRecentDaily(idx *types.BatchIndex, now time.Time, hours int) []types.BatchDescriptor {
	var out []types.BatchDescriptor
	for d := range RecentDaily(idx, now, hours) {
		out = append(out, d)
	}
	return out
}
