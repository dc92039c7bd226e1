package ledger

import (
	"context"
	"time"

	"github.com/hyperengineering/exposure/internal/types"
)

// Ledger is the persistent, crash-resumable record of in-progress
// synchronization runs. A session is the single root of its part ledger;
// deleting it cascades to all recorded parts.
type Ledger interface {
	CreateSession(ctx context.Context, token string, category types.Category) error
	SessionForCategory(ctx context.Context, category types.Category) (*types.SyncSession, error)
	RecordPart(ctx context.Context, token string, kind types.BatchKind, batchNumber, intervalStart int64, path string) error
	RecordBatch(ctx context.Context, token string, kind types.BatchKind, intervalStart int64, paths []string) error
	LoadSession(ctx context.Context, token string) (*types.SessionAggregate, error)
	DeleteSession(ctx context.Context, token string) error
	MissingParts(ctx context.Context, token string, sel types.BatchSelection) (types.MissingParts, error)
	NextBatchNumber(ctx context.Context, token string, kind types.BatchKind) (int64, error)
	PurgeOrphans(ctx context.Context) (int64, error)
	LastFullSync(ctx context.Context) (time.Time, error)
	SetLastFullSync(ctx context.Context, t time.Time) error
	Ping(ctx context.Context) error
	Close() error
}
