// Package fetch retrieves the batch index and batch files from the
// publication endpoint. Two sources exist: plain HTTP against a CDN base
// URL, and S3-compatible object storage. Selection follows configuration;
// everything downstream sees only the Source interface.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/exposure/internal/config"
	"github.com/hyperengineering/exposure/internal/types"
)

// ErrIndexFetch is returned when the batch index cannot be retrieved.
// Retryable: the next scheduled run simply tries again.
var ErrIndexFetch = errors.New("batch index fetch failed")

// DownloadError is returned when an individual batch file cannot be
// fetched. Retryable; it never mutates the ledger.
type DownloadError struct {
	Path string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Path, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Source fetches the batch catalog and individual batch files.
type Source interface {
	// FetchIndex retrieves and parses the current batch index.
	FetchIndex(ctx context.Context) (*types.BatchIndex, error)

	// DownloadFile fetches one batch file and returns the local path it
	// was stored under.
	DownloadFile(ctx context.Context, remotePath string) (string, error)
}

// NewSource creates the appropriate Source based on configuration.
// Returns an S3 source when a bucket is configured, HTTP otherwise.
func NewSource(cfg config.BatchConfig) (Source, error) {
	if cfg.S3.Bucket != "" {
		return NewS3Source(cfg)
	}
	return NewHTTPSource(cfg), nil
}

// localName flattens a remote path into a stable file name inside the
// download directory. Distinct remote paths must never collide.
func localName(remotePath string) string {
	trimmed := strings.Trim(remotePath, "/")
	return strings.ReplaceAll(trimmed, "/", "_")
}
