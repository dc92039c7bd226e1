package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hyperengineering/exposure/internal/config"
	"github.com/hyperengineering/exposure/internal/index"
	"github.com/hyperengineering/exposure/internal/types"
)

// HTTPSource fetches the index and batch files from a CDN base URL.
type HTTPSource struct {
	client      *http.Client
	baseURL     string
	indexPath   string
	downloadDir string
	retries     uint64
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource creates an HTTP batch source from configuration.
func NewHTTPSource(cfg config.BatchConfig) *HTTPSource {
	retries := uint64(cfg.Retries)
	if cfg.Retries <= 0 {
		retries = 3
	}
	return &HTTPSource{
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		indexPath:   cfg.IndexPath,
		downloadDir: cfg.DownloadDir,
		retries:     retries,
	}
}

// FetchIndex retrieves and parses the current batch index document.
func (s *HTTPSource) FetchIndex(ctx context.Context) (*types.BatchIndex, error) {
	var body []byte
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		data, err := s.get(ctx, s.indexPath)
		if err != nil {
			return retry.RetryableError(err)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexFetch, err)
	}

	idx, err := index.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexFetch, err)
	}
	return idx, nil
}

// DownloadFile fetches one batch file into the download directory.
// The write is atomic: the file appears under its final name only after the
// full body has been flushed.
func (s *HTTPSource) DownloadFile(ctx context.Context, remotePath string) (string, error) {
	if err := os.MkdirAll(s.downloadDir, 0755); err != nil {
		return "", &DownloadError{Path: remotePath, Err: err}
	}

	target := filepath.Join(s.downloadDir, localName(remotePath))

	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		if err := s.downloadTo(ctx, remotePath, target); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", &DownloadError{Path: remotePath, Err: err}
	}
	return target, nil
}

func (s *HTTPSource) backoff() retry.Backoff {
	b := retry.NewFibonacci(500 * time.Millisecond)
	return retry.WithMaxRetries(s.retries, b)
}

func (s *HTTPSource) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(path), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *HTTPSource) downloadTo(ctx context.Context, remotePath, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(remotePath), nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(s.downloadDir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *HTTPSource) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.baseURL + path
}
