package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/exposure/internal/config"
	"github.com/hyperengineering/exposure/internal/index"
	"github.com/hyperengineering/exposure/internal/types"
)

// objectClient defines the minimal minio.Client operations used by
// S3Source. This interface enables testing with mock implementations.
type objectClient interface {
	GetObject(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	FGetObject(ctx context.Context, bucket, objectName, filePath string) error
}

// minioClientWrapper wraps *minio.Client to satisfy the objectClient
// interface. Necessary because minio.Client methods carry concrete option
// types that differ from our simplified interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) GetObject(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	return w.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
}

func (w *minioClientWrapper) FGetObject(ctx context.Context, bucket, objectName, filePath string) error {
	return w.client.FGetObject(ctx, bucket, objectName, filePath, minio.GetObjectOptions{})
}

// S3Source fetches the index and batch files from S3-compatible storage.
type S3Source struct {
	client      objectClient
	bucket      string
	indexKey    string
	downloadDir string
}

var _ Source = (*S3Source)(nil)

// NewS3Source creates an object-storage batch source from configuration.
func NewS3Source(cfg config.BatchConfig) (*S3Source, error) {
	useSSL := true
	if cfg.S3.UseSSL != nil {
		useSSL = *cfg.S3.UseSSL
	}

	client, err := minio.New(cfg.S3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.S3.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	indexKey := cfg.S3.IndexKey
	if indexKey == "" {
		indexKey = "index.json"
	}

	return &S3Source{
		client:      &minioClientWrapper{client: client},
		bucket:      cfg.S3.Bucket,
		indexKey:    indexKey,
		downloadDir: cfg.DownloadDir,
	}, nil
}

// FetchIndex retrieves and parses the current batch index object.
func (s *S3Source) FetchIndex(ctx context.Context) (*types.BatchIndex, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.indexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexFetch, err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexFetch, err)
	}

	idx, err := index.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexFetch, err)
	}
	return idx, nil
}

// DownloadFile fetches one batch object into the download directory.
func (s *S3Source) DownloadFile(ctx context.Context, remotePath string) (string, error) {
	if err := os.MkdirAll(s.downloadDir, 0755); err != nil {
		return "", &DownloadError{Path: remotePath, Err: err}
	}

	target := filepath.Join(s.downloadDir, localName(remotePath))
	key := strings.TrimPrefix(remotePath, "/")

	if err := s.client.FGetObject(ctx, s.bucket, key, target); err != nil {
		return "", &DownloadError{Path: remotePath, Err: err}
	}
	return target, nil
}
