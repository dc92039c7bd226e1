package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/hyperengineering/exposure/internal/config"
)

func newTestSource(t *testing.T, handler http.Handler) *HTTPSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewHTTPSource(config.BatchConfig{
		BaseURL:     srv.URL,
		IndexPath:   "/index.json",
		DownloadDir: t.TempDir(),
		Retries:     1,
	})
}

func TestHTTPSource_FetchIndex(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{
			"full_14_batch": {"interval": 1000, "batch_file_paths": ["/full/0"]},
			"full_7_batch": {"interval": 2000, "batch_file_paths": ["/full7/0"]},
			"daily_batches": []
		}`))
	}))

	idx, err := src.FetchIndex(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if idx.Full14.Interval != 1000 {
		t.Errorf("Full14.Interval = %d, want 1000", idx.Full14.Interval)
	}
}

func TestHTTPSource_FetchIndex_ServerError(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := src.FetchIndex(context.Background())
	if !errors.Is(err, ErrIndexFetch) {
		t.Errorf("expected ErrIndexFetch, got %v", err)
	}
}

func TestHTTPSource_FetchIndex_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"full_14_batch": {"interval": 1}, "full_7_batch": {"interval": 2}, "daily_batches": []}`))
	}))

	if _, err := src.FetchIndex(context.Background()); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestHTTPSource_DownloadFile(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batches/daily/42" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("key-file-bytes"))
	}))

	path, err := src.DownloadFile(context.Background(), "/batches/daily/42")
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "key-file-bytes" {
		t.Errorf("downloaded content = %q", data)
	}
}

func TestHTTPSource_DownloadFile_TypedError(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := src.DownloadFile(context.Background(), "/missing")
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected *DownloadError, got %v", err)
	}
	if dlErr.Path != "/missing" {
		t.Errorf("DownloadError.Path = %q, want /missing", dlErr.Path)
	}
}

func TestLocalName_NoCollisions(t *testing.T) {
	a := localName("/daily/0")
	b := localName("/full/0")
	if a == b {
		t.Errorf("distinct remote paths collide: %q", a)
	}
}
