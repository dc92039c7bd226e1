package e2e

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/exposure/internal/api"
	"github.com/hyperengineering/exposure/internal/config"
	"github.com/hyperengineering/exposure/internal/engine/nearby"
	"github.com/hyperengineering/exposure/internal/fetch"
	"github.com/hyperengineering/exposure/internal/ledger"
	"github.com/hyperengineering/exposure/internal/syncrun"
	"github.com/hyperengineering/exposure/internal/types"
)

// batchServer fakes the key-distribution CDN: one index plus batch files.
type batchServer struct {
	srv *httptest.Server

	mu        sync.Mutex
	index     types.BatchIndex
	failFiles map[string]bool
	hits      map[string]int
}

func newBatchServer(t *testing.T) *batchServer {
	t.Helper()
	nowInterval := time.Now().Unix() / types.IntervalSeconds
	b := &batchServer{
		index: types.BatchIndex{
			Full14: types.BatchDescriptor{Interval: 1000, FilePaths: []string{"/full14/export.bin"}},
			Full7:  types.BatchDescriptor{Interval: 2000, FilePaths: []string{"/full7/export.bin"}},
			Daily: []types.BatchDescriptor{
				{Interval: nowInterval - 6, FilePaths: []string{"/daily/one.bin"}},
				{Interval: nowInterval - 3, FilePaths: []string{"/daily/two.bin"}},
			},
		},
		failFiles: make(map[string]bool),
		hits:      make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(b.index)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		fail := b.failFiles[r.URL.Path]
		b.hits[r.URL.Path]++
		b.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "batch-data:"+r.URL.Path)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *batchServer) setFail(path string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failFiles[path] = fail
}

func (b *batchServer) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// bridgeServer fakes the millisecond-epoch vendor's loopback bridge.
type bridgeServer struct {
	srv *httptest.Server

	mu          sync.Mutex
	health      string
	submissions [][]string
	summary     map[string]interface{}
	exposures   []map[string]interface{}
}

func newBridgeServer(t *testing.T) *bridgeServer {
	t.Helper()
	b := &bridgeServer{
		health: "available",
		summary: map[string]interface{}{
			"matchedKeyCount":               2,
			"daysSinceLastExposure":         3,
			"maximumRiskScore":              9000,
			"attenuationDurationsInMinutes": []int{6, 31},
		},
		exposures: []map[string]interface{}{
			{
				"dateMillisSinceEpoch":  int64(1598486400000),
				"totalRiskScore":        5000,
				"transmissionRiskLevel": 9,
				"attenuationValue":      300,
				"durationMinutes":       31,
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"status": b.health})
	})
	mux.HandleFunc("/v1/diagnosisKeys", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Files []string `json:"files"`
			Token string   `json:"token"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.submissions = append(b.submissions, req.Files)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/exposureSummary", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(b.summary)
	})
	mux.HandleFunc("/v1/exposureInformation", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"exposureInformation": b.exposures})
	})
	mux.HandleFunc("/v1/temporaryExposureKeys", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]interface{}{
				{
					"keyData":                    []byte("key-1"),
					"rollingStartIntervalNumber": 2650000,
					"rollingPeriod":              144,
					"transmissionRiskLevel":      4,
				},
			},
		})
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *bridgeServer) setHealth(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health = status
}

func (b *bridgeServer) submissionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submissions)
}

// env wires a complete in-process daemon: real ledger, real orchestrator,
// real router, fake CDN and vendor bridge.
type env struct {
	batches *batchServer
	bridge  *bridgeServer
	orch    *syncrun.Orchestrator
	status  *syncrun.Registry
	ledger  ledger.Ledger
	apiSrv  *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	batches := newBatchServer(t)
	bridge := newBridgeServer(t)

	db, err := ledger.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	source := fetch.NewHTTPSource(config.BatchConfig{
		BaseURL:     batches.srv.URL,
		IndexPath:   "/index.json",
		DownloadDir: t.TempDir(),
		Retries:     1,
	})

	eng := nearby.New(bridge.srv.URL)
	status := syncrun.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := syncrun.New(db, source, eng, status, nil, syncrun.Options{
		RecentHours:  24,
		MaxDownloads: 2,
	}, logger)

	handler := api.NewHandler(db, eng, orch, status, "e2e")
	apiSrv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(apiSrv.Close)

	return &env{
		batches: batches,
		bridge:  bridge,
		orch:    orch,
		status:  status,
		ledger:  db,
		apiSrv:  apiSrv,
	}
}
