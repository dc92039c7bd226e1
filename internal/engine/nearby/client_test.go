package nearby

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/exposure/internal/engine"
	"github.com/hyperengineering/exposure/internal/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClient_Summary_Normalizes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/exposureSummary" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{
			"matchedKeyCount": 2,
			"daysSinceLastExposure": 3,
			"maximumRiskScore": 9000,
			"attenuationDurationsInMinutes": [6, 31]
		}`))
	}))

	summary, err := c.Summary(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}

	if summary.MaximumRiskScore != 4096 {
		t.Errorf("MaximumRiskScore = %d, want clamped 4096", summary.MaximumRiskScore)
	}
	if summary.AttenuationDurations[0] != 10 || summary.AttenuationDurations[1] != 30 {
		t.Errorf("AttenuationDurations = %v, want [10 30]", summary.AttenuationDurations)
	}
}

func TestClient_Details_Normalizes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exposureInformation": [{
			"dateMillisSinceEpoch": 1600000000000,
			"totalRiskScore": 5000,
			"transmissionRiskLevel": 12,
			"attenuationValue": 300,
			"durationMinutes": 6
		}]}`))
	}))

	details, err := c.Details(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if len(details) != 1 {
		t.Fatalf("got %d details, want 1", len(details))
	}

	d := details[0]
	if !d.OccurredAt.Equal(time.Unix(1_600_000_000, 0)) {
		t.Errorf("OccurredAt = %v", d.OccurredAt)
	}
	if d.TotalRiskScore != 4096 {
		t.Errorf("TotalRiskScore = %d, want 4096", d.TotalRiskScore)
	}
	if d.TransmissionRiskLevel != 8 {
		t.Errorf("TransmissionRiskLevel = %d, want 8", d.TransmissionRiskLevel)
	}
	if d.AttenuationValue != 255 {
		t.Errorf("AttenuationValue = %d, want 255", d.AttenuationValue)
	}
	if d.DurationMinutes != 10 {
		t.Errorf("DurationMinutes = %d, want 10", d.DurationMinutes)
	}
}

func TestClient_ProvideDiagnosisKeys_MapsConsentErrors(t *testing.T) {
	cases := []struct {
		reason string
		want   error
	}{
		{"resolution_required", engine.ErrResolutionRequired},
		{"user_declined", engine.ErrUserDeclined},
	}

	for _, tc := range cases {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"reason": "` + tc.reason + `"}`))
		}))

		err := c.ProvideDiagnosisKeys(context.Background(), []string{"/a"}, types.EngineConfig{}, "tok")
		if !errors.Is(err, tc.want) {
			t.Errorf("reason %s: got %v, want %v", tc.reason, err, tc.want)
		}
	}
}

func TestClient_ProvideDiagnosisKeys_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
	}))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.ProvideDiagnosisKeys(context.Background(), []string{"/a"}, types.EngineConfig{}, "same-token")
		}()
	}

	// Give the goroutines time to coalesce before releasing the bridge.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("bridge saw %d submissions, want 1 (single-flight)", calls.Load())
	}
}

func TestClient_ServiceHealth(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "needs_update"}`))
	}))

	health, err := c.ServiceHealth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if health.Status != types.HealthNeedsUpdate {
		t.Errorf("health = %v, want needs_update", health.Status)
	}
}

func TestClient_TemporaryKeys_PassThrough(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Transmission risk 99 is out of canonical range; keys for upload
		// are not clamped.
		w.Write([]byte(`{"keys": [{
			"keyData": "a2V5",
			"rollingStartIntervalNumber": 2650000,
			"rollingPeriod": 144,
			"transmissionRiskLevel": 99
		}]}`))
	}))

	keys, err := c.TemporaryKeys(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(keys))
	}
	if keys[0].TransmissionRisk != 99 {
		t.Errorf("TransmissionRisk = %d, want unclamped 99", keys[0].TransmissionRisk)
	}
	if string(keys[0].KeyData) != "key" {
		t.Errorf("KeyData = %q, want decoded base64 'key'", keys[0].KeyData)
	}
}
